// Package incorporations manages company-formation cases.
package incorporations

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"

	"github.com/launchbase/console/internal/app/domain/incorporation"
	"github.com/launchbase/console/internal/app/storage"
	"github.com/launchbase/console/internal/errors"
	"github.com/launchbase/console/pkg/logger"
)

// Service manages incorporation cases.
type Service struct {
	store storage.IncorporationStore
	log   *logger.Logger
}

// New constructs an incorporations service.
func New(store storage.IncorporationStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("incorporations")
	}
	return &Service{store: store, log: log}
}

// CreateInput holds the fields a user supplies when opening a case.
type CreateInput struct {
	UserID         string
	CompanyType    string
	FormationState string
	NameOptions    []string
}

// Create opens a new active incorporation case.
func (s *Service) Create(ctx context.Context, in CreateInput) (incorporation.Incorporation, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return incorporation.Incorporation{}, errors.Validation("user is required")
	}
	if strings.TrimSpace(in.CompanyType) == "" {
		return incorporation.Incorporation{}, errors.Validation("company_type is required")
	}
	if strings.TrimSpace(in.FormationState) == "" {
		return incorporation.Incorporation{}, errors.Validation("formation_state is required")
	}

	var names []string
	for _, name := range in.NameOptions {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	if len(names) == 0 {
		return incorporation.Incorporation{}, errors.Validation("at least one name option is required")
	}

	created, err := s.store.CreateIncorporation(ctx, incorporation.Incorporation{
		UserID:         in.UserID,
		CompanyType:    in.CompanyType,
		FormationState: in.FormationState,
		NameOptions:    names,
		State:          incorporation.StateActive,
	})
	if err != nil {
		return incorporation.Incorporation{}, errors.Persistence("incorporation insert failed", err)
	}
	s.log.WithField("incorporation_id", created.ID).WithField("user_id", in.UserID).Info("incorporation created")
	return created, nil
}

// Get returns a case, scoped to its owner.
func (s *Service) Get(ctx context.Context, id, userID string) (incorporation.Incorporation, error) {
	inc, err := s.store.GetIncorporation(ctx, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return incorporation.Incorporation{}, errors.NotFound("incorporation not found")
	}
	if err != nil {
		return incorporation.Incorporation{}, errors.Persistence("incorporation lookup failed", err)
	}
	if inc.UserID != userID {
		return incorporation.Incorporation{}, errors.NotFound("incorporation not found")
	}
	return inc, nil
}

// List returns all cases owned by the user.
func (s *Service) List(ctx context.Context, userID string) ([]incorporation.Incorporation, error) {
	result, err := s.store.ListIncorporations(ctx, userID)
	if err != nil {
		return nil, errors.Persistence("incorporation list failed", err)
	}
	return result, nil
}
