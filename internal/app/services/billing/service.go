// Package billing manages per-user invoicing profiles.
package billing

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"

	"github.com/launchbase/console/internal/app/domain/billing"
	"github.com/launchbase/console/internal/app/storage"
	"github.com/launchbase/console/internal/errors"
	"github.com/launchbase/console/pkg/logger"
)

// Service manages billing profiles.
type Service struct {
	store storage.BillingStore
	log   *logger.Logger
}

// New constructs a billing service.
func New(store storage.BillingStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("billing")
	}
	return &Service{store: store, log: log}
}

// Upsert replaces the user's billing profile as a whole.
func (s *Service) Upsert(ctx context.Context, profile billing.Profile) (billing.Profile, error) {
	if strings.TrimSpace(profile.UserID) == "" {
		return billing.Profile{}, errors.Validation("user is required")
	}
	if strings.TrimSpace(profile.LegalName) == "" {
		return billing.Profile{}, errors.Validation("legal_name is required")
	}
	if strings.TrimSpace(profile.TaxID) == "" {
		return billing.Profile{}, errors.Validation("tax_id is required")
	}

	saved, err := s.store.UpsertBillingProfile(ctx, profile)
	if err != nil {
		return billing.Profile{}, errors.Persistence("billing profile upsert failed", err)
	}
	s.log.WithField("user_id", profile.UserID).Info("billing profile saved")
	return saved, nil
}

// Get returns the user's billing profile.
func (s *Service) Get(ctx context.Context, userID string) (billing.Profile, error) {
	profile, err := s.store.GetBillingProfile(ctx, userID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return billing.Profile{}, errors.NotFound("billing profile not found")
	}
	if err != nil {
		return billing.Profile{}, errors.Persistence("billing profile lookup failed", err)
	}
	return profile, nil
}
