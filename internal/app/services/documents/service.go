// Package documents records uploaded file metadata. File bytes live in
// object storage; the console only tracks where they are.
package documents

import (
	"context"
	"strings"

	"github.com/launchbase/console/internal/app/domain/document"
	"github.com/launchbase/console/internal/app/storage"
	"github.com/launchbase/console/internal/errors"
	"github.com/launchbase/console/pkg/logger"
)

// Service manages document metadata.
type Service struct {
	store storage.DocumentStore
	log   *logger.Logger
}

// New constructs a documents service.
func New(store storage.DocumentStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("documents")
	}
	return &Service{store: store, log: log}
}

// Register records a new document's metadata.
func (s *Service) Register(ctx context.Context, doc document.Document) (document.Document, error) {
	if strings.TrimSpace(doc.UserID) == "" {
		return document.Document{}, errors.Validation("user is required")
	}
	if strings.TrimSpace(doc.Name) == "" {
		return document.Document{}, errors.Validation("name is required")
	}
	if strings.TrimSpace(doc.StoragePath) == "" {
		return document.Document{}, errors.Validation("storage_path is required")
	}

	created, err := s.store.CreateDocument(ctx, doc)
	if err != nil {
		return document.Document{}, errors.Persistence("document insert failed", err)
	}
	s.log.WithField("document_id", created.ID).WithField("user_id", doc.UserID).Info("document registered")
	return created, nil
}

// List returns the user's documents.
func (s *Service) List(ctx context.Context, userID string) ([]document.Document, error) {
	docs, err := s.store.ListDocuments(ctx, userID)
	if err != nil {
		return nil, errors.Persistence("document list failed", err)
	}
	return docs, nil
}
