package documents

import (
	"context"
	"testing"

	"github.com/launchbase/console/internal/app/domain/document"
	"github.com/launchbase/console/internal/app/storage/memory"
	"github.com/launchbase/console/internal/errors"
)

func TestRegisterAndListScopedByUser(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	mine, err := svc.Register(ctx, document.Document{
		UserID: "U1", Name: "operating-agreement.pdf", StoragePath: "docs/U1/operating-agreement.pdf",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, document.Document{
		UserID: "U2", Name: "ein.pdf", StoragePath: "docs/U2/ein.pdf",
	}); err != nil {
		t.Fatalf("register other user: %v", err)
	}

	docs, err := svc.List(ctx, "U1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != mine.ID {
		t.Fatalf("expected only U1's document, got %v", docs)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := New(memory.New(), nil)

	for _, doc := range []document.Document{
		{Name: "a.pdf", StoragePath: "docs/a.pdf"},
		{UserID: "U1", StoragePath: "docs/a.pdf"},
		{UserID: "U1", Name: "a.pdf"},
	} {
		_, err := svc.Register(context.Background(), doc)
		svcErr := errors.GetServiceError(err)
		if svcErr == nil || svcErr.Code != errors.CodeValidation {
			t.Fatalf("expected validation error for %+v, got %v", doc, err)
		}
	}
}
