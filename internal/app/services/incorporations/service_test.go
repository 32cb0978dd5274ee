package incorporations

import (
	"context"
	"testing"

	"github.com/launchbase/console/internal/app/domain/incorporation"
	"github.com/launchbase/console/internal/app/storage/memory"
	"github.com/launchbase/console/internal/errors"
)

func TestCreateValidatesAndNormalises(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{
		UserID:         "U1",
		CompanyType:    "LLC",
		FormationState: "WY",
		NameOptions:    []string{" Acme LLC ", "", "Acme Holdings LLC"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.State != incorporation.StateActive {
		t.Fatalf("new cases must start active, got %s", created.State)
	}
	if len(created.NameOptions) != 2 || created.NameOptions[0] != "Acme LLC" {
		t.Fatalf("name options not normalised: %v", created.NameOptions)
	}

	_, err = svc.Create(ctx, CreateInput{UserID: "U1", CompanyType: "LLC", FormationState: "WY", NameOptions: []string{"  "}})
	svcErr := errors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != errors.CodeValidation {
		t.Fatalf("expected validation error for blank names, got %v", err)
	}
}

func TestGetHidesOtherUsersCases(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{
		UserID: "U1", CompanyType: "LLC", FormationState: "WY", NameOptions: []string{"Acme LLC"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Get(ctx, created.ID, "U1"); err != nil {
		t.Fatalf("owner get: %v", err)
	}
	_, err = svc.Get(ctx, created.ID, "U2")
	svcErr := errors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != errors.CodeNotFound {
		t.Fatalf("expected not found for non-owner, got %v", err)
	}
}
