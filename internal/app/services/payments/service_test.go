package payments

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/launchbase/console/internal/app/domain/payment"
	"github.com/launchbase/console/internal/app/storage/memory"
	"github.com/launchbase/console/internal/errors"
)

type stubProvider struct {
	amount   int64
	metadata map[string]string
	err      error
}

func (s *stubProvider) CreateIntent(_ context.Context, amountCents int64, _ string, metadata map[string]string) (Intent, error) {
	s.amount = amountCents
	s.metadata = metadata
	if s.err != nil {
		return Intent{}, s.err
	}
	return Intent{ID: "pi_1", ClientSecret: "secret_1"}, nil
}

func TestCreateIntentPricesServiceWithFee(t *testing.T) {
	store := memory.New()
	svc := store.PutService(payment.Service{Name: "Registered Agent", PriceCents: 20000, Active: true})
	provider := &stubProvider{}

	result, err := New(store, provider, nil).CreateIntent(context.Background(), CreateIntentInput{
		UserID:          "U1",
		ServiceID:       svc.ID,
		IncorporationID: "INC1",
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	// 20000 + 4.5% = 20900
	if provider.amount != 20900 {
		t.Fatalf("expected 20900 cents at the provider, got %d", provider.amount)
	}
	if result.Payment.AmountCents != 20900 || result.Payment.FeeCents != 900 {
		t.Fatalf("unexpected amounts: %+v", result.Payment)
	}
	if result.Payment.Status != payment.StatusPending || result.Payment.ProviderRef != "pi_1" {
		t.Fatalf("unexpected payment record: %+v", result.Payment)
	}
	if result.ClientSecret != "secret_1" {
		t.Fatalf("expected client secret, got %q", result.ClientSecret)
	}
	if provider.metadata["incorporation_id"] != "INC1" {
		t.Fatalf("expected incorporation metadata, got %v", provider.metadata)
	}
}

func TestCreateIntentRejectsInactiveService(t *testing.T) {
	store := memory.New()
	svc := store.PutService(payment.Service{Name: "Retired", PriceCents: 5000, Active: false})

	_, err := New(store, &stubProvider{}, nil).CreateIntent(context.Background(), CreateIntentInput{
		UserID: "U1", ServiceID: svc.ID,
	})
	svcErr := errors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != errors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateIntentProviderFailure(t *testing.T) {
	store := memory.New()
	svc := store.PutService(payment.Service{Name: "Registered Agent", PriceCents: 5000, Active: true})
	provider := &stubProvider{err: stderrors.New("card network down")}

	_, err := New(store, provider, nil).CreateIntent(context.Background(), CreateIntentInput{
		UserID: "U1", ServiceID: svc.ID,
	})
	svcErr := errors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != errors.CodeInternal {
		t.Fatalf("expected internal error, got %v", err)
	}

	// No payment row may exist after a provider failure.
	rows, listErr := store.ListPayments(context.Background(), "U1")
	if listErr != nil || len(rows) != 0 {
		t.Fatalf("expected no payment rows, got %v %v", rows, listErr)
	}
}
