// Package payments creates provider payment intents for purchasable
// services and records them.
package payments

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"

	"github.com/launchbase/console/internal/app/domain/payment"
	"github.com/launchbase/console/internal/app/storage"
	"github.com/launchbase/console/internal/errors"
	"github.com/launchbase/console/internal/metrics"
	"github.com/launchbase/console/pkg/logger"
)

// Processing fee applied on top of the service price, in basis points.
const feeBasisPoints = 450

// Provider creates payment intents with the upstream processor.
type Provider interface {
	CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (Intent, error)
}

// Intent is the provider-side handle handed back to the browser.
type Intent struct {
	ID           string
	ClientSecret string
}

// Service coordinates intent creation and payment records.
type Service struct {
	store    storage.PaymentStore
	provider Provider
	log      *logger.Logger
}

// New constructs a payments service.
func New(store storage.PaymentStore, provider Provider, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("payments")
	}
	return &Service{store: store, provider: provider, log: log}
}

// CreateIntentInput identifies what is being purchased and by whom.
type CreateIntentInput struct {
	UserID          string
	ServiceID       string
	IncorporationID string
}

// CreateIntentResult pairs the stored payment row with the provider secret
// the browser needs to confirm the charge.
type CreateIntentResult struct {
	Payment      payment.Payment
	ClientSecret string
}

// CreateIntent prices the service, adds the processing fee, creates the
// provider intent and records a pending payment.
func (s *Service) CreateIntent(ctx context.Context, in CreateIntentInput) (CreateIntentResult, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return CreateIntentResult{}, errors.Validation("user is required")
	}
	if strings.TrimSpace(in.ServiceID) == "" {
		return CreateIntentResult{}, errors.Validation("service_id is required")
	}
	if s.provider == nil {
		return CreateIntentResult{}, errors.Internal("payment provider not configured", nil)
	}

	svc, err := s.store.GetService(ctx, in.ServiceID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return CreateIntentResult{}, errors.NotFound("service not found")
	}
	if err != nil {
		return CreateIntentResult{}, errors.Persistence("service lookup failed", err)
	}
	if !svc.Active {
		return CreateIntentResult{}, errors.NotFound("service not found")
	}

	fee := svc.PriceCents * feeBasisPoints / 10000
	total := svc.PriceCents + fee

	metadata := map[string]string{
		"user_id":    in.UserID,
		"service_id": svc.ID,
		"service":    svc.Name,
	}
	if in.IncorporationID != "" {
		metadata["incorporation_id"] = in.IncorporationID
	}

	intent, err := s.provider.CreateIntent(ctx, total, "usd", metadata)
	if err != nil {
		metrics.RecordPaymentIntent("provider_error")
		return CreateIntentResult{}, errors.Internal("payment intent creation failed", err)
	}

	record, err := s.store.CreatePayment(ctx, payment.Payment{
		UserID:          in.UserID,
		IncorporationID: in.IncorporationID,
		ServiceID:       svc.ID,
		AmountCents:     total,
		FeeCents:        fee,
		Currency:        "usd",
		ProviderRef:     intent.ID,
		Status:          payment.StatusPending,
	})
	if err != nil {
		metrics.RecordPaymentIntent("persistence_error")
		return CreateIntentResult{}, errors.Persistence("payment insert failed", err)
	}

	metrics.RecordPaymentIntent("ok")
	s.log.WithField("payment_id", record.ID).WithField("amount_cents", total).Info("payment intent created")
	return CreateIntentResult{Payment: record, ClientSecret: intent.ClientSecret}, nil
}

// List returns the user's payment records.
func (s *Service) List(ctx context.Context, userID string) ([]payment.Payment, error) {
	result, err := s.store.ListPayments(ctx, userID)
	if err != nil {
		return nil, errors.Persistence("payment list failed", err)
	}
	return result, nil
}
