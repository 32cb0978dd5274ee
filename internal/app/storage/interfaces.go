package storage

import (
	"context"

	"github.com/launchbase/console/internal/app/domain/billing"
	"github.com/launchbase/console/internal/app/domain/document"
	"github.com/launchbase/console/internal/app/domain/form"
	"github.com/launchbase/console/internal/app/domain/incorporation"
	"github.com/launchbase/console/internal/app/domain/payment"
	"github.com/launchbase/console/internal/app/domain/user"
)

// FormStore reads form definitions.
type FormStore interface {
	GetForm(ctx context.Context, id string) (form.Definition, error)
	ListForms(ctx context.Context) ([]form.Definition, error)
}

// SubmissionStore persists form submissions.
//
// UpdateSubmissionIf is a conditional write: the row is updated only while
// its status is one of expectedStatuses, so the reconciler's read-then-write
// sequence cannot clobber a row another writer moved out of reach. A guard
// miss surfaces as sql.ErrNoRows.
type SubmissionStore interface {
	CreateSubmission(ctx context.Context, sub form.Submission) (form.Submission, error)
	UpdateSubmissionIf(ctx context.Context, sub form.Submission, expectedStatuses []form.Status) (form.Submission, error)
	GetSubmission(ctx context.Context, id string) (form.Submission, error)
	// FindLatestSubmission returns the most recent row for the key with
	// status in_progress or submitted. incorporationID narrows the key
	// when non-empty. Absence surfaces as sql.ErrNoRows.
	FindLatestSubmission(ctx context.Context, formID, userID, incorporationID string) (form.Submission, error)
	ListSubmissions(ctx context.Context, formID, userID string) ([]form.Submission, error)
}

// IncorporationStore persists incorporation cases.
type IncorporationStore interface {
	CreateIncorporation(ctx context.Context, inc incorporation.Incorporation) (incorporation.Incorporation, error)
	GetIncorporation(ctx context.Context, id string) (incorporation.Incorporation, error)
	ListIncorporations(ctx context.Context, userID string) ([]incorporation.Incorporation, error)
}

// BillingStore persists billing profiles, one per user.
type BillingStore interface {
	UpsertBillingProfile(ctx context.Context, profile billing.Profile) (billing.Profile, error)
	GetBillingProfile(ctx context.Context, userID string) (billing.Profile, error)
}

// DocumentStore persists uploaded document metadata.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc document.Document) (document.Document, error)
	ListDocuments(ctx context.Context, userID string) ([]document.Document, error)
}

// PaymentStore persists purchasable services and payment records.
type PaymentStore interface {
	GetService(ctx context.Context, id string) (payment.Service, error)
	CreatePayment(ctx context.Context, pay payment.Payment) (payment.Payment, error)
	ListPayments(ctx context.Context, userID string) ([]payment.Payment, error)
}

// UserStore persists console user records.
type UserStore interface {
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByPartnerCode(ctx context.Context, code string) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
}
