package payment

import "time"

// Statuses a payment record moves through. Settlement via provider webhooks
// is out of scope; records start pending.
const (
	StatusPending   = "pending"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Service is a purchasable consulting service with a fixed price.
type Service struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	PriceCents int64     `json:"price_cents"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

// Payment records an intent created with the payment provider.
type Payment struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	IncorporationID string    `json:"incorporation_id"`
	ServiceID       string    `json:"service_id"`
	AmountCents     int64     `json:"amount_cents"`
	FeeCents        int64     `json:"fee_cents"`
	Currency        string    `json:"currency"`
	ProviderRef     string    `json:"provider_ref"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}
