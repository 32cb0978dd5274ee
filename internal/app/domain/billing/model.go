package billing

import "time"

// Profile is a user's invoicing data, upserted as a whole.
type Profile struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	LegalName  string    `json:"legal_name"`
	TaxID      string    `json:"tax_id"`
	Address    string    `json:"address"`
	City       string    `json:"city"`
	Country    string    `json:"country"`
	PostalCode string    `json:"postal_code"`
	Email      string    `json:"email"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
