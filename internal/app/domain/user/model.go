package user

import "time"

// Roles mirror the console's access tiers.
const (
	RoleAdmin   = 1
	RolePartner = 2
	RoleClient  = 3
)

// User is the console's view of an identity-provider account, extended with
// partner/referral attributes.
type User struct {
	ID          string    `json:"user_id"`
	Email       string    `json:"email"`
	RoleID      int       `json:"role_id"`
	PartnerCode string    `json:"partner_code,omitempty"`
	ReferredBy  string    `json:"referred_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
