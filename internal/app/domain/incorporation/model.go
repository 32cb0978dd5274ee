package incorporation

import "time"

// State of an incorporation case. Only active cases accept form submissions
// and payments.
const (
	StateActive    = "active"
	StateSuspended = "suspended"
	StateClosed    = "closed"
)

// Incorporation is a company-formation case owned by a user.
type Incorporation struct {
	ID             string    `json:"incorporation_id"`
	UserID         string    `json:"user_id"`
	CompanyType    string    `json:"company_type"`
	FormationState string    `json:"formation_state"`
	NameOptions    []string  `json:"name_options"`
	State          string    `json:"state"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
