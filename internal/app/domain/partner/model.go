package partner

import "time"

// Referral is a contact referred by a partner, as reported by the ERP.
type Referral struct {
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	City      string    `json:"city"`
	OrderIDs  []int     `json:"order_ids"`
	CreatedAt time.Time `json:"created_at"`
}
