package document

import "time"

// Document records an uploaded file's metadata. The bytes live in object
// storage; only the path is kept here.
type Document struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	IncorporationID string    `json:"incorporation_id,omitempty"`
	Name            string    `json:"name"`
	StoragePath     string    `json:"storage_path"`
	ContentType     string    `json:"content_type"`
	SizeBytes       int64     `json:"size_bytes"`
	CreatedAt       time.Time `json:"created_at"`
}
