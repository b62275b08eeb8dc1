package documents

import "time"

// Document is a generated report file kept in object storage.
type Document struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	OwnerID     string    `json:"owner_id"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	ObjectKey   string    `json:"object_key"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}
