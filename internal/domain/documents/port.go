package documents

import "context"

// Repository port for persisting and querying generated documents
type Repository interface {
	SaveDocument(ctx context.Context, d *Document) error
	ListDocuments(ctx context.Context, projectID string, limit int) ([]*Document, error)
}
