package sqlstore

import (
	"context"

	"github.com/bryanwahyu/lucy-scan/internal/domain/documents"
)

func (s *Store) SaveDocument(ctx context.Context, d *documents.Document) error {
	const q = `
INSERT INTO a11y_documents (id, project_id, owner_id, type, title, object_key, content_type, created_at)
VALUES (?,?,?,?,?,?,?,?);`
	_, err := s.db.ExecContext(ctx, s.rebind(q),
		d.ID, d.ProjectID, d.OwnerID, d.Type, d.Title, d.ObjectKey, d.ContentType, utc(d.CreatedAt))
	return err
}

func (s *Store) ListDocuments(ctx context.Context, projectID string, limit int) ([]*documents.Document, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	const q = `
SELECT id, project_id, owner_id, type, title, object_key, content_type, created_at
FROM a11y_documents
WHERE project_id=?
ORDER BY created_at DESC
LIMIT ?;`
	rows, err := s.db.QueryContext(ctx, s.rebind(q), projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*documents.Document
	for rows.Next() {
		var d documents.Document
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.OwnerID, &d.Type, &d.Title, &d.ObjectKey, &d.ContentType, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.CreatedAt = d.CreatedAt.UTC()
		out = append(out, &d)
	}
	return out, rows.Err()
}
