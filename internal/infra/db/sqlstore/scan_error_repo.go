package sqlstore

import (
	"context"

	"github.com/bryanwahyu/lucy-scan/internal/domain/scanerrors"
)

// SaveError inserts a scan error row
func (s *Store) SaveError(ctx context.Context, e *scanerrors.ScanError) error {
	const q = `
INSERT INTO a11y_scan_errors (id, scan_id, target_id, phase, message, created_at)
VALUES (?,?,?,?,?,?);`
	_, err := s.db.ExecContext(ctx, s.rebind(q), e.ID, e.ScanID, e.TargetID, e.Phase, e.Message, utc(e.CreatedAt))
	return err
}

// ListErrorsByScan returns the newest errors first.
func (s *Store) ListErrorsByScan(ctx context.Context, scanID string, limit int) ([]*scanerrors.ScanError, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	const q = `
SELECT id, scan_id, target_id, phase, message, created_at
FROM a11y_scan_errors
WHERE scan_id=?
ORDER BY created_at DESC
LIMIT ?;`
	rows, err := s.db.QueryContext(ctx, s.rebind(q), scanID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*scanerrors.ScanError
	for rows.Next() {
		var e scanerrors.ScanError
		if err := rows.Scan(&e.ID, &e.ScanID, &e.TargetID, &e.Phase, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, &e)
	}
	return out, rows.Err()
}
