package sqlstore

import (
	"context"

	"github.com/bryanwahyu/lucy-scan/internal/domain/projects"
)

const ownerColumns = `id, name, email, api_key, notification_email,
 receive_email_notifications, notify_on_scan_complete, notify_on_scan_error,
 notify_on_scheduled_scan, created_at`

func (s *Store) CreateOwner(ctx context.Context, o *projects.Owner) error {
	q := `INSERT INTO a11y_owners (` + ownerColumns + `) VALUES (?,?,?,?,?,?,?,?,?,?);`
	_, err := s.db.ExecContext(ctx, s.rebind(q),
		o.ID, o.Name, o.Email, o.APIKey, o.NotificationEmail,
		o.ReceiveEmailNotifications, o.NotifyOnScanComplete, o.NotifyOnScanError,
		o.NotifyOnScheduledScan, utc(o.CreatedAt))
	return err
}

func scanOwner(r rowScanner) (*projects.Owner, error) {
	var o projects.Owner
	if err := r.Scan(&o.ID, &o.Name, &o.Email, &o.APIKey, &o.NotificationEmail,
		&o.ReceiveEmailNotifications, &o.NotifyOnScanComplete, &o.NotifyOnScanError,
		&o.NotifyOnScheduledScan, &o.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	o.CreatedAt = o.CreatedAt.UTC()
	return &o, nil
}

func (s *Store) GetOwner(ctx context.Context, id string) (*projects.Owner, error) {
	q := `SELECT ` + ownerColumns + ` FROM a11y_owners WHERE id=? LIMIT 1;`
	return scanOwner(s.db.QueryRowContext(ctx, s.rebind(q), id))
}

func (s *Store) OwnerByAPIKey(ctx context.Context, key string) (*projects.Owner, error) {
	q := `SELECT ` + ownerColumns + ` FROM a11y_owners WHERE api_key=? LIMIT 1;`
	return scanOwner(s.db.QueryRowContext(ctx, s.rebind(q), key))
}

func (s *Store) CreateProject(ctx context.Context, p *projects.Project) error {
	const q = `INSERT INTO a11y_projects (id, owner_id, name, created_at) VALUES (?,?,?,?);`
	_, err := s.db.ExecContext(ctx, s.rebind(q), p.ID, p.OwnerID, p.Name, utc(p.CreatedAt))
	return err
}

func (s *Store) GetProject(ctx context.Context, id string) (*projects.Project, error) {
	const q = `SELECT id, owner_id, name, created_at FROM a11y_projects WHERE id=? LIMIT 1;`
	var p projects.Project
	if err := s.db.QueryRowContext(ctx, s.rebind(q), id).Scan(&p.ID, &p.OwnerID, &p.Name, &p.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func (s *Store) ListProjectsByOwner(ctx context.Context, ownerID string) ([]*projects.Project, error) {
	const q = `SELECT id, owner_id, name, created_at FROM a11y_projects WHERE owner_id=? ORDER BY created_at ASC;`
	rows, err := s.db.QueryContext(ctx, s.rebind(q), ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*projects.Project
	for rows.Next() {
		var p projects.Project
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		out = append(out, &p)
	}
	return out, rows.Err()
}
