package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domain "github.com/bryanwahyu/lucy-scan/internal/domain/scans"
)

// ---- targets ----

func (s *Store) CreateTarget(ctx context.Context, t *domain.Target) error {
	const q = `
INSERT INTO a11y_targets (id, project_id, url, status, last_scan_at, created_at)
VALUES (?,?,?,?,?,?);`
	status := t.Status
	if status == "" {
		status = domain.TargetIdle
	}
	_, err := s.db.ExecContext(ctx, s.rebind(q),
		string(t.ID), t.ProjectID, t.URL, string(status), nullTime(t.LastScanAt), utc(t.CreatedAt))
	return err
}

const targetColumns = `id, project_id, url, status, last_scan_at, created_at`

func scanTarget(r rowScanner) (*domain.Target, error) {
	var (
		t    domain.Target
		last sql.NullTime
	)
	if err := r.Scan(&t.ID, &t.ProjectID, &t.URL, &t.Status, &last, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.LastScanAt = timePtr(last)
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

func (s *Store) GetTarget(ctx context.Context, id domain.TargetID) (*domain.Target, error) {
	q := `SELECT ` + targetColumns + ` FROM a11y_targets WHERE id=? LIMIT 1;`
	t, err := scanTarget(s.db.QueryRowContext(ctx, s.rebind(q), string(id)))
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

// AcquireTarget is a conditional update; the row count tells who won.
func (s *Store) AcquireTarget(ctx context.Context, id domain.TargetID) (bool, error) {
	const q = `UPDATE a11y_targets SET status=? WHERE id=? AND status<>?;`
	res, err := s.db.ExecContext(ctx, s.rebind(q),
		string(domain.TargetScanning), string(id), string(domain.TargetScanning))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	// distinguish a busy target from a missing one
	if _, err := s.GetTarget(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// UpdateTargetStatus leaves last_scan_at untouched when lastScanAt is nil.
func (s *Store) UpdateTargetStatus(ctx context.Context, id domain.TargetID, status domain.TargetStatus, lastScanAt *time.Time) error {
	var (
		res sql.Result
		err error
	)
	if lastScanAt == nil {
		res, err = s.db.ExecContext(ctx, s.rebind(`UPDATE a11y_targets SET status=? WHERE id=?;`),
			string(status), string(id))
	} else {
		res, err = s.db.ExecContext(ctx, s.rebind(`UPDATE a11y_targets SET status=?, last_scan_at=? WHERE id=?;`),
			string(status), utc(*lastScanAt), string(id))
	}
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) ListTargetsByProject(ctx context.Context, projectID string) ([]*domain.Target, error) {
	q := `SELECT ` + targetColumns + ` FROM a11y_targets WHERE project_id=? ORDER BY created_at ASC;`
	rows, err := s.db.QueryContext(ctx, s.rebind(q), projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) ReplaceTargetStatus(ctx context.Context, from, to domain.TargetStatus) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE a11y_targets SET status=? WHERE status=?;`),
		string(to), string(from))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---- scans ----

const scanColumns = `s.id, s.target_id, s.status, s.started_at, s.finished_at, s.results_json`

func scanScan(r rowScanner) (*domain.Scan, error) {
	var (
		sc       domain.Scan
		finished sql.NullTime
		results  sql.NullString
	)
	if err := r.Scan(&sc.ID, &sc.TargetID, &sc.Status, &sc.StartedAt, &finished, &results); err != nil {
		return nil, err
	}
	sc.StartedAt = sc.StartedAt.UTC()
	sc.FinishedAt = timePtr(finished)
	sc.ResultsJSON = results.String
	return &sc, nil
}

func (s *Store) CreateScan(ctx context.Context, sc *domain.Scan) error {
	const q = `
INSERT INTO a11y_scans (id, target_id, status, started_at, finished_at, results_json)
VALUES (?,?,?,?,?,?);`
	_, err := s.db.ExecContext(ctx, s.rebind(q),
		string(sc.ID), string(sc.TargetID), string(sc.Status), utc(sc.StartedAt),
		nullTime(sc.FinishedAt), nullString(sc.ResultsJSON))
	return err
}

func (s *Store) GetScan(ctx context.Context, id domain.ScanID) (*domain.Scan, error) {
	q := `SELECT ` + scanColumns + ` FROM a11y_scans s WHERE s.id=? LIMIT 1;`
	sc, err := scanScan(s.db.QueryRowContext(ctx, s.rebind(q), string(id)))
	if err != nil {
		return nil, notFound(err)
	}
	return sc, nil
}

func (s *Store) FinishScan(ctx context.Context, id domain.ScanID, status domain.Status, finishedAt time.Time, resultsJSON string) error {
	const q = `UPDATE a11y_scans SET status=?, finished_at=?, results_json=? WHERE id=?;`
	res, err := s.db.ExecContext(ctx, s.rebind(q),
		string(status), utc(finishedAt), nullString(resultsJSON), string(id))
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) ListScansByStatus(ctx context.Context, status domain.Status) ([]*domain.Scan, error) {
	q := `SELECT ` + scanColumns + ` FROM a11y_scans s WHERE s.status=? ORDER BY s.started_at ASC;`
	return s.queryScans(ctx, q, string(status))
}

func (s *Store) queryScans(ctx context.Context, q string, args ...any) ([]*domain.Scan, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Scan
	for rows.Next() {
		sc, err := scanScan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *Store) PreviousCompletedScan(ctx context.Context, target domain.TargetID, exclude domain.ScanID) (*domain.Scan, error) {
	q := `SELECT ` + scanColumns + ` FROM a11y_scans s
WHERE s.target_id=? AND s.status=? AND s.id<>?
ORDER BY s.started_at DESC LIMIT 1;`
	sc, err := scanScan(s.db.QueryRowContext(ctx, s.rebind(q),
		string(target), string(domain.StatusCompleted), string(exclude)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sc, err
}

func (s *Store) LatestCompletedScan(ctx context.Context, projectID string) (*domain.Scan, error) {
	q := `SELECT ` + scanColumns + ` FROM a11y_scans s
JOIN a11y_targets t ON t.id = s.target_id
WHERE t.project_id=? AND s.status=?
ORDER BY s.finished_at DESC LIMIT 1;`
	sc, err := scanScan(s.db.QueryRowContext(ctx, s.rebind(q), projectID, string(domain.StatusCompleted)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sc, err
}

func (s *Store) ScansForProjects(ctx context.Context, projectIDs []string, from, to time.Time) ([]*domain.Scan, error) {
	if len(projectIDs) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(projectIDs)+2)
	for _, id := range projectIDs {
		args = append(args, id)
	}
	args = append(args, utc(from))
	q := `SELECT ` + scanColumns + ` FROM a11y_scans s
JOIN a11y_targets t ON t.id = s.target_id
WHERE t.project_id IN (` + placeholders(len(projectIDs)) + `) AND s.started_at >= ?`
	if !to.IsZero() {
		q += ` AND s.started_at < ?`
		args = append(args, utc(to))
	}
	q += ` ORDER BY s.started_at DESC;`
	return s.queryScans(ctx, q, args...)
}

// ---- violations ----

// SaveViolations writes the batch in one transaction.
func (s *Store) SaveViolations(ctx context.Context, vs []domain.Violation) error {
	if len(vs) == 0 {
		return nil
	}
	const q = `
INSERT INTO a11y_violations
(id, scan_id, code, description, severity, risk, wcag_level, element, suggestion, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?);`
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, s.rebind(q))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, v := range vs {
		if _, err := stmt.ExecContext(ctx,
			string(v.ID), string(v.ScanID), v.Code, v.Description,
			string(v.Severity), string(v.Risk), string(v.WCAGLevel),
			v.Element, v.Suggestion, utc(v.CreatedAt),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert violation %s: %w", v.Code, err)
		}
	}
	return tx.Commit()
}

const violationColumns = `id, scan_id, code, description, severity, risk, wcag_level, element, suggestion, created_at`

func (s *Store) queryViolations(ctx context.Context, q string, args ...any) ([]domain.Violation, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Violation
	for rows.Next() {
		var v domain.Violation
		if err := rows.Scan(&v.ID, &v.ScanID, &v.Code, &v.Description, &v.Severity, &v.Risk,
			&v.WCAGLevel, &v.Element, &v.Suggestion, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.CreatedAt = v.CreatedAt.UTC()
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) ListViolations(ctx context.Context, scan domain.ScanID) ([]domain.Violation, error) {
	q := `SELECT ` + violationColumns + ` FROM a11y_violations WHERE scan_id=? ORDER BY created_at ASC, id ASC;`
	return s.queryViolations(ctx, q, string(scan))
}

func (s *Store) ListViolationsForScans(ctx context.Context, ids []domain.ScanID) ([]domain.Violation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := `SELECT ` + violationColumns + ` FROM a11y_violations WHERE scan_id IN (` + placeholders(len(ids)) + `) ORDER BY created_at ASC, id ASC;`
	return s.queryViolations(ctx, q, scanArgs(ids)...)
}

// ---- reports ----

func (s *Store) SaveReport(ctx context.Context, r *domain.Report) error {
	const q = `
INSERT INTO a11y_reports
(id, scan_id, summary, risk_score, total_issues,
 critical_issues, serious_issues, moderate_issues, minor_issues, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?);`
	_, err := s.db.ExecContext(ctx, s.rebind(q),
		string(r.ID), string(r.ScanID), r.Summary, r.RiskScore, r.Counts.Total,
		r.Counts.Critical, r.Counts.Serious, r.Counts.Moderate, r.Counts.Minor, utc(r.CreatedAt))
	return err
}

const reportColumns = `id, scan_id, summary, risk_score, total_issues,
 critical_issues, serious_issues, moderate_issues, minor_issues, created_at`

func scanReport(r rowScanner) (*domain.Report, error) {
	var rep domain.Report
	if err := r.Scan(&rep.ID, &rep.ScanID, &rep.Summary, &rep.RiskScore, &rep.Counts.Total,
		&rep.Counts.Critical, &rep.Counts.Serious, &rep.Counts.Moderate, &rep.Counts.Minor,
		&rep.CreatedAt); err != nil {
		return nil, err
	}
	rep.CreatedAt = rep.CreatedAt.UTC()
	return &rep, nil
}

func (s *Store) GetReport(ctx context.Context, scan domain.ScanID) (*domain.Report, error) {
	q := `SELECT ` + reportColumns + ` FROM a11y_reports WHERE scan_id=? LIMIT 1;`
	r, err := scanReport(s.db.QueryRowContext(ctx, s.rebind(q), string(scan)))
	if err != nil {
		return nil, notFound(err)
	}
	return r, nil
}

func (s *Store) ListReportsForScans(ctx context.Context, ids []domain.ScanID) ([]*domain.Report, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := `SELECT ` + reportColumns + ` FROM a11y_reports WHERE scan_id IN (` + placeholders(len(ids)) + `);`
	rows, err := s.db.QueryContext(ctx, s.rebind(q), scanArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanArgs(ids []domain.ScanID) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = string(id)
	}
	return args
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
