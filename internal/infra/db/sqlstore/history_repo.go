package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/bryanwahyu/lucy-scan/internal/domain/history"
	domain "github.com/bryanwahyu/lucy-scan/internal/domain/scans"
)

const remediatedColumns = `id, project_id, target_id, code, description, severity, wcag_level,
 last_seen_at, remediated_at, has_regressed, regressed_at, regression_scan_id`

func (s *Store) CreateRemediated(ctx context.Context, r *history.RemediatedViolation) error {
	q := `INSERT INTO a11y_remediated_violations (` + remediatedColumns + `) VALUES (?,?,?,?,?,?,?,?,?,?,?,?);`
	var regScan sql.NullString
	if r.RegressionScanID != nil {
		regScan = sql.NullString{String: string(*r.RegressionScanID), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, s.rebind(q),
		r.ID, r.ProjectID, string(r.TargetID), r.Code, r.Description,
		string(r.Severity), string(r.WCAGLevel),
		utc(r.LastSeenAt), utc(r.RemediatedAt), r.HasRegressed,
		nullTime(r.RegressedAt), regScan)
	return err
}

func (s *Store) queryRemediated(ctx context.Context, q string, args ...any) ([]*history.RemediatedViolation, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*history.RemediatedViolation
	for rows.Next() {
		var (
			r         history.RemediatedViolation
			regressed sql.NullTime
			regScan   sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.TargetID, &r.Code, &r.Description,
			&r.Severity, &r.WCAGLevel, &r.LastSeenAt, &r.RemediatedAt, &r.HasRegressed,
			&regressed, &regScan); err != nil {
			return nil, err
		}
		r.LastSeenAt = r.LastSeenAt.UTC()
		r.RemediatedAt = r.RemediatedAt.UTC()
		r.RegressedAt = timePtr(regressed)
		if regScan.Valid {
			id := domain.ScanID(regScan.String)
			r.RegressionScanID = &id
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *Store) OpenRemediated(ctx context.Context, target domain.TargetID) ([]*history.RemediatedViolation, error) {
	q := `SELECT ` + remediatedColumns + ` FROM a11y_remediated_violations
WHERE target_id=? AND has_regressed=? ORDER BY remediated_at ASC;`
	return s.queryRemediated(ctx, q, string(target), false)
}

func (s *Store) MarkRegressed(ctx context.Context, id string, scan domain.ScanID, at time.Time) error {
	const q = `UPDATE a11y_remediated_violations
SET has_regressed=?, regressed_at=?, regression_scan_id=? WHERE id=?;`
	res, err := s.db.ExecContext(ctx, s.rebind(q), true, utc(at), string(scan), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) ListRemediatedByProjects(ctx context.Context, projectIDs []string) ([]*history.RemediatedViolation, error) {
	if len(projectIDs) == 0 {
		return nil, nil
	}
	q := `SELECT ` + remediatedColumns + ` FROM a11y_remediated_violations
WHERE project_id IN (` + placeholders(len(projectIDs)) + `) ORDER BY remediated_at DESC;`
	return s.queryRemediated(ctx, q, stringArgs(projectIDs)...)
}

// ---- snapshots ----

func (s *Store) UpsertSnapshot(ctx context.Context, sn *history.ProjectSnapshot) error {
	_, err := s.db.ExecContext(ctx, s.rebind(s.d.UpsertSnapshot),
		sn.ProjectID, history.DayStart(sn.SnapshotDate),
		sn.TotalScans, sn.CompletedScans, sn.TotalViolations,
		sn.CriticalCount, sn.SeriousCount, sn.ModerateCount, sn.MinorCount,
		sn.AverageRiskScore, sn.AccessibilityDebt)
	return err
}

func (s *Store) DeleteSnapshot(ctx context.Context, projectID string, day time.Time) error {
	const q = `DELETE FROM a11y_project_snapshots WHERE project_id=? AND snapshot_date=?;`
	_, err := s.db.ExecContext(ctx, s.rebind(q), projectID, history.DayStart(day))
	return err
}

const snapshotColumns = `project_id, snapshot_date, total_scans, completed_scans, total_violations,
 critical_count, serious_count, moderate_count, minor_count, average_risk_score, accessibility_debt`

func scanSnapshot(r rowScanner) (*history.ProjectSnapshot, error) {
	var sn history.ProjectSnapshot
	if err := r.Scan(&sn.ProjectID, &sn.SnapshotDate, &sn.TotalScans, &sn.CompletedScans,
		&sn.TotalViolations, &sn.CriticalCount, &sn.SeriousCount, &sn.ModerateCount,
		&sn.MinorCount, &sn.AverageRiskScore, &sn.AccessibilityDebt); err != nil {
		return nil, err
	}
	sn.SnapshotDate = sn.SnapshotDate.UTC()
	return &sn, nil
}

func (s *Store) GetSnapshot(ctx context.Context, projectID string, day time.Time) (*history.ProjectSnapshot, error) {
	q := `SELECT ` + snapshotColumns + ` FROM a11y_project_snapshots WHERE project_id=? AND snapshot_date=? LIMIT 1;`
	sn, err := scanSnapshot(s.db.QueryRowContext(ctx, s.rebind(q), projectID, history.DayStart(day)))
	if err != nil {
		return nil, notFound(err)
	}
	return sn, nil
}

func (s *Store) ListSnapshots(ctx context.Context, projectIDs []string, since time.Time) ([]*history.ProjectSnapshot, error) {
	if len(projectIDs) == 0 {
		return nil, nil
	}
	q := `SELECT ` + snapshotColumns + ` FROM a11y_project_snapshots
WHERE project_id IN (` + placeholders(len(projectIDs)) + `) AND snapshot_date >= ?
ORDER BY snapshot_date ASC;`
	args := append(stringArgs(projectIDs), utc(since))
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*history.ProjectSnapshot
	for rows.Next() {
		sn, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sn)
	}
	return out, rows.Err()
}

func stringArgs(ss []string) []any {
	args := make([]any, len(ss))
	for i, s := range ss {
		args[i] = s
	}
	return args
}
