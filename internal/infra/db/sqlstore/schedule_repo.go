package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	domain "github.com/bryanwahyu/lucy-scan/internal/domain/scans"
	"github.com/bryanwahyu/lucy-scan/internal/domain/schedules"
)

// ---- scan schedules ----

const scanScheduleColumns = `id, target_id, frequency, time_of_day, day_of_week, day_of_month,
 timezone, enabled, last_run_at, next_run_at, created_at`

func (s *Store) CreateScanSchedule(ctx context.Context, sc *schedules.ScanSchedule) error {
	q := `INSERT INTO a11y_scan_schedules (` + scanScheduleColumns + `) VALUES (?,?,?,?,?,?,?,?,?,?,?);`
	_, err := s.db.ExecContext(ctx, s.rebind(q),
		sc.ID, string(sc.TargetID), string(sc.Frequency), sc.TimeOfDay,
		nullInt(sc.DayOfWeek), nullInt(sc.DayOfMonth), sc.Timezone, sc.Enabled,
		nullTime(sc.LastRunAt), utc(sc.NextRunAt), utc(sc.CreatedAt))
	return err
}

func scanScanSchedule(r rowScanner) (*schedules.ScanSchedule, error) {
	var (
		sc       schedules.ScanSchedule
		dow, dom sql.NullInt64
		last     sql.NullTime
	)
	if err := r.Scan(&sc.ID, &sc.TargetID, &sc.Frequency, &sc.TimeOfDay, &dow, &dom,
		&sc.Timezone, &sc.Enabled, &last, &sc.NextRunAt, &sc.CreatedAt); err != nil {
		return nil, err
	}
	sc.DayOfWeek = intPtr(dow)
	sc.DayOfMonth = intPtr(dom)
	sc.LastRunAt = timePtr(last)
	sc.NextRunAt = sc.NextRunAt.UTC()
	sc.CreatedAt = sc.CreatedAt.UTC()
	return &sc, nil
}

func (s *Store) queryScanSchedules(ctx context.Context, q string, args ...any) ([]*schedules.ScanSchedule, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*schedules.ScanSchedule
	for rows.Next() {
		sc, err := scanScanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *Store) GetScanSchedule(ctx context.Context, id string) (*schedules.ScanSchedule, error) {
	q := `SELECT ` + scanScheduleColumns + ` FROM a11y_scan_schedules WHERE id=? LIMIT 1;`
	sc, err := scanScanSchedule(s.db.QueryRowContext(ctx, s.rebind(q), id))
	if err != nil {
		return nil, notFound(err)
	}
	return sc, nil
}

func (s *Store) ListScanSchedules(ctx context.Context, target domain.TargetID) ([]*schedules.ScanSchedule, error) {
	q := `SELECT ` + scanScheduleColumns + ` FROM a11y_scan_schedules WHERE target_id=? ORDER BY created_at ASC;`
	return s.queryScanSchedules(ctx, q, string(target))
}

func (s *Store) DeleteScanSchedule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM a11y_scan_schedules WHERE id=?;`), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) DueScanSchedules(ctx context.Context, now time.Time) ([]*schedules.ScanSchedule, error) {
	q := `SELECT ` + scanScheduleColumns + ` FROM a11y_scan_schedules
WHERE enabled=? AND next_run_at <= ? ORDER BY next_run_at ASC;`
	return s.queryScanSchedules(ctx, q, true, utc(now))
}

func (s *Store) MarkScanScheduleRun(ctx context.Context, id string, lastRunAt, nextRunAt time.Time) error {
	const q = `UPDATE a11y_scan_schedules SET last_run_at=?, next_run_at=? WHERE id=?;`
	res, err := s.db.ExecContext(ctx, s.rebind(q), utc(lastRunAt), utc(nextRunAt), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ---- report schedules ----

const reportScheduleColumns = `id, project_id, creator_id, report_type, frequency, time_of_day,
 day_of_week, day_of_month, month_of_quarter, timezone, recipient_emails, include_owner,
 enabled, last_run_at, next_run_at, last_status, last_error, created_at`

func (s *Store) CreateReportSchedule(ctx context.Context, rs *schedules.ReportSchedule) error {
	recipients, err := json.Marshal(nonNil(rs.RecipientEmails))
	if err != nil {
		return err
	}
	q := `INSERT INTO a11y_report_schedules (` + reportScheduleColumns + `)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?);`
	_, err = s.db.ExecContext(ctx, s.rebind(q),
		rs.ID, rs.ProjectID, rs.CreatorID, rs.ReportType, string(rs.Frequency), rs.TimeOfDay,
		nullInt(rs.DayOfWeek), nullInt(rs.DayOfMonth), nullInt(rs.MonthOfQuarter), rs.Timezone,
		string(recipients), rs.IncludeOwner, rs.Enabled, nullTime(rs.LastRunAt), utc(rs.NextRunAt),
		nullString(rs.LastStatus), nullString(rs.LastError), utc(rs.CreatedAt))
	return err
}

func (s *Store) queryReportSchedules(ctx context.Context, q string, args ...any) ([]*schedules.ReportSchedule, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*schedules.ReportSchedule
	for rows.Next() {
		var (
			rs                schedules.ReportSchedule
			dow, dom, moq     sql.NullInt64
			recipients        string
			last              sql.NullTime
			status, lastError sql.NullString
		)
		if err := rows.Scan(&rs.ID, &rs.ProjectID, &rs.CreatorID, &rs.ReportType, &rs.Frequency,
			&rs.TimeOfDay, &dow, &dom, &moq, &rs.Timezone, &recipients, &rs.IncludeOwner,
			&rs.Enabled, &last, &rs.NextRunAt, &status, &lastError, &rs.CreatedAt); err != nil {
			return nil, err
		}
		if recipients != "" {
			if err := json.Unmarshal([]byte(recipients), &rs.RecipientEmails); err != nil {
				return nil, err
			}
		}
		rs.DayOfWeek, rs.DayOfMonth, rs.MonthOfQuarter = intPtr(dow), intPtr(dom), intPtr(moq)
		rs.LastRunAt = timePtr(last)
		rs.NextRunAt = rs.NextRunAt.UTC()
		rs.CreatedAt = rs.CreatedAt.UTC()
		rs.LastStatus, rs.LastError = status.String, lastError.String
		out = append(out, &rs)
	}
	return out, rows.Err()
}

func (s *Store) ListReportSchedules(ctx context.Context, projectID string) ([]*schedules.ReportSchedule, error) {
	q := `SELECT ` + reportScheduleColumns + ` FROM a11y_report_schedules WHERE project_id=? ORDER BY created_at ASC;`
	return s.queryReportSchedules(ctx, q, projectID)
}

func (s *Store) DueReportSchedules(ctx context.Context, now time.Time) ([]*schedules.ReportSchedule, error) {
	q := `SELECT ` + reportScheduleColumns + ` FROM a11y_report_schedules
WHERE enabled=? AND next_run_at <= ? ORDER BY next_run_at ASC;`
	return s.queryReportSchedules(ctx, q, true, utc(now))
}

func (s *Store) MarkReportScheduleRun(ctx context.Context, id string, lastRunAt, nextRunAt time.Time) error {
	const q = `UPDATE a11y_report_schedules SET last_run_at=?, next_run_at=? WHERE id=?;`
	res, err := s.db.ExecContext(ctx, s.rebind(q), utc(lastRunAt), utc(nextRunAt), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) SetReportScheduleStatus(ctx context.Context, id, status, lastError string) error {
	const q = `UPDATE a11y_report_schedules SET last_status=?, last_error=? WHERE id=?;`
	res, err := s.db.ExecContext(ctx, s.rebind(q), nullString(status), nullString(lastError), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
