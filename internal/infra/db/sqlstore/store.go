// Package sqlstore holds the SQL repositories shared by the mysql, postgres
// and sqlite drivers. Queries are written with ? placeholders and rebound per
// dialect before they hit the driver.
package sqlstore

import (
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	domain "github.com/bryanwahyu/lucy-scan/internal/domain/scans"
)

// Dialect captures the few places where the supported engines disagree.
type Dialect struct {
	Name string
	// Numbered switches ? to $1, $2, ... (postgres).
	Numbered bool
	// UpsertSnapshot is the full statement for replacing a daily snapshot.
	UpsertSnapshot string
}

const snapshotInsert = `
INSERT INTO a11y_project_snapshots
(project_id, snapshot_date, total_scans, completed_scans, total_violations,
 critical_count, serious_count, moderate_count, minor_count,
 average_risk_score, accessibility_debt)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`

var (
	MySQL = Dialect{
		Name: "mysql",
		UpsertSnapshot: snapshotInsert + `
ON DUPLICATE KEY UPDATE
 total_scans=VALUES(total_scans), completed_scans=VALUES(completed_scans),
 total_violations=VALUES(total_violations),
 critical_count=VALUES(critical_count), serious_count=VALUES(serious_count),
 moderate_count=VALUES(moderate_count), minor_count=VALUES(minor_count),
 average_risk_score=VALUES(average_risk_score), accessibility_debt=VALUES(accessibility_debt);`,
	}

	Postgres = Dialect{
		Name:           "postgres",
		Numbered:       true,
		UpsertSnapshot: snapshotInsert + onConflictSnapshot,
	}

	SQLite = Dialect{
		Name:           "sqlite",
		UpsertSnapshot: snapshotInsert + onConflictSnapshot,
	}
)

const onConflictSnapshot = `
ON CONFLICT (project_id, snapshot_date) DO UPDATE SET
 total_scans = EXCLUDED.total_scans,
 completed_scans = EXCLUDED.completed_scans,
 total_violations = EXCLUDED.total_violations,
 critical_count = EXCLUDED.critical_count,
 serious_count = EXCLUDED.serious_count,
 moderate_count = EXCLUDED.moderate_count,
 minor_count = EXCLUDED.minor_count,
 average_risk_score = EXCLUDED.average_risk_score,
 accessibility_debt = EXCLUDED.accessibility_debt;`

// Store implements every repository port on top of one *sql.DB.
type Store struct {
	db *sql.DB
	d  Dialect
}

func New(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, d: d}
}

// DB exposes the handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// rebind rewrites ? placeholders for numbered dialects.
func (s *Store) rebind(q string) string {
	if !s.d.Numbered {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 16)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// placeholders returns "?,?,?" for n values.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

func utc(t time.Time) time.Time { return t.UTC() }

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time.UTC()
	return &t
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
