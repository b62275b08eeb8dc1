package sqlstore

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/lucy-scan/internal/domain/history"
	"github.com/bryanwahyu/lucy-scan/internal/domain/projects"
	domain "github.com/bryanwahyu/lucy-scan/internal/domain/scans"
)

func newMock(t *testing.T, d Dialect) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, d), mock
}

func TestRebind(t *testing.T) {
	pg := New(nil, Postgres)
	assert.Equal(t, "SELECT * FROM t WHERE a=$1 AND b IN ($2,$3)", pg.rebind("SELECT * FROM t WHERE a=? AND b IN (?,?)"))

	my := New(nil, MySQL)
	assert.Equal(t, "a=? AND b=?", my.rebind("a=? AND b=?"))

	assert.Equal(t, "?,?,?", placeholders(3))
	assert.Equal(t, "", placeholders(0))
}

func TestCreateProject_PostgresPlaceholders(t *testing.T) {
	s, mock := newMock(t, Postgres)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO a11y_projects (id, owner_id, name, created_at) VALUES ($1,$2,$3,$4);`)).
		WithArgs("p1", "o1", "Shop", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.CreateProject(context.Background(), &projects.Project{ID: "p1", OwnerID: "o1", Name: "Shop", CreatedAt: at})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProject_NotFound(t *testing.T) {
	s, mock := newMock(t, MySQL)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM a11y_projects WHERE id=?`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "name", "created_at"}))

	_, err := s.GetProject(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSnapshot_MySQL(t *testing.T) {
	s, mock := newMock(t, MySQL)
	day := time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC)

	mock.ExpectExec(`ON DUPLICATE KEY UPDATE`).
		WithArgs("p1", history.DayStart(day), 2, 1, 5, 1, 1, 2, 1, 48, 19).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpsertSnapshot(context.Background(), &history.ProjectSnapshot{
		ProjectID: "p1", SnapshotDate: day, TotalScans: 2, CompletedScans: 1, TotalViolations: 5,
		CriticalCount: 1, SeriousCount: 1, ModerateCount: 2, MinorCount: 1,
		AverageRiskScore: 48, AccessibilityDebt: 19,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSnapshot_PostgresOnConflict(t *testing.T) {
	s, mock := newMock(t, Postgres)

	mock.ExpectExec(regexp.QuoteMeta(`VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`) + `\s+ON CONFLICT \(project_id, snapshot_date\) DO UPDATE`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpsertSnapshot(context.Background(), &history.ProjectSnapshot{ProjectID: "p1", SnapshotDate: time.Now()})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireTarget_Busy(t *testing.T) {
	s, mock := newMock(t, Postgres)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE a11y_targets SET status=$1 WHERE id=$2 AND status<>$3;`)).
		WithArgs("scanning", "t1", "scanning").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM a11y_targets WHERE id=$1`)).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "project_id", "url", "status", "last_scan_at", "created_at"}).
			AddRow("t1", "p1", "https://shop.example", "scanning", nil, created))

	ok, err := s.AcquireTarget(context.Background(), "t1")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireTarget_Won(t *testing.T) {
	s, mock := newMock(t, MySQL)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE a11y_targets SET status=? WHERE id=? AND status<>?;`)).
		WithArgs("scanning", "t1", "scanning").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := s.AcquireTarget(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScansForProjects_OpenEnded(t *testing.T) {
	s, mock := newMock(t, Postgres)
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE t.project_id IN ($1,$2) AND s.started_at >= $3 ORDER BY`)).
		WithArgs("p1", "p2", from).
		WillReturnRows(sqlmock.NewRows([]string{"id", "target_id", "status", "started_at", "finished_at", "results_json"}).
			AddRow("s1", "t1", "completed", from.Add(time.Hour), from.Add(2*time.Hour), nil))

	out, err := s.ScansForProjects(context.Background(), []string{"p1", "p2"}, from, time.Time{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, domain.StatusCompleted, out[0].Status)
	require.NotNil(t, out[0].FinishedAt)
	assert.Empty(t, out[0].ResultsJSON)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveViolations_RollsBackOnError(t *testing.T) {
	s, mock := newMock(t, MySQL)
	now := time.Now()
	vs := []domain.Violation{
		domain.NewViolation("s1", domain.Violation{Code: "label"}, now),
		domain.NewViolation("s1", domain.Violation{Code: "region"}, now),
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO a11y_violations`)
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := s.SaveViolations(context.Background(), vs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "region")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveViolations_Empty(t *testing.T) {
	s, mock := newMock(t, MySQL)
	require.NoError(t, s.SaveViolations(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}
