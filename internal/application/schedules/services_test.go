package schedules

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/lucy-scan/internal/application"
	"github.com/bryanwahyu/lucy-scan/internal/domain/projects"
	"github.com/bryanwahyu/lucy-scan/internal/domain/scans"
	domain "github.com/bryanwahyu/lucy-scan/internal/domain/schedules"
	"github.com/bryanwahyu/lucy-scan/internal/infra/db/memory"
)

type fakeRunner struct {
	mu    sync.Mutex
	store *memory.Store
	fail  map[scans.TargetID]error
	ran   []scans.TargetID
	// next run of every schedule as seen when the scan started
	seenNext []time.Time
}

func (r *fakeRunner) RunScheduled(ctx context.Context, id scans.TargetID) (scans.ScanID, error) {
	list, _ := r.store.ListScanSchedules(ctx, id)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ran = append(r.ran, id)
	for _, sc := range list {
		r.seenNext = append(r.seenNext, sc.NextRunAt)
	}
	if err := r.fail[id]; err != nil {
		return "", err
	}
	return scans.ScanID("scan-" + string(id)), nil
}

func (r *fakeRunner) targets() []scans.TargetID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]scans.TargetID(nil), r.ran...)
}

type fakeReports struct {
	mu    sync.Mutex
	err   error
	calls []string
}

func (f *fakeReports) Generate(_ context.Context, rs *domain.ReportSchedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rs.ID)
	return f.err
}

type mutableClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *mutableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *mutableClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

var _ application.Clock = (*mutableClock)(nil)

type env struct {
	store   *memory.Store
	svc     *Service
	runner  *fakeRunner
	reports *fakeReports
	clock   *mutableClock
}

func intp(v int) *int { return &v }

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.CreateOwner(ctx, &projects.Owner{ID: "o1", Email: "o@example.com", APIKey: "k1"}))
	require.NoError(t, store.CreateOwner(ctx, &projects.Owner{ID: "o2", Email: "x@example.com", APIKey: "k2"}))
	require.NoError(t, store.CreateProject(ctx, &projects.Project{ID: "p1", OwnerID: "o1", Name: "Shop"}))
	for _, id := range []scans.TargetID{"t1", "t2", "t3"} {
		require.NoError(t, store.CreateTarget(ctx, &scans.Target{ID: id, ProjectID: "p1", URL: "https://" + string(id) + ".example", Status: scans.TargetIdle}))
	}
	// Monday
	clock := &mutableClock{t: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)}
	runner := &fakeRunner{store: store, fail: map[scans.TargetID]error{}}
	reports := &fakeReports{}
	return &env{
		store:   store,
		runner:  runner,
		reports: reports,
		clock:   clock,
		svc: &Service{
			Repo:     store,
			Scans:    store,
			Projects: store,
			Runner:   runner,
			Reports:  reports,
			Clock:    clock,
		},
	}
}

func daily(at string) CreateScanScheduleCommand {
	return CreateScanScheduleCommand{Cadence: domain.Cadence{Frequency: domain.Daily, TimeOfDay: at}}
}

func TestCreateScanSchedule(t *testing.T) {
	e := newEnv(t)
	sc, err := e.svc.CreateScanSchedule(context.Background(), "o1", "t1", daily("09:00"))
	require.NoError(t, err)
	assert.True(t, sc.Enabled)
	assert.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), sc.NextRunAt)
	assert.Nil(t, sc.LastRunAt)

	list, err := e.svc.ListScanSchedules(context.Background(), "o1", "t1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, sc.ID, list[0].ID)
}

func TestCreateScanSchedule_Errors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.CreateScanSchedule(ctx, "o2", "t1", daily("09:00"))
	assert.ErrorIs(t, err, scans.ErrForbidden)

	_, err = e.svc.CreateScanSchedule(ctx, "o1", "missing", daily("09:00"))
	assert.ErrorIs(t, err, scans.ErrNotFound)

	_, err = e.svc.CreateScanSchedule(ctx, "o1", "t1", daily("9am"))
	assert.ErrorIs(t, err, domain.ErrInvalidCadence)

	q := CreateScanScheduleCommand{Cadence: domain.Cadence{Frequency: domain.Quarterly, TimeOfDay: "09:00", MonthOfQuarter: intp(1)}}
	_, err = e.svc.CreateScanSchedule(ctx, "o1", "t1", q)
	assert.ErrorIs(t, err, domain.ErrInvalidCadence)
}

func TestDeleteScanSchedule(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	sc, err := e.svc.CreateScanSchedule(ctx, "o1", "t1", daily("09:00"))
	require.NoError(t, err)

	assert.ErrorIs(t, e.svc.DeleteScanSchedule(ctx, "o2", sc.ID), scans.ErrForbidden)
	require.NoError(t, e.svc.DeleteScanSchedule(ctx, "o1", sc.ID))
	_, err = e.store.GetScanSchedule(ctx, sc.ID)
	assert.ErrorIs(t, err, scans.ErrNotFound)
	assert.ErrorIs(t, e.svc.DeleteScanSchedule(ctx, "o1", sc.ID), scans.ErrNotFound)
}

func TestRunScheduledScans_AdvancesBeforeFiring(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	sc, err := e.svc.CreateScanSchedule(ctx, "o1", "t1", daily("09:00"))
	require.NoError(t, err)

	// not due yet
	n, err := e.svc.RunScheduledScans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	e.clock.Set(time.Date(2024, 1, 1, 9, 3, 0, 0, time.UTC))
	n, err = e.svc.RunScheduledScans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	e.svc.Wait()

	assert.Equal(t, []scans.TargetID{"t1"}, e.runner.targets())
	next := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, []time.Time{next}, e.runner.seenNext)

	stored, err := e.store.GetScanSchedule(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, next, stored.NextRunAt)
	require.NotNil(t, stored.LastRunAt)
	assert.Equal(t, time.Date(2024, 1, 1, 9, 3, 0, 0, time.UTC), *stored.LastRunAt)

	// same tick again fires nothing
	n, err = e.svc.RunScheduledScans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRunScheduledScans_FailureIsIsolated(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.svc.CreateScanSchedule(ctx, "o1", "t1", daily("09:00"))
	require.NoError(t, err)
	_, err = e.svc.CreateScanSchedule(ctx, "o1", "t2", daily("09:00"))
	require.NoError(t, err)
	e.runner.fail["t1"] = errors.New("browser down")

	e.clock.Set(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
	n, err := e.svc.RunScheduledScans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	e.svc.Wait()

	assert.ElementsMatch(t, []scans.TargetID{"t1", "t2"}, e.runner.targets())
	for _, id := range []scans.TargetID{"t1", "t2"} {
		list, err := e.store.ListScanSchedules(ctx, id)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), list[0].NextRunAt)
	}
}

func TestRunScheduledScans_SkipsScanningTarget(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	sc, err := e.svc.CreateScanSchedule(ctx, "o1", "t3", daily("09:00"))
	require.NoError(t, err)
	ok, err := e.store.AcquireTarget(ctx, "t3")
	require.NoError(t, err)
	require.True(t, ok)

	e.clock.Set(time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC))
	n, err := e.svc.RunScheduledScans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	e.svc.Wait()
	assert.Empty(t, e.runner.targets())

	stored, err := e.store.GetScanSchedule(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), stored.NextRunAt)
}

func TestRunScheduledScans_DisabledIsIgnored(t *testing.T) {
	e := newEnv(t)
	off := false
	cmd := daily("09:00")
	cmd.Enabled = &off
	_, err := e.svc.CreateScanSchedule(context.Background(), "o1", "t1", cmd)
	require.NoError(t, err)

	e.clock.Set(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
	n, err := e.svc.RunScheduledScans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func weeklyReport(reportType string, recipients ...string) CreateReportScheduleCommand {
	return CreateReportScheduleCommand{
		Cadence:         domain.Cadence{Frequency: domain.Weekly, TimeOfDay: "07:00", DayOfWeek: intp(1)},
		ReportType:      reportType,
		RecipientEmails: recipients,
	}
}

func TestCreateReportSchedule(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	rs, err := e.svc.CreateReportSchedule(ctx, "o1", "p1", weeklyReport(domain.ReportExecutiveSummary, " boss@example.com ", ""))
	require.NoError(t, err)
	assert.Equal(t, []string{"boss@example.com"}, rs.RecipientEmails)
	assert.True(t, rs.IncludeOwner)
	assert.Equal(t, "o1", rs.CreatorID)
	assert.Equal(t, time.Date(2024, 1, 8, 7, 0, 0, 0, time.UTC), rs.NextRunAt)

	list, err := e.svc.ListReportSchedules(ctx, "o1", "p1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = e.svc.CreateReportSchedule(ctx, "o1", "p1", weeklyReport("pie_chart"))
	assert.ErrorIs(t, err, domain.ErrInvalidCadence)
	_, err = e.svc.CreateReportSchedule(ctx, "o1", "p1", weeklyReport(domain.ReportScanCSV, "not-an-email"))
	assert.ErrorIs(t, err, domain.ErrInvalidCadence)
	_, err = e.svc.CreateReportSchedule(ctx, "o2", "p1", weeklyReport(domain.ReportScanCSV))
	assert.ErrorIs(t, err, scans.ErrForbidden)
}

func TestRunScheduledReports_RecordsOutcome(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rs, err := e.svc.CreateReportSchedule(ctx, "o1", "p1", weeklyReport(domain.ReportAnalyticsPDF))
	require.NoError(t, err)

	e.clock.Set(time.Date(2024, 1, 8, 7, 0, 0, 0, time.UTC))
	n, err := e.svc.RunScheduledReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	e.svc.Wait()

	stored, found := e.store.GetReportSchedule(rs.ID)
	require.True(t, found)
	assert.Equal(t, domain.RunSuccess, stored.LastStatus)
	assert.Empty(t, stored.LastError)
	assert.Equal(t, time.Date(2024, 1, 15, 7, 0, 0, 0, time.UTC), stored.NextRunAt)

	e.reports.err = errors.New("smtp refused")
	e.clock.Set(time.Date(2024, 1, 15, 7, 1, 0, 0, time.UTC))
	n, err = e.svc.RunScheduledReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	e.svc.Wait()

	stored, _ = e.store.GetReportSchedule(rs.ID)
	assert.Equal(t, domain.RunError, stored.LastStatus)
	assert.Equal(t, "smtp refused", stored.LastError)
	assert.Equal(t, time.Date(2024, 1, 22, 7, 0, 0, 0, time.UTC), stored.NextRunAt)
	assert.Len(t, e.reports.calls, 2)
}

func TestStart_StopsOnCancel(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.CreateScanSchedule(context.Background(), "o1", "t1", daily("09:00"))
	require.NoError(t, err)
	e.clock.Set(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	e.svc.Interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.svc.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(e.runner.targets()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
