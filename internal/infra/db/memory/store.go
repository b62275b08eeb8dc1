// Package memory is an in-process store implementing every repository port.
// It backs the "memory" database driver and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bryanwahyu/lucy-scan/internal/domain/documents"
	"github.com/bryanwahyu/lucy-scan/internal/domain/history"
	"github.com/bryanwahyu/lucy-scan/internal/domain/projects"
	"github.com/bryanwahyu/lucy-scan/internal/domain/scanerrors"
	domain "github.com/bryanwahyu/lucy-scan/internal/domain/scans"
	"github.com/bryanwahyu/lucy-scan/internal/domain/schedules"
)

type snapshotKey struct {
	project string
	day     time.Time
}

type Store struct {
	mu sync.RWMutex

	owners       map[string]projects.Owner
	projects     map[string]projects.Project
	targets      map[domain.TargetID]domain.Target
	scans        map[domain.ScanID]domain.Scan
	violations   map[domain.ScanID][]domain.Violation
	reports      map[domain.ScanID]domain.Report
	remediated   map[string]history.RemediatedViolation
	snapshots    map[snapshotKey]history.ProjectSnapshot
	scanScheds   map[string]schedules.ScanSchedule
	reportScheds map[string]schedules.ReportSchedule
	errs         []scanerrors.ScanError
	docs         []documents.Document
}

func New() *Store {
	return &Store{
		owners:       map[string]projects.Owner{},
		projects:     map[string]projects.Project{},
		targets:      map[domain.TargetID]domain.Target{},
		scans:        map[domain.ScanID]domain.Scan{},
		violations:   map[domain.ScanID][]domain.Violation{},
		reports:      map[domain.ScanID]domain.Report{},
		remediated:   map[string]history.RemediatedViolation{},
		snapshots:    map[snapshotKey]history.ProjectSnapshot{},
		scanScheds:   map[string]schedules.ScanSchedule{},
		reportScheds: map[string]schedules.ReportSchedule{},
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyCadence(c schedules.Cadence) schedules.Cadence {
	c.DayOfWeek = copyInt(c.DayOfWeek)
	c.DayOfMonth = copyInt(c.DayOfMonth)
	c.MonthOfQuarter = copyInt(c.MonthOfQuarter)
	return c
}

// ---- owners & projects ----

func (s *Store) CreateOwner(_ context.Context, o *projects.Owner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners[o.ID] = *o
	return nil
}

func (s *Store) GetOwner(_ context.Context, id string) (*projects.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.owners[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &o, nil
}

func (s *Store) OwnerByAPIKey(_ context.Context, key string) (*projects.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.owners {
		if key != "" && o.APIKey == key {
			o := o
			return &o, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) CreateProject(_ context.Context, p *projects.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = *p
	return nil
}

func (s *Store) GetProject(_ context.Context, id string) (*projects.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (s *Store) ListProjectsByOwner(_ context.Context, ownerID string) ([]*projects.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*projects.Project
	for _, p := range s.projects {
		if p.OwnerID == ownerID {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ---- targets ----

func (s *Store) CreateTarget(_ context.Context, t *domain.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := *t
	if v.Status == "" {
		v.Status = domain.TargetIdle
	}
	v.LastScanAt = copyTime(t.LastScanAt)
	s.targets[t.ID] = v
	return nil
}

func (s *Store) GetTarget(_ context.Context, id domain.TargetID) (*domain.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.targets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	t.LastScanAt = copyTime(t.LastScanAt)
	return &t, nil
}

func (s *Store) AcquireTarget(_ context.Context, id domain.TargetID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if t.Status == domain.TargetScanning {
		return false, nil
	}
	t.Status = domain.TargetScanning
	s.targets[id] = t
	return true, nil
}

func (s *Store) UpdateTargetStatus(_ context.Context, id domain.TargetID, status domain.TargetStatus, lastScanAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.Status = status
	if lastScanAt != nil {
		t.LastScanAt = copyTime(lastScanAt)
	}
	s.targets[id] = t
	return nil
}

func (s *Store) ListTargetsByProject(_ context.Context, projectID string) ([]*domain.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Target
	for _, t := range s.targets {
		if t.ProjectID == projectID {
			t := t
			t.LastScanAt = copyTime(t.LastScanAt)
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ReplaceTargetStatus(_ context.Context, from, to domain.TargetStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, t := range s.targets {
		if t.Status == from {
			t.Status = to
			s.targets[id] = t
			n++
		}
	}
	return n, nil
}

// ---- scans ----

func (s *Store) CreateScan(_ context.Context, sc *domain.Scan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := *sc
	v.FinishedAt = copyTime(sc.FinishedAt)
	s.scans[sc.ID] = v
	return nil
}

func (s *Store) GetScan(_ context.Context, id domain.ScanID) (*domain.Scan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	sc.FinishedAt = copyTime(sc.FinishedAt)
	return &sc, nil
}

func (s *Store) FinishScan(_ context.Context, id domain.ScanID, status domain.Status, finishedAt time.Time, resultsJSON string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scans[id]
	if !ok {
		return domain.ErrNotFound
	}
	sc.Status = status
	sc.FinishedAt = &finishedAt
	sc.ResultsJSON = resultsJSON
	s.scans[id] = sc
	return nil
}

func (s *Store) ListScansByStatus(_ context.Context, status domain.Status) ([]*domain.Scan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Scan
	for _, sc := range s.scans {
		if sc.Status == status {
			sc := sc
			sc.FinishedAt = copyTime(sc.FinishedAt)
			out = append(out, &sc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (s *Store) PreviousCompletedScan(_ context.Context, target domain.TargetID, exclude domain.ScanID) (*domain.Scan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *domain.Scan
	for _, sc := range s.scans {
		if sc.TargetID != target || sc.ID == exclude || sc.Status != domain.StatusCompleted {
			continue
		}
		if best == nil || sc.StartedAt.After(best.StartedAt) {
			sc := sc
			best = &sc
		}
	}
	return best, nil
}

func (s *Store) LatestCompletedScan(_ context.Context, projectID string) (*domain.Scan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *domain.Scan
	for _, sc := range s.scans {
		t, ok := s.targets[sc.TargetID]
		if !ok || t.ProjectID != projectID || sc.Status != domain.StatusCompleted || sc.FinishedAt == nil {
			continue
		}
		if best == nil || sc.FinishedAt.After(*best.FinishedAt) {
			sc := sc
			best = &sc
		}
	}
	return best, nil
}

func (s *Store) ScansForProjects(_ context.Context, projectIDs []string, from, to time.Time) ([]*domain.Scan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[string]bool, len(projectIDs))
	for _, id := range projectIDs {
		want[id] = true
	}
	var out []*domain.Scan
	for _, sc := range s.scans {
		t, ok := s.targets[sc.TargetID]
		if !ok || !want[t.ProjectID] {
			continue
		}
		if sc.StartedAt.Before(from) || (!to.IsZero() && !sc.StartedAt.Before(to)) {
			continue
		}
		sc := sc
		sc.FinishedAt = copyTime(sc.FinishedAt)
		out = append(out, &sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

// ---- violations & reports ----

func (s *Store) SaveViolations(_ context.Context, vs []domain.Violation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vs {
		s.violations[v.ScanID] = append(s.violations[v.ScanID], v)
	}
	return nil
}

func (s *Store) ListViolations(_ context.Context, scan domain.ScanID) ([]domain.Violation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Violation(nil), s.violations[scan]...), nil
}

func (s *Store) ListViolationsForScans(_ context.Context, ids []domain.ScanID) ([]domain.Violation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Violation
	for _, id := range ids {
		out = append(out, s.violations[id]...)
	}
	return out, nil
}

func (s *Store) SaveReport(_ context.Context, r *domain.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.ScanID] = *r
	return nil
}

func (s *Store) GetReport(_ context.Context, scan domain.ScanID) (*domain.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[scan]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &r, nil
}

func (s *Store) ListReportsForScans(_ context.Context, ids []domain.ScanID) ([]*domain.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Report
	for _, id := range ids {
		if r, ok := s.reports[id]; ok {
			r := r
			out = append(out, &r)
		}
	}
	return out, nil
}

// ---- history ----

func copyRemediated(r history.RemediatedViolation) *history.RemediatedViolation {
	r.RegressedAt = copyTime(r.RegressedAt)
	if r.RegressionScanID != nil {
		id := *r.RegressionScanID
		r.RegressionScanID = &id
	}
	return &r
}

func (s *Store) CreateRemediated(_ context.Context, r *history.RemediatedViolation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remediated[r.ID] = *copyRemediated(*r)
	return nil
}

func (s *Store) OpenRemediated(_ context.Context, target domain.TargetID) ([]*history.RemediatedViolation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*history.RemediatedViolation
	for _, r := range s.remediated {
		if r.TargetID == target && !r.HasRegressed {
			out = append(out, copyRemediated(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RemediatedAt.Before(out[j].RemediatedAt) })
	return out, nil
}

func (s *Store) MarkRegressed(_ context.Context, id string, scan domain.ScanID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.remediated[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.HasRegressed = true
	r.RegressedAt = &at
	r.RegressionScanID = &scan
	s.remediated[id] = r
	return nil
}

func (s *Store) ListRemediatedByProjects(_ context.Context, projectIDs []string) ([]*history.RemediatedViolation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[string]bool, len(projectIDs))
	for _, id := range projectIDs {
		want[id] = true
	}
	var out []*history.RemediatedViolation
	for _, r := range s.remediated {
		if want[r.ProjectID] {
			out = append(out, copyRemediated(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RemediatedAt.After(out[j].RemediatedAt) })
	return out, nil
}

func (s *Store) UpsertSnapshot(_ context.Context, sn *history.ProjectSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := *sn
	v.SnapshotDate = history.DayStart(sn.SnapshotDate)
	s.snapshots[snapshotKey{sn.ProjectID, v.SnapshotDate}] = v
	return nil
}

func (s *Store) DeleteSnapshot(_ context.Context, projectID string, day time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, snapshotKey{projectID, history.DayStart(day)})
	return nil
}

func (s *Store) GetSnapshot(_ context.Context, projectID string, day time.Time) (*history.ProjectSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sn, ok := s.snapshots[snapshotKey{projectID, history.DayStart(day)}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &sn, nil
}

func (s *Store) ListSnapshots(_ context.Context, projectIDs []string, since time.Time) ([]*history.ProjectSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[string]bool, len(projectIDs))
	for _, id := range projectIDs {
		want[id] = true
	}
	var out []*history.ProjectSnapshot
	for k, sn := range s.snapshots {
		if want[k.project] && !k.day.Before(since) {
			sn := sn
			out = append(out, &sn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SnapshotDate.Before(out[j].SnapshotDate) })
	return out, nil
}

// ---- schedules ----

func (s *Store) CreateScanSchedule(_ context.Context, sc *schedules.ScanSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := *sc
	v.Cadence = copyCadence(sc.Cadence)
	v.LastRunAt = copyTime(sc.LastRunAt)
	s.scanScheds[sc.ID] = v
	return nil
}

func (s *Store) GetScanSchedule(_ context.Context, id string) (*schedules.ScanSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scanScheds[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	sc.Cadence = copyCadence(sc.Cadence)
	sc.LastRunAt = copyTime(sc.LastRunAt)
	return &sc, nil
}

func (s *Store) listScanSchedules(keep func(schedules.ScanSchedule) bool, less func(a, b *schedules.ScanSchedule) bool) []*schedules.ScanSchedule {
	var out []*schedules.ScanSchedule
	for _, sc := range s.scanScheds {
		if keep(sc) {
			sc := sc
			sc.Cadence = copyCadence(sc.Cadence)
			sc.LastRunAt = copyTime(sc.LastRunAt)
			out = append(out, &sc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func (s *Store) ListScanSchedules(_ context.Context, target domain.TargetID) ([]*schedules.ScanSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listScanSchedules(
		func(sc schedules.ScanSchedule) bool { return sc.TargetID == target },
		func(a, b *schedules.ScanSchedule) bool { return a.CreatedAt.Before(b.CreatedAt) },
	), nil
}

func (s *Store) DeleteScanSchedule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scanScheds[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.scanScheds, id)
	return nil
}

func (s *Store) DueScanSchedules(_ context.Context, now time.Time) ([]*schedules.ScanSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listScanSchedules(
		func(sc schedules.ScanSchedule) bool { return sc.Enabled && !sc.NextRunAt.After(now) },
		func(a, b *schedules.ScanSchedule) bool { return a.NextRunAt.Before(b.NextRunAt) },
	), nil
}

func (s *Store) MarkScanScheduleRun(_ context.Context, id string, lastRunAt, nextRunAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scanScheds[id]
	if !ok {
		return domain.ErrNotFound
	}
	sc.LastRunAt = &lastRunAt
	sc.NextRunAt = nextRunAt
	s.scanScheds[id] = sc
	return nil
}

func copyReportSchedule(rs schedules.ReportSchedule) *schedules.ReportSchedule {
	rs.Cadence = copyCadence(rs.Cadence)
	rs.LastRunAt = copyTime(rs.LastRunAt)
	rs.RecipientEmails = append([]string(nil), rs.RecipientEmails...)
	return &rs
}

func (s *Store) CreateReportSchedule(_ context.Context, rs *schedules.ReportSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reportScheds[rs.ID] = *copyReportSchedule(*rs)
	return nil
}

func (s *Store) ListReportSchedules(_ context.Context, projectID string) ([]*schedules.ReportSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*schedules.ReportSchedule
	for _, rs := range s.reportScheds {
		if rs.ProjectID == projectID {
			out = append(out, copyReportSchedule(rs))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DueReportSchedules(_ context.Context, now time.Time) ([]*schedules.ReportSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*schedules.ReportSchedule
	for _, rs := range s.reportScheds {
		if rs.Enabled && !rs.NextRunAt.After(now) {
			out = append(out, copyReportSchedule(rs))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRunAt.Before(out[j].NextRunAt) })
	return out, nil
}

func (s *Store) MarkReportScheduleRun(_ context.Context, id string, lastRunAt, nextRunAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.reportScheds[id]
	if !ok {
		return domain.ErrNotFound
	}
	rs.LastRunAt = &lastRunAt
	rs.NextRunAt = nextRunAt
	s.reportScheds[id] = rs
	return nil
}

func (s *Store) SetReportScheduleStatus(_ context.Context, id, status, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.reportScheds[id]
	if !ok {
		return domain.ErrNotFound
	}
	rs.LastStatus = status
	rs.LastError = lastError
	s.reportScheds[id] = rs
	return nil
}

// GetReportSchedule is a test helper; the port has no single-row read.
func (s *Store) GetReportSchedule(id string) (*schedules.ReportSchedule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.reportScheds[id]
	if !ok {
		return nil, false
	}
	return copyReportSchedule(rs), true
}

// ---- errors & documents ----

func (s *Store) SaveError(_ context.Context, e *scanerrors.ScanError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, *e)
	return nil
}

func (s *Store) ListErrorsByScan(_ context.Context, scanID string, limit int) ([]*scanerrors.ScanError, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var out []*scanerrors.ScanError
	for i := len(s.errs) - 1; i >= 0 && len(out) < limit; i-- {
		if s.errs[i].ScanID == scanID {
			e := s.errs[i]
			out = append(out, &e)
		}
	}
	return out, nil
}

func (s *Store) SaveDocument(_ context.Context, d *documents.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, *d)
	return nil
}

func (s *Store) ListDocuments(_ context.Context, projectID string, limit int) ([]*documents.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var out []*documents.Document
	for i := len(s.docs) - 1; i >= 0 && len(out) < limit; i-- {
		if s.docs[i].ProjectID == projectID {
			d := s.docs[i]
			out = append(out, &d)
		}
	}
	return out, nil
}
