package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/lucy-scan/internal/application"
	domain "github.com/bryanwahyu/lucy-scan/internal/domain/history"
	"github.com/bryanwahyu/lucy-scan/internal/domain/projects"
	"github.com/bryanwahyu/lucy-scan/internal/domain/scans"
)

// Analytics window bounds, in days.
const (
	DefaultDays = 30
	MaxDays     = 365
)

// Service keeps remediation history and snapshots, and serves analytics.
type Service struct {
	Scans    scans.Repository
	History  domain.Repository
	Projects projects.Repository
	Clock    application.Clock
	Logger   *slog.Logger
}

// DetectChanges compares the scan with the target's previous completed scan.
// Open records whose code shows up again are marked regressed; codes that
// disappeared get a new remediation record unless one is already open.
func (s *Service) DetectChanges(ctx context.Context, projectID string, target scans.TargetID, scan scans.ScanID, current []scans.Violation) error {
	now := s.now()

	open, err := s.History.OpenRemediated(ctx, target)
	if err != nil {
		return fmt.Errorf("list open remediations: %w", err)
	}
	present := map[string]struct{}{}
	for _, v := range current {
		present[v.Code] = struct{}{}
	}
	stillOpen := map[string]struct{}{}
	regressions := 0
	for _, r := range open {
		if _, back := present[r.Code]; back {
			if err := s.History.MarkRegressed(ctx, r.ID, scan, now); err != nil {
				return fmt.Errorf("mark regressed %s: %w", r.Code, err)
			}
			regressions++
			continue
		}
		stillOpen[r.Code] = struct{}{}
	}

	prev, err := s.Scans.PreviousCompletedScan(ctx, target, scan)
	if err != nil {
		return fmt.Errorf("previous scan: %w", err)
	}
	if prev == nil {
		return nil
	}
	prevVs, err := s.Scans.ListViolations(ctx, prev.ID)
	if err != nil {
		return fmt.Errorf("previous violations: %w", err)
	}

	delta := domain.Diff(prevVs, current)
	first := domain.FirstByCode(prevVs)
	created := 0
	for _, code := range delta.Remediated {
		if _, ok := stillOpen[code]; ok {
			continue
		}
		v := first[code]
		rec := &domain.RemediatedViolation{
			ID:           uuid.New().String(),
			ProjectID:    projectID,
			TargetID:     target,
			Code:         code,
			Description:  v.Description,
			Severity:     v.Severity,
			WCAGLevel:    v.WCAGLevel,
			LastSeenAt:   prev.StartedAt,
			RemediatedAt: now,
		}
		if err := s.History.CreateRemediated(ctx, rec); err != nil {
			return fmt.Errorf("record remediation %s: %w", code, err)
		}
		created++
	}
	if created > 0 || regressions > 0 {
		s.logger().Info("remediation history updated", "target_id", target, "scan_id", scan,
			"remediated", created, "regressed", regressions)
	}
	return nil
}

// UpsertSnapshot recomputes the project's rollup for the UTC day containing
// day. Running it twice writes the same row.
func (s *Service) UpsertSnapshot(ctx context.Context, projectID string, day time.Time) error {
	from := domain.DayStart(day)
	to := from.Add(24 * time.Hour)
	dayScans, err := s.Scans.ScansForProjects(ctx, []string{projectID}, from, to)
	if err != nil {
		return err
	}
	ids := completedIDs(dayScans)
	vs, err := s.Scans.ListViolationsForScans(ctx, ids)
	if err != nil {
		return err
	}
	reports, err := s.Scans.ListReportsForScans(ctx, ids)
	if err != nil {
		return err
	}
	snap := domain.BuildSnapshot(projectID, from, dayScans, vs, reports)
	if snap == nil {
		// a scan flipped to error can leave a row for a day that no longer has
		// completed scans
		return s.History.DeleteSnapshot(ctx, projectID, from)
	}
	return s.History.UpsertSnapshot(ctx, snap)
}

// GetAnalytics aggregates every project of the owner over the last days.
func (s *Service) GetAnalytics(ctx context.Context, ownerID string, days int) (*domain.Analytics, error) {
	ps, err := s.Projects.ListProjectsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.build(ctx, ps, days)
}

// ProjectAnalytics is GetAnalytics narrowed to one project.
func (s *Service) ProjectAnalytics(ctx context.Context, projectID string, days int) (*domain.Analytics, error) {
	p, err := s.Projects.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return s.build(ctx, []*projects.Project{p}, days)
}

// ClampDays applies the default and the upper bound to a requested window.
func ClampDays(days int) int {
	if days <= 0 {
		return DefaultDays
	}
	if days > MaxDays {
		return MaxDays
	}
	return days
}

func (s *Service) build(ctx context.Context, ps []*projects.Project, days int) (*domain.Analytics, error) {
	days = ClampDays(days)
	now := s.now()
	window := time.Duration(days) * 24 * time.Hour

	in := domain.AnalyticsInput{
		Now:          now,
		Days:         days,
		ProjectNames: map[string]string{},
		Targets:      map[scans.TargetID]*scans.Target{},
		Reports:      map[scans.ScanID]*scans.Report{},
	}
	ids := make([]string, 0, len(ps))
	for _, p := range ps {
		ids = append(ids, p.ID)
		in.ProjectNames[p.ID] = p.Name
		ts, err := s.Scans.ListTargetsByProject(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		for _, t := range ts {
			in.Targets[t.ID] = t
		}
	}
	if len(ids) == 0 {
		return domain.BuildAnalytics(in), nil
	}

	var err error
	if in.Current, err = s.Scans.ScansForProjects(ctx, ids, now.Add(-window), time.Time{}); err != nil {
		return nil, err
	}
	if in.Previous, err = s.Scans.ScansForProjects(ctx, ids, now.Add(-2*window), now.Add(-window)); err != nil {
		return nil, err
	}

	currentIDs := completedIDs(in.Current)
	allIDs := append(append([]scans.ScanID(nil), currentIDs...), completedIDs(in.Previous)...)
	reports, err := s.Scans.ListReportsForScans(ctx, allIDs)
	if err != nil {
		return nil, err
	}
	for _, r := range reports {
		in.Reports[r.ScanID] = r
	}
	if in.Violations, err = s.Scans.ListViolationsForScans(ctx, currentIDs); err != nil {
		return nil, err
	}
	if in.Snapshots, err = s.History.ListSnapshots(ctx, ids, domain.DayStart(now.Add(-domain.HistoricalWindow))); err != nil {
		return nil, err
	}
	if in.Remediated, err = s.History.ListRemediatedByProjects(ctx, ids); err != nil {
		return nil, err
	}
	return domain.BuildAnalytics(in), nil
}

func completedIDs(ss []*scans.Scan) []scans.ScanID {
	var ids []scans.ScanID
	for _, s := range ss {
		if s.Status == scans.StatusCompleted {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

func (s *Service) now() time.Time { return application.Or(s.Clock).Now().UTC() }

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
