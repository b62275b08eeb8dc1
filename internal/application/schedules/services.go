package schedules

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/lucy-scan/internal/application"
	"github.com/bryanwahyu/lucy-scan/internal/domain/projects"
	"github.com/bryanwahyu/lucy-scan/internal/domain/scans"
	domain "github.com/bryanwahyu/lucy-scan/internal/domain/schedules"
)

// DefaultInterval is the poll period when none is configured.
const DefaultInterval = 5 * time.Minute

// Service owns schedule management and the due-schedule poller.
type Service struct {
	Repo     domain.Repository
	Scans    scans.Repository
	Projects projects.Repository
	Runner   domain.ScanRunner
	Reports  domain.ReportRunner
	Clock    application.Clock
	Logger   *slog.Logger
	Interval time.Duration
	// RunTimeout bounds one fired scan start or report generation.
	RunTimeout time.Duration

	inflight sync.WaitGroup
}

//
// ==== MANAGEMENT ====
//

type CreateScanScheduleCommand struct {
	domain.Cadence
	Enabled *bool `json:"enabled,omitempty"`
}

func (s *Service) CreateScanSchedule(ctx context.Context, ownerID string, targetID scans.TargetID, cmd CreateScanScheduleCommand) (*domain.ScanSchedule, error) {
	if _, err := s.ownedTarget(ctx, ownerID, targetID); err != nil {
		return nil, err
	}
	now := s.now()
	next, err := domain.NextScanRun(cmd.Cadence, now)
	if err != nil {
		return nil, err
	}
	sc := &domain.ScanSchedule{
		ID:        uuid.New().String(),
		TargetID:  targetID,
		Cadence:   cmd.Cadence,
		Enabled:   cmd.Enabled == nil || *cmd.Enabled,
		NextRunAt: next,
		CreatedAt: now,
	}
	if err := s.Repo.CreateScanSchedule(ctx, sc); err != nil {
		return nil, err
	}
	return sc, nil
}

func (s *Service) ListScanSchedules(ctx context.Context, ownerID string, targetID scans.TargetID) ([]*domain.ScanSchedule, error) {
	if _, err := s.ownedTarget(ctx, ownerID, targetID); err != nil {
		return nil, err
	}
	out, err := s.Repo.ListScanSchedules(ctx, targetID)
	if out == nil && err == nil {
		out = []*domain.ScanSchedule{}
	}
	return out, err
}

func (s *Service) DeleteScanSchedule(ctx context.Context, ownerID, id string) error {
	sc, err := s.Repo.GetScanSchedule(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.ownedTarget(ctx, ownerID, sc.TargetID); err != nil {
		return err
	}
	return s.Repo.DeleteScanSchedule(ctx, id)
}

type CreateReportScheduleCommand struct {
	domain.Cadence
	ReportType      string   `json:"report_type"`
	RecipientEmails []string `json:"recipient_emails"`
	IncludeOwner    *bool    `json:"include_owner,omitempty"`
	Enabled         *bool    `json:"enabled,omitempty"`
}

func (s *Service) CreateReportSchedule(ctx context.Context, ownerID, projectID string, cmd CreateReportScheduleCommand) (*domain.ReportSchedule, error) {
	if _, err := s.ownedProject(ctx, ownerID, projectID); err != nil {
		return nil, err
	}
	switch cmd.ReportType {
	case domain.ReportExecutiveSummary, domain.ReportAnalyticsPDF, domain.ReportScanCSV:
	default:
		return nil, fmt.Errorf("%w: unknown report type %q", domain.ErrInvalidCadence, cmd.ReportType)
	}
	recipients := make([]string, 0, len(cmd.RecipientEmails))
	for _, r := range cmd.RecipientEmails {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, err := mail.ParseAddress(r); err != nil {
			return nil, fmt.Errorf("%w: bad recipient %q", domain.ErrInvalidCadence, r)
		}
		recipients = append(recipients, r)
	}
	now := s.now()
	next, err := domain.NextReportRun(cmd.Cadence, now)
	if err != nil {
		return nil, err
	}
	rs := &domain.ReportSchedule{
		ID:              uuid.New().String(),
		ProjectID:       projectID,
		CreatorID:       ownerID,
		ReportType:      cmd.ReportType,
		Cadence:         cmd.Cadence,
		RecipientEmails: recipients,
		IncludeOwner:    cmd.IncludeOwner == nil || *cmd.IncludeOwner,
		Enabled:         cmd.Enabled == nil || *cmd.Enabled,
		NextRunAt:       next,
		CreatedAt:       now,
	}
	if err := s.Repo.CreateReportSchedule(ctx, rs); err != nil {
		return nil, err
	}
	return rs, nil
}

func (s *Service) ListReportSchedules(ctx context.Context, ownerID, projectID string) ([]*domain.ReportSchedule, error) {
	if _, err := s.ownedProject(ctx, ownerID, projectID); err != nil {
		return nil, err
	}
	out, err := s.Repo.ListReportSchedules(ctx, projectID)
	if out == nil && err == nil {
		out = []*domain.ReportSchedule{}
	}
	return out, err
}

func (s *Service) ownedProject(ctx context.Context, ownerID, projectID string) (*projects.Project, error) {
	p, err := s.Projects.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != ownerID {
		return nil, scans.ErrForbidden
	}
	return p, nil
}

func (s *Service) ownedTarget(ctx context.Context, ownerID string, id scans.TargetID) (*scans.Target, error) {
	t, err := s.Scans.GetTarget(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedProject(ctx, ownerID, t.ProjectID); err != nil {
		return nil, err
	}
	return t, nil
}

//
// ==== POLLER ====
//

// RunScheduledScans advances every due scan schedule and starts its scan in
// the background. It returns how many scans were fired.
func (s *Service) RunScheduledScans(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.Repo.DueScanSchedules(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("due scan schedules: %w", err)
	}
	fired := 0
	for _, sc := range due {
		log := s.logger().With("schedule_id", sc.ID, "target_id", sc.TargetID)
		next, err := domain.NextScanRun(sc.Cadence, now)
		if err != nil {
			log.Error("compute next run", "error", err)
			continue
		}
		target, err := s.Scans.GetTarget(ctx, sc.TargetID)
		if err != nil {
			log.Error("load target", "error", err)
			continue
		}
		if err := s.Repo.MarkScanScheduleRun(ctx, sc.ID, now, next); err != nil {
			log.Error("advance schedule", "error", err)
			continue
		}
		if target.Status == scans.TargetScanning {
			log.Info("target already scanning, skipped", "next_run_at", next)
			continue
		}
		fired++
		s.fire(func(ctx context.Context) {
			id, err := s.Runner.RunScheduled(ctx, sc.TargetID)
			if err != nil {
				log.Error("scheduled scan", "error", err)
				return
			}
			log.Info("scheduled scan started", "scan_id", id, "next_run_at", next)
		})
	}
	return fired, nil
}

// RunScheduledReports advances every due report schedule and generates the
// report in the background, recording the outcome on the schedule.
func (s *Service) RunScheduledReports(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.Repo.DueReportSchedules(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("due report schedules: %w", err)
	}
	fired := 0
	for _, rs := range due {
		log := s.logger().With("schedule_id", rs.ID, "project_id", rs.ProjectID, "report_type", rs.ReportType)
		next, err := domain.NextReportRun(rs.Cadence, now)
		if err != nil {
			log.Error("compute next run", "error", err)
			s.setStatus(ctx, rs.ID, domain.RunError, err.Error())
			continue
		}
		if err := s.Repo.MarkReportScheduleRun(ctx, rs.ID, now, next); err != nil {
			log.Error("advance schedule", "error", err)
			continue
		}
		fired++
		s.fire(func(ctx context.Context) {
			if err := s.Reports.Generate(ctx, rs); err != nil {
				log.Error("scheduled report", "error", err)
				s.setStatus(ctx, rs.ID, domain.RunError, err.Error())
				return
			}
			s.setStatus(ctx, rs.ID, domain.RunSuccess, "")
			log.Info("scheduled report sent", "next_run_at", next)
		})
	}
	return fired, nil
}

// Start polls immediately and then on every interval until ctx is done,
// then waits for work it fired.
func (s *Service) Start(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	s.logger().Info("scheduler started", "interval", interval)
	s.tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Wait()
			s.logger().Info("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Wait blocks until fired runs have returned.
func (s *Service) Wait() { s.inflight.Wait() }

func (s *Service) tick(ctx context.Context) {
	if _, err := s.RunScheduledScans(ctx); err != nil {
		s.logger().Error("scheduled scans poll", "error", err)
	}
	if _, err := s.RunScheduledReports(ctx); err != nil {
		s.logger().Error("scheduled reports poll", "error", err)
	}
}

// fire runs fn detached from the poll context.
func (s *Service) fire(fn func(ctx context.Context)) {
	timeout := s.RunTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		fn(ctx)
	}()
}

func (s *Service) setStatus(ctx context.Context, id, status, msg string) {
	if err := s.Repo.SetReportScheduleStatus(ctx, id, status, msg); err != nil {
		s.logger().Error("record report schedule status", "schedule_id", id, "error", err)
	}
}

func (s *Service) now() time.Time { return application.Or(s.Clock).Now().UTC() }

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
