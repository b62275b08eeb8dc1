package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/lucy-scan/internal/application"
	"github.com/bryanwahyu/lucy-scan/internal/domain/documents"
	"github.com/bryanwahyu/lucy-scan/internal/domain/history"
	"github.com/bryanwahyu/lucy-scan/internal/domain/projects"
	"github.com/bryanwahyu/lucy-scan/internal/domain/scans"
	"github.com/bryanwahyu/lucy-scan/internal/domain/schedules"
)

// DefaultLinkExpiry is how long emailed download links stay valid.
const DefaultLinkExpiry = 7 * 24 * time.Hour

// ErrNoCompletedScan is returned for scan based reports on a project that
// has never finished a scan.
var ErrNoCompletedScan = errors.New("project has no completed scan")

// ErrNoStorage means reports cannot be kept because no object store is set.
var ErrNoStorage = errors.New("object storage is not configured")

// AnalyticsSource serves per-project dashboard data.
type AnalyticsSource interface {
	ProjectAnalytics(ctx context.Context, projectID string, days int) (*history.Analytics, error)
}

// ScanSummary is what the executive summary and CSV export render.
type ScanSummary struct {
	ProjectName string
	URL         string
	Scan        *scans.Scan
	Report      *scans.Report
	Violations  []scans.Violation
	GeneratedAt time.Time
}

// Renderer turns report data into files.
type Renderer interface {
	ExecutiveSummary(s ScanSummary) ([]byte, error)
	AnalyticsReport(projectName string, a *history.Analytics, generatedAt time.Time) ([]byte, error)
	ViolationsCSV(s ScanSummary) ([]byte, error)
}

// Service generates scheduled reports and implements schedules.ReportRunner.
type Service struct {
	Scans      scans.Repository
	Projects   projects.Repository
	Documents  documents.Repository
	Analytics  AnalyticsSource
	Artifacts  scans.ArtifactStore
	Notifier   scans.Notifier
	Renderer   Renderer
	Clock      application.Clock
	Logger     *slog.Logger
	LinkExpiry time.Duration
	// AnalyticsDays is the window of analytics_pdf reports.
	AnalyticsDays int
}

type rendered struct {
	title       string
	ext         string
	contentType string
	data        []byte
}

// Generate renders the schedule's report, stores it and mails the link.
func (s *Service) Generate(ctx context.Context, rs *schedules.ReportSchedule) error {
	if s.Artifacts == nil {
		return ErrNoStorage
	}
	project, err := s.Projects.GetProject(ctx, rs.ProjectID)
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}
	owner, err := s.Projects.GetOwner(ctx, project.OwnerID)
	if err != nil {
		return fmt.Errorf("load owner: %w", err)
	}
	now := s.now()

	out, err := s.render(ctx, rs.ReportType, project, now)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("reports/%s/%s-%s.%s", project.ID, rs.ReportType, now.Format("20060102-150405"), out.ext)
	if _, err := s.Artifacts.Put(ctx, key, out.contentType, out.data); err != nil {
		return fmt.Errorf("upload report: %w", err)
	}
	doc := &documents.Document{
		ID:          uuid.New().String(),
		ProjectID:   project.ID,
		OwnerID:     owner.ID,
		Type:        rs.ReportType,
		Title:       out.title,
		ObjectKey:   key,
		ContentType: out.contentType,
		CreatedAt:   now,
	}
	if err := s.Documents.SaveDocument(ctx, doc); err != nil {
		return fmt.Errorf("save document: %w", err)
	}

	expiry := s.LinkExpiry
	if expiry <= 0 {
		expiry = DefaultLinkExpiry
	}
	link, err := s.Artifacts.PresignedURL(ctx, key, expiry)
	if err != nil {
		return fmt.Errorf("presign report: %w", err)
	}

	recipients := append([]string(nil), rs.RecipientEmails...)
	if rs.IncludeOwner && owner.Recipient() != "" {
		recipients = appendUnique(recipients, owner.Recipient())
	}
	if s.Notifier == nil {
		return nil
	}
	for _, to := range recipients {
		err := s.Notifier.ReportReady(ctx, to, scans.ReportReadyEmail{
			ProjectName: project.Name,
			ReportType:  rs.ReportType,
			Title:       out.title,
			Frequency:   string(rs.Frequency),
			DownloadURL: link,
			GeneratedAt: now,
		})
		if err != nil {
			s.logger().Warn("report email", "schedule_id", rs.ID, "to", to, "error", err)
		}
	}
	s.logger().Info("report generated", "schedule_id", rs.ID, "key", key, "recipients", len(recipients))
	return nil
}

func (s *Service) render(ctx context.Context, reportType string, project *projects.Project, now time.Time) (rendered, error) {
	switch reportType {
	case schedules.ReportExecutiveSummary:
		sum, err := s.latestScan(ctx, project, now)
		if err != nil {
			return rendered{}, err
		}
		data, err := s.Renderer.ExecutiveSummary(sum)
		if err != nil {
			return rendered{}, fmt.Errorf("render executive summary: %w", err)
		}
		return rendered{title: "Executive Summary - " + project.Name, ext: "pdf", contentType: "application/pdf", data: data}, nil

	case schedules.ReportAnalyticsPDF:
		days := s.AnalyticsDays
		if days <= 0 {
			days = 30
		}
		a, err := s.Analytics.ProjectAnalytics(ctx, project.ID, days)
		if err != nil {
			return rendered{}, fmt.Errorf("analytics: %w", err)
		}
		data, err := s.Renderer.AnalyticsReport(project.Name, a, now)
		if err != nil {
			return rendered{}, fmt.Errorf("render analytics: %w", err)
		}
		return rendered{title: "Analytics Report - " + project.Name, ext: "pdf", contentType: "application/pdf", data: data}, nil

	case schedules.ReportScanCSV:
		sum, err := s.latestScan(ctx, project, now)
		if err != nil {
			return rendered{}, err
		}
		data, err := s.Renderer.ViolationsCSV(sum)
		if err != nil {
			return rendered{}, fmt.Errorf("render csv: %w", err)
		}
		return rendered{title: "Violations Export - " + project.Name, ext: "csv", contentType: "text/csv", data: data}, nil
	}
	return rendered{}, fmt.Errorf("unknown report type %q", reportType)
}

func (s *Service) latestScan(ctx context.Context, project *projects.Project, now time.Time) (ScanSummary, error) {
	scan, err := s.Scans.LatestCompletedScan(ctx, project.ID)
	if err != nil {
		return ScanSummary{}, err
	}
	if scan == nil {
		return ScanSummary{}, ErrNoCompletedScan
	}
	target, err := s.Scans.GetTarget(ctx, scan.TargetID)
	if err != nil {
		return ScanSummary{}, err
	}
	vs, err := s.Scans.ListViolations(ctx, scan.ID)
	if err != nil {
		return ScanSummary{}, err
	}
	report, err := s.Scans.GetReport(ctx, scan.ID)
	if err != nil && !errors.Is(err, scans.ErrNotFound) {
		return ScanSummary{}, err
	}
	return ScanSummary{
		ProjectName: project.Name,
		URL:         target.URL,
		Scan:        scan,
		Report:      report,
		Violations:  vs,
		GeneratedAt: now,
	}, nil
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func (s *Service) now() time.Time { return application.Or(s.Clock).Now().UTC() }

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
