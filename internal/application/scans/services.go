package scans

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/bryanwahyu/lucy-scan/internal/application"
	"github.com/bryanwahyu/lucy-scan/internal/domain/projects"
	"github.com/bryanwahyu/lucy-scan/internal/domain/scanerrors"
	domain "github.com/bryanwahyu/lucy-scan/internal/domain/scans"
)

// HistoryRecorder keeps remediation history and daily snapshots current.
type HistoryRecorder interface {
	DetectChanges(ctx context.Context, projectID string, target domain.TargetID, scan domain.ScanID, current []domain.Violation) error
	UpsertSnapshot(ctx context.Context, projectID string, day time.Time) error
}

// Metrics receives scan lifecycle counts.
type Metrics interface {
	ScanStarted()
	ScanFinished(failed bool, d time.Duration)
}

// Service implements use-cases untuk Scan.
// Artifacts, Notifier, Events and Metrics are optional.
type Service struct {
	Repo      domain.Repository
	Projects  projects.Repository
	Errors    scanerrors.Repository
	History   HistoryRecorder
	Browser   domain.Browser
	Engine    domain.Engine
	Pool      *Pool
	Artifacts domain.ArtifactStore
	Notifier  domain.Notifier
	Events    domain.EventPublisher
	Metrics   Metrics
	Clock     application.Clock
	Logger    *slog.Logger
	// BaseURL prefixes links in emails, e.g. https://lucy.example.com
	BaseURL string
}

//
// ==== USE CASES ====
//

type StartScanResult struct {
	ScanID domain.ScanID `json:"scan_id"`
	Status domain.Status `json:"status"`
}

// StartScan checks ownership, takes the target lease and queues the pipeline.
// It returns as soon as the scan row exists.
func (s *Service) StartScan(ctx context.Context, ownerID string, targetID domain.TargetID) (StartScanResult, error) {
	target, project, err := s.ownedTarget(ctx, ownerID, targetID)
	if err != nil {
		return StartScanResult{}, err
	}
	return s.start(ctx, target, project, false)
}

// RunScheduled starts a scan on behalf of the scheduler, without an owner check.
func (s *Service) RunScheduled(ctx context.Context, targetID domain.TargetID) (domain.ScanID, error) {
	target, err := s.Repo.GetTarget(ctx, targetID)
	if err != nil {
		return "", err
	}
	project, err := s.Projects.GetProject(ctx, target.ProjectID)
	if err != nil {
		return "", err
	}
	res, err := s.start(ctx, target, project, true)
	return res.ScanID, err
}

// GetScanDetails returns the scan, its violations (worst first) and report.
func (s *Service) GetScanDetails(ctx context.Context, ownerID string, id domain.ScanID) (*domain.ScanDetails, error) {
	scan, err := s.Repo.GetScan(ctx, id)
	if err != nil {
		return nil, err
	}
	target, _, err := s.ownedTarget(ctx, ownerID, scan.TargetID)
	if err != nil {
		return nil, err
	}
	vs, err := s.Repo.ListViolations(ctx, id)
	if err != nil {
		return nil, err
	}
	SortBySeverity(vs)
	report, err := s.Repo.GetReport(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		report, err = nil, nil
	}
	if err != nil {
		return nil, err
	}
	if vs == nil {
		vs = []domain.Violation{}
	}
	return &domain.ScanDetails{Scan: scan, URL: target.URL, Violations: vs, Report: report}, nil
}

// ListScanErrors returns recorded failures for an owned scan.
func (s *Service) ListScanErrors(ctx context.Context, ownerID string, id domain.ScanID, limit int) ([]*scanerrors.ScanError, error) {
	scan, err := s.Repo.GetScan(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.ownedTarget(ctx, ownerID, scan.TargetID); err != nil {
		return nil, err
	}
	return s.Errors.ListErrorsByScan(ctx, string(id), limit)
}

// SortBySeverity orders critical first; ties keep creation order.
func SortBySeverity(vs []domain.Violation) {
	sort.SliceStable(vs, func(i, j int) bool {
		ri, rj := vs[i].Severity.Rank(), vs[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return vs[i].CreatedAt.Before(vs[j].CreatedAt)
	})
}

func (s *Service) ownedTarget(ctx context.Context, ownerID string, id domain.TargetID) (*domain.Target, *projects.Project, error) {
	target, err := s.Repo.GetTarget(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	project, err := s.Projects.GetProject(ctx, target.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	if project.OwnerID != ownerID {
		return nil, nil, domain.ErrForbidden
	}
	return target, project, nil
}

// errInterrupted marks scans a previous process left running.
var errInterrupted = errors.New("scan interrupted: service stopped before it finished")

// RecoverInterrupted fails every scan still marked running and frees targets
// left scanning. Run it at startup before the pool takes work; it assumes no
// other instance is scanning against the same store.
func (s *Service) RecoverInterrupted(ctx context.Context) (int, error) {
	running, err := s.Repo.ListScansByStatus(ctx, domain.StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("list running scans: %w", err)
	}
	n := 0
	for _, scan := range running {
		target, err := s.Repo.GetTarget(ctx, scan.TargetID)
		if err != nil {
			s.logger().Warn("interrupted scan without target", "scan_id", scan.ID, "error", err)
			continue
		}
		project, err := s.Projects.GetProject(ctx, target.ProjectID)
		if err != nil {
			s.logger().Warn("interrupted scan without project", "scan_id", scan.ID, "error", err)
			continue
		}
		s.fail(&scanJob{scan: scan, target: target, project: project}, scanerrors.PhaseInterrupted, errInterrupted)
		n++
	}

	// leases taken right before a crash may have no scan row
	released, err := s.Repo.ReplaceTargetStatus(ctx, domain.TargetScanning, domain.TargetError)
	if err != nil {
		return n, fmt.Errorf("release targets: %w", err)
	}
	if n > 0 || released > 0 {
		s.logger().Info("recovered interrupted scans", "scans", n, "targets_released", released)
	}
	return n, nil
}

//
// ==== PIPELINE ====
//

type scanJob struct {
	scan      *domain.Scan
	target    *domain.Target
	project   *projects.Project
	scheduled bool
}

func (s *Service) start(ctx context.Context, target *domain.Target, project *projects.Project, scheduled bool) (StartScanResult, error) {
	ok, err := s.Repo.AcquireTarget(ctx, target.ID)
	if err != nil {
		return StartScanResult{}, err
	}
	if !ok {
		return StartScanResult{}, domain.ErrTargetBusy
	}

	scan := &domain.Scan{
		ID:        domain.ScanID(uuid.New().String()),
		TargetID:  target.ID,
		Status:    domain.StatusRunning,
		StartedAt: s.now(),
	}
	if err := s.Repo.CreateScan(ctx, scan); err != nil {
		// lease taken but no scan row to hang the failure on
		if uerr := s.Repo.UpdateTargetStatus(context.Background(), target.ID, domain.TargetError, nil); uerr != nil {
			s.logger().Error("release target after create failure", "target_id", target.ID, "error", uerr)
		}
		return StartScanResult{}, fmt.Errorf("create scan: %w", err)
	}
	if s.Metrics != nil {
		s.Metrics.ScanStarted()
	}
	s.publish(scan, target, domain.StatusRunning, "", nil)

	job := &scanJob{scan: scan, target: target, project: project, scheduled: scheduled}
	if err := s.Pool.Submit(func(ctx context.Context) { s.run(ctx, job) }); err != nil {
		s.fail(job, scanerrors.PhaseQueue, err)
		return StartScanResult{ScanID: scan.ID, Status: domain.StatusError}, err
	}
	s.logger().Info("scan queued", "scan_id", scan.ID, "target_id", target.ID, "url", target.URL, "scheduled", scheduled)
	return StartScanResult{ScanID: scan.ID, Status: domain.StatusRunning}, nil
}

// run executes the pipeline; any failure lands in fail exactly once.
func (s *Service) run(ctx context.Context, job *scanJob) {
	phase := scanerrors.PhaseNavigate
	defer func() {
		if r := recover(); r != nil {
			s.fail(job, phase, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := s.execute(ctx, job, &phase); err != nil {
		s.fail(job, phase, err)
	}
}

// resultsDoc is what lands in scans.results_json.
type resultsDoc struct {
	URL             string          `json:"url"`
	Timestamp       time.Time       `json:"timestamp"`
	Scheduled       bool            `json:"scheduled,omitempty"`
	Rules           int             `json:"rules,omitempty"`
	TotalViolations int             `json:"total_violations"`
	Passes          int             `json:"passes,omitempty"`
	Incomplete      int             `json:"incomplete,omitempty"`
	Inapplicable    int             `json:"inapplicable,omitempty"`
	RawObject       string          `json:"raw_object,omitempty"`
	Raw             json.RawMessage `json:"raw,omitempty"`
	Error           string          `json:"error,omitempty"`
}

func (s *Service) execute(ctx context.Context, job *scanJob, phase *string) error {
	scan, target, project := job.scan, job.target, job.project
	log := s.logger().With("scan_id", scan.ID, "target_id", target.ID)

	*phase = scanerrors.PhaseNavigate
	page, err := s.Browser.Open(ctx, target.URL)
	if err != nil {
		return fmt.Errorf("open %s: %w", target.URL, err)
	}
	defer page.Close()

	*phase = scanerrors.PhaseAnalyze
	res, err := s.Engine.Analyze(ctx, page)
	if cerr := page.Close(); cerr != nil {
		log.Warn("close page", "error", cerr)
	}
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}

	*phase = scanerrors.PhasePersist
	now := s.now()
	normalized := domain.Normalize(res.Violations)
	vs := make([]domain.Violation, 0, len(normalized))
	for _, v := range normalized {
		vs = append(vs, domain.NewViolation(scan.ID, v, now))
	}
	if err := s.Repo.SaveViolations(ctx, vs); err != nil {
		return fmt.Errorf("save violations: %w", err)
	}

	doc := resultsDoc{
		URL:             target.URL,
		Timestamp:       now,
		Scheduled:       job.scheduled,
		Rules:           len(res.Violations),
		TotalViolations: len(vs),
		Passes:          res.Passes,
		Incomplete:      res.Incomplete,
		Inapplicable:    res.Inapplicable,
	}
	if json.Valid(res.Raw) {
		doc.Raw = res.Raw
	}
	if s.Artifacts != nil && len(res.Raw) > 0 {
		key := fmt.Sprintf("raw/%s/%s.json", project.ID, scan.ID)
		if _, err := s.Artifacts.Put(ctx, key, "application/json", res.Raw); err != nil {
			log.Warn("upload raw results", "key", key, "error", err)
		} else {
			doc.RawObject = key
		}
	}
	if err := s.Repo.FinishScan(ctx, scan.ID, domain.StatusCompleted, now, marshalResults(doc)); err != nil {
		return fmt.Errorf("finish scan: %w", err)
	}

	report := domain.NewReport(scan.ID, vs, domain.CriteriaCount(res.Violations), now)
	if err := s.Repo.SaveReport(ctx, report); err != nil {
		return fmt.Errorf("save report: %w", err)
	}

	if s.History != nil {
		if err := s.History.UpsertSnapshot(ctx, project.ID, scan.StartedAt); err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		if err := s.History.DetectChanges(ctx, project.ID, target.ID, scan.ID, vs); err != nil {
			return fmt.Errorf("detect remediation: %w", err)
		}
	}

	finished := s.now()
	if err := s.Repo.UpdateTargetStatus(ctx, target.ID, domain.TargetCompleted, &finished); err != nil {
		return fmt.Errorf("update target: %w", err)
	}

	if s.Metrics != nil {
		s.Metrics.ScanFinished(false, finished.Sub(scan.StartedAt))
	}
	score := report.RiskScore
	s.publish(scan, target, domain.StatusCompleted, report.Summary, &score)
	log.Info("scan completed", "violations", report.Counts.Total, "risk_score", report.RiskScore)

	s.notifyComplete(ctx, job, report)
	return nil
}

// fail records the error state. It runs on a fresh context so a cancelled
// pipeline still gets its rows written.
func (s *Service) fail(job *scanJob, phase string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	scan, target := job.scan, job.target
	log := s.logger().With("scan_id", scan.ID, "target_id", target.ID, "phase", phase)
	log.Error("scan failed", "error", cause)

	now := s.now()
	msg := cause.Error()
	doc := resultsDoc{URL: target.URL, Timestamp: now, Scheduled: job.scheduled, Error: msg}
	if err := s.Repo.FinishScan(ctx, scan.ID, domain.StatusError, now, marshalResults(doc)); err != nil {
		log.Error("mark scan error", "error", err)
	}
	if err := s.Repo.UpdateTargetStatus(ctx, target.ID, domain.TargetError, nil); err != nil {
		log.Error("mark target error", "error", err)
	}
	if s.Errors != nil {
		rec := &scanerrors.ScanError{
			ID:        uuid.New().String(),
			ScanID:    string(scan.ID),
			TargetID:  string(target.ID),
			Phase:     phase,
			Message:   truncate(msg, 2000),
			CreatedAt: now,
		}
		if err := s.Errors.SaveError(ctx, rec); err != nil {
			log.Error("save scan error", "error", err)
		}
	}
	// the scan may already have been counted as completed in the day's rollup
	if s.History != nil {
		if err := s.History.UpsertSnapshot(ctx, job.project.ID, scan.StartedAt); err != nil {
			log.Error("refresh snapshot after failure", "error", err)
		}
	}
	if s.Metrics != nil {
		s.Metrics.ScanFinished(true, now.Sub(scan.StartedAt))
	}
	s.publish(scan, target, domain.StatusError, msg, nil)
	s.notifyError(ctx, job, msg)
}

func (s *Service) notifyComplete(ctx context.Context, job *scanJob, report *domain.Report) {
	owner := s.recipient(ctx, job.project)
	if owner == nil {
		return
	}
	want := owner.NotifyOnScanComplete
	if job.scheduled {
		want = owner.NotifyOnScheduledScan
	}
	if !want {
		return
	}
	err := s.Notifier.ScanComplete(ctx, owner.Recipient(), domain.ScanCompleteEmail{
		UserName:    owner.Name,
		ProjectName: job.project.Name,
		URL:         job.target.URL,
		Counts:      report.Counts,
		RiskScore:   report.RiskScore,
		ScanURL:     s.scanLink(job.scan.ID),
	})
	if err != nil {
		s.logger().Warn("scan complete email", "scan_id", job.scan.ID, "error", err)
	}
}

func (s *Service) notifyError(ctx context.Context, job *scanJob, msg string) {
	owner := s.recipient(ctx, job.project)
	if owner == nil || !owner.NotifyOnScanError {
		return
	}
	err := s.Notifier.ScanError(ctx, owner.Recipient(), domain.ScanErrorEmail{
		UserName:    owner.Name,
		ProjectName: job.project.Name,
		URL:         job.target.URL,
		Error:       msg,
	})
	if err != nil {
		s.logger().Warn("scan error email", "scan_id", job.scan.ID, "error", err)
	}
}

// recipient returns the owner when email notifications apply at all.
func (s *Service) recipient(ctx context.Context, project *projects.Project) *projects.Owner {
	if s.Notifier == nil {
		return nil
	}
	owner, err := s.Projects.GetOwner(ctx, project.OwnerID)
	if err != nil {
		s.logger().Warn("load owner for notification", "owner_id", project.OwnerID, "error", err)
		return nil
	}
	if !owner.ReceiveEmailNotifications || owner.Recipient() == "" {
		return nil
	}
	return owner
}

func (s *Service) publish(scan *domain.Scan, target *domain.Target, status domain.Status, msg string, score *int) {
	if s.Events == nil {
		return
	}
	s.Events.Publish(domain.StatusEvent{
		ScanID:    scan.ID,
		TargetID:  target.ID,
		Status:    status,
		Message:   msg,
		RiskScore: score,
		At:        s.now(),
	})
}

func (s *Service) scanLink(id domain.ScanID) string {
	return strings.TrimRight(s.BaseURL, "/") + "/v1/scans/" + string(id)
}

func (s *Service) now() time.Time { return application.Or(s.Clock).Now().UTC() }

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func marshalResults(doc resultsDoc) string {
	b, err := json.Marshal(doc)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
