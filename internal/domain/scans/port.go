package scans

import (
	"context"
	"time"
)

// Repository port (interface untuk persistence). Lookups of missing rows
// return ErrNotFound.
type Repository interface {
	CreateTarget(ctx context.Context, t *Target) error
	GetTarget(ctx context.Context, id TargetID) (*Target, error)
	// AcquireTarget flips the target to scanning only if it is not scanning
	// already. It reports whether this caller won the lease.
	AcquireTarget(ctx context.Context, id TargetID) (bool, error)
	UpdateTargetStatus(ctx context.Context, id TargetID, status TargetStatus, lastScanAt *time.Time) error
	ListTargetsByProject(ctx context.Context, projectID string) ([]*Target, error)
	// ReplaceTargetStatus moves every target in status from to status to and
	// returns how many changed.
	ReplaceTargetStatus(ctx context.Context, from, to TargetStatus) (int64, error)

	CreateScan(ctx context.Context, s *Scan) error
	GetScan(ctx context.Context, id ScanID) (*Scan, error)
	FinishScan(ctx context.Context, id ScanID, status Status, finishedAt time.Time, resultsJSON string) error
	ListScansByStatus(ctx context.Context, status Status) ([]*Scan, error)
	// PreviousCompletedScan is the newest completed scan of the target by
	// started_at, other than exclude. Nil when there is none.
	PreviousCompletedScan(ctx context.Context, target TargetID, exclude ScanID) (*Scan, error)
	// LatestCompletedScan is the project's most recently finished completed
	// scan. Nil when there is none.
	LatestCompletedScan(ctx context.Context, projectID string) (*Scan, error)
	// ScansForProjects lists scans of the projects' targets started in
	// [from, to). A zero to leaves the range open.
	ScansForProjects(ctx context.Context, projectIDs []string, from, to time.Time) ([]*Scan, error)

	SaveViolations(ctx context.Context, vs []Violation) error
	ListViolations(ctx context.Context, scan ScanID) ([]Violation, error)
	ListViolationsForScans(ctx context.Context, ids []ScanID) ([]Violation, error)

	SaveReport(ctx context.Context, r *Report) error
	GetReport(ctx context.Context, scan ScanID) (*Report, error)
	ListReportsForScans(ctx context.Context, ids []ScanID) ([]*Report, error)
}

// Browser port: opens an isolated, navigated page.
type Browser interface {
	Open(ctx context.Context, url string) (Page, error)
}

// Page is a loaded document. Close releases the whole browser context and is
// safe to call more than once.
type Page interface {
	Evaluate(ctx context.Context, expr string, out any) error
	// Poll waits until expr is truthy and decodes its value into out.
	Poll(ctx context.Context, expr string, out any) error
	Close() error
}

// Engine port: runs the accessibility ruleset against a loaded page.
type Engine interface {
	Analyze(ctx context.Context, p Page) (EngineResult, error)
}

// ArtifactStore port (interface untuk penyimpanan artefak)
type ArtifactStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// Notifier sends owner-facing emails. Callers treat failures as non-fatal.
type Notifier interface {
	ScanComplete(ctx context.Context, to string, m ScanCompleteEmail) error
	ScanError(ctx context.Context, to string, m ScanErrorEmail) error
	ReportReady(ctx context.Context, to string, m ReportReadyEmail) error
}

// ScanCompleteEmail fields
type ScanCompleteEmail struct {
	UserName    string
	ProjectName string
	URL         string
	Counts      SeverityCounts
	RiskScore   int
	ScanURL     string
}

// ScanErrorEmail fields
type ScanErrorEmail struct {
	UserName    string
	ProjectName string
	URL         string
	Error       string
}

// ReportReadyEmail fields
type ReportReadyEmail struct {
	ProjectName string
	ReportType  string
	Title       string
	Frequency   string
	DownloadURL string
	GeneratedAt time.Time
}

// StatusEvent is published on every scan lifecycle transition.
type StatusEvent struct {
	ScanID    ScanID    `json:"scan_id"`
	TargetID  TargetID  `json:"target_id"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	RiskScore *int      `json:"risk_score,omitempty"`
	At        time.Time `json:"at"`
}

// EventPublisher fans status events out to interested listeners.
type EventPublisher interface {
	Publish(e StatusEvent)
}
