package schedules

import (
	"context"
	"time"

	"github.com/bryanwahyu/lucy-scan/internal/domain/scans"
)

// Repository port for scan and report schedules
type Repository interface {
	CreateScanSchedule(ctx context.Context, s *ScanSchedule) error
	GetScanSchedule(ctx context.Context, id string) (*ScanSchedule, error)
	ListScanSchedules(ctx context.Context, target scans.TargetID) ([]*ScanSchedule, error)
	DeleteScanSchedule(ctx context.Context, id string) error
	DueScanSchedules(ctx context.Context, now time.Time) ([]*ScanSchedule, error)
	MarkScanScheduleRun(ctx context.Context, id string, lastRunAt, nextRunAt time.Time) error

	CreateReportSchedule(ctx context.Context, s *ReportSchedule) error
	ListReportSchedules(ctx context.Context, projectID string) ([]*ReportSchedule, error)
	DueReportSchedules(ctx context.Context, now time.Time) ([]*ReportSchedule, error)
	MarkReportScheduleRun(ctx context.Context, id string, lastRunAt, nextRunAt time.Time) error
	SetReportScheduleStatus(ctx context.Context, id, status, lastError string) error
}

// ScanRunner starts a scan on behalf of the scheduler.
type ScanRunner interface {
	RunScheduled(ctx context.Context, target scans.TargetID) (scans.ScanID, error)
}

// ReportRunner generates and distributes one scheduled report.
type ReportRunner interface {
	Generate(ctx context.Context, s *ReportSchedule) error
}
