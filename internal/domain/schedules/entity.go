package schedules

import (
	"time"

	"github.com/bryanwahyu/lucy-scan/internal/domain/scans"
)

// Frequency enum
type Frequency string

const (
	Daily     Frequency = "daily"
	Weekly    Frequency = "weekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
)

// Report types a report schedule can produce
const (
	ReportExecutiveSummary = "executive_summary"
	ReportAnalyticsPDF     = "analytics_pdf"
	ReportScanCSV          = "scan_csv"
)

// Report schedule run outcomes
const (
	RunSuccess = "success"
	RunError   = "error"
)

// Cadence is the recurrence shared by scan and report schedules.
type Cadence struct {
	Frequency      Frequency `json:"frequency"`
	TimeOfDay      string    `json:"time_of_day"` // HH:MM
	DayOfWeek      *int      `json:"day_of_week,omitempty"`
	DayOfMonth     *int      `json:"day_of_month,omitempty"`
	MonthOfQuarter *int      `json:"month_of_quarter,omitempty"`
	Timezone       string    `json:"timezone,omitempty"` // IANA name, UTC when empty
}

// ScanSchedule re-runs a target's scan on a cadence.
type ScanSchedule struct {
	ID       string         `json:"id"`
	TargetID scans.TargetID `json:"target_id"`
	Cadence
	Enabled   bool       `json:"enabled"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt time.Time  `json:"next_run_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// ReportSchedule produces a report for a project on a cadence.
type ReportSchedule struct {
	ID         string `json:"id"`
	ProjectID  string `json:"project_id"`
	CreatorID  string `json:"creator_id"`
	ReportType string `json:"report_type"`
	Cadence
	RecipientEmails []string   `json:"recipient_emails"`
	IncludeOwner    bool       `json:"include_owner"`
	Enabled         bool       `json:"enabled"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	NextRunAt       time.Time  `json:"next_run_at"`
	LastStatus      string     `json:"last_status,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
