package history

import (
	"time"

	"github.com/bryanwahyu/lucy-scan/internal/domain/scans"
)

// RemediatedViolation tracks a rule code that disappeared from a target and,
// possibly, came back later.
type RemediatedViolation struct {
	ID               string          `json:"id"`
	ProjectID        string          `json:"project_id"`
	TargetID         scans.TargetID  `json:"target_id"`
	Code             string          `json:"code"`
	Description      string          `json:"description"`
	Severity         scans.Severity  `json:"severity"`
	WCAGLevel        scans.WCAGLevel `json:"wcag_level"`
	LastSeenAt       time.Time       `json:"last_seen_at"`
	RemediatedAt     time.Time       `json:"remediated_at"`
	HasRegressed     bool            `json:"has_regressed"`
	RegressedAt      *time.Time      `json:"regressed_at,omitempty"`
	RegressionScanID *scans.ScanID   `json:"regression_scan_id,omitempty"`
}

// ProjectSnapshot is the rollup of one project's completed scans on one UTC day.
type ProjectSnapshot struct {
	ProjectID         string    `json:"project_id"`
	SnapshotDate      time.Time `json:"snapshot_date"`
	TotalScans        int       `json:"total_scans"`
	CompletedScans    int       `json:"completed_scans"`
	TotalViolations   int       `json:"total_violations"`
	CriticalCount     int       `json:"critical_count"`
	SeriousCount      int       `json:"serious_count"`
	ModerateCount     int       `json:"moderate_count"`
	MinorCount        int       `json:"minor_count"`
	AverageRiskScore  int       `json:"average_risk_score"`
	AccessibilityDebt int       `json:"accessibility_debt"`
}

// Counts returns the snapshot's severity buckets.
func (s *ProjectSnapshot) Counts() scans.SeverityCounts {
	return scans.SeverityCounts{
		Critical: s.CriticalCount,
		Serious:  s.SeriousCount,
		Moderate: s.ModerateCount,
		Minor:    s.MinorCount,
		Total:    s.TotalViolations,
	}
}
