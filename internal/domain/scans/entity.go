package scans

import (
	"time"
)

// ID types
type (
	ScanID      string
	TargetID    string
	ViolationID string
	ReportID    string
)

// TargetStatus enum
type TargetStatus string

const (
	TargetIdle      TargetStatus = "idle"
	TargetScanning  TargetStatus = "scanning"
	TargetCompleted TargetStatus = "completed"
	TargetError     TargetStatus = "error"
)

// Status enum (scan lifecycle)
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Severity is the impact label reported by the engine.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeveritySerious  Severity = "serious"
	SeverityModerate Severity = "moderate"
	SeverityMinor    Severity = "minor"
)

// Rank orders severities for display, higher is worse. Unknown labels rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeveritySerious:
		return 3
	case SeverityModerate:
		return 2
	case SeverityMinor:
		return 1
	default:
		return 0
	}
}

// Risk tier derived from severity
type Risk string

const (
	RiskHigh   Risk = "high"
	RiskMedium Risk = "medium"
	RiskLow    Risk = "low"
)

// WCAGLevel conformance tier
type WCAGLevel string

const (
	LevelA   WCAGLevel = "A"
	LevelAA  WCAGLevel = "AA"
	LevelAAA WCAGLevel = "AAA"
)

// Target is a URL registered for scanning under a project.
type Target struct {
	ID         TargetID     `json:"id"`
	ProjectID  string       `json:"project_id"`
	URL        string       `json:"url"`
	Status     TargetStatus `json:"status"`
	LastScanAt *time.Time   `json:"last_scan_at,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Scan is one execution of the audit against a target.
type Scan struct {
	ID          ScanID     `json:"id"`
	TargetID    TargetID   `json:"target_id"`
	Status      Status     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	ResultsJSON string     `json:"results_json,omitempty"` // opaque, never parsed back
}

// Violation is one failing rule on one DOM node. Immutable after NewViolation.
type Violation struct {
	ID          ViolationID `json:"id"`
	ScanID      ScanID      `json:"scan_id"`
	Code        string      `json:"code"`
	Description string      `json:"description"`
	Severity    Severity    `json:"severity"`
	Risk        Risk        `json:"risk"`
	WCAGLevel   WCAGLevel   `json:"wcag_level"`
	Element     string      `json:"element"`
	Suggestion  string      `json:"suggestion"`
	CreatedAt   time.Time   `json:"created_at"`
}

// SeverityCounts value object
type SeverityCounts struct {
	Critical int `json:"critical"`
	Serious  int `json:"serious"`
	Moderate int `json:"moderate"`
	Minor    int `json:"minor"`
	Total    int `json:"total"`
}

// Add counts one violation of the given severity. Total always grows, the
// buckets only for the four known severities.
func (c *SeverityCounts) Add(s Severity) {
	switch s {
	case SeverityCritical:
		c.Critical++
	case SeveritySerious:
		c.Serious++
	case SeverityModerate:
		c.Moderate++
	case SeverityMinor:
		c.Minor++
	}
	c.Total++
}

// Merge sums another set of counts into c.
func (c *SeverityCounts) Merge(o SeverityCounts) {
	c.Critical += o.Critical
	c.Serious += o.Serious
	c.Moderate += o.Moderate
	c.Minor += o.Minor
	c.Total += o.Total
}

// CountSeverities tallies violations by severity.
func CountSeverities(vs []Violation) SeverityCounts {
	var c SeverityCounts
	for _, v := range vs {
		c.Add(v.Severity)
	}
	return c
}

// Report is the aggregate summary of one completed scan. Built once by NewReport.
type Report struct {
	ID        ReportID       `json:"id"`
	ScanID    ScanID         `json:"scan_id"`
	Summary   string         `json:"summary"`
	RiskScore int            `json:"risk_score"`
	Counts    SeverityCounts `json:"counts"`
	CreatedAt time.Time      `json:"created_at"`
}

// ScanDetails is the read model returned to callers polling a scan.
type ScanDetails struct {
	Scan       *Scan       `json:"scan"`
	URL        string      `json:"url"`
	Violations []Violation `json:"violations"`
	Report     *Report     `json:"report"`
}
