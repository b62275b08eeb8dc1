package scans

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Severity weights shared by the risk score and accessibility debt.
const (
	WeightCritical = 10
	WeightSerious  = 7
	WeightModerate = 4
	WeightMinor    = 1
)

// Weight is the severity-weighted sum of the counts.
func Weight(c SeverityCounts) int {
	return c.Critical*WeightCritical + c.Serious*WeightSerious + c.Moderate*WeightModerate + c.Minor*WeightMinor
}

// RiskScore returns the 0-100 severity-weighted average over every violation.
// Unknown severities weigh nothing but still count in the denominator.
func RiskScore(c SeverityCounts) int {
	total := c.Total
	if known := c.Critical + c.Serious + c.Moderate + c.Minor; known > total {
		total = known
	}
	if total <= 0 {
		return 0
	}
	score := int(math.Round(float64(Weight(c)) / float64(total) * 10))
	return clamp(score, 0, 100)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// NewViolation stamps an id and creation time on a normalised violation.
func NewViolation(scanID ScanID, v Violation, now time.Time) Violation {
	v.ID = ViolationID(uuid.New().String())
	v.ScanID = scanID
	v.CreatedAt = now
	return v
}

// NewReport derives every report field from the scan's violations.
// criteria is the number of distinct rules that failed.
func NewReport(scanID ScanID, vs []Violation, criteria int, now time.Time) *Report {
	counts := CountSeverities(vs)
	return &Report{
		ID:        ReportID(uuid.New().String()),
		ScanID:    scanID,
		Summary:   summary(counts.Total, criteria),
		RiskScore: RiskScore(counts),
		Counts:    counts,
		CreatedAt: now,
	}
}

func summary(total, criteria int) string {
	if total == 0 {
		return "No accessibility issues found. The page meets WCAG compliance standards."
	}
	plural := "s"
	if total == 1 {
		plural = ""
	}
	return fmt.Sprintf("Found %d accessibility issue%s across %d WCAG criteria", total, plural, criteria)
}
