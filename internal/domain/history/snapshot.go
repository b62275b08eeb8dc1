package history

import (
	"math"
	"time"

	"github.com/bryanwahyu/lucy-scan/internal/domain/scans"
)

// BuildSnapshot recomputes a project's day rollup from the scans started that
// day. Counts and the average risk only use completed scans. It returns nil
// when there is nothing to roll up.
func BuildSnapshot(projectID string, day time.Time, dayScans []*scans.Scan, violations []scans.Violation, reports []*scans.Report) *ProjectSnapshot {
	inDay := make(map[scans.ScanID]struct{}, len(dayScans))
	for _, s := range dayScans {
		if s.Status == scans.StatusCompleted {
			inDay[s.ID] = struct{}{}
		}
	}
	if len(inDay) == 0 {
		return nil
	}

	var counts scans.SeverityCounts
	for _, v := range violations {
		if _, ok := inDay[v.ScanID]; ok {
			counts.Add(v.Severity)
		}
	}

	riskSum, riskN := 0, 0
	for _, r := range reports {
		if r == nil {
			continue
		}
		if _, ok := inDay[r.ScanID]; ok {
			riskSum += r.RiskScore
			riskN++
		}
	}
	avg := 0
	if riskN > 0 {
		avg = int(math.Round(float64(riskSum) / float64(riskN)))
	}

	return &ProjectSnapshot{
		ProjectID:         projectID,
		SnapshotDate:      DayStart(day),
		TotalScans:        len(dayScans),
		CompletedScans:    len(inDay),
		TotalViolations:   counts.Total,
		CriticalCount:     counts.Critical,
		SeriousCount:      counts.Serious,
		ModerateCount:     counts.Moderate,
		MinorCount:        counts.Minor,
		AverageRiskScore:  avg,
		AccessibilityDebt: AccessibilityDebt(counts),
	}
}
