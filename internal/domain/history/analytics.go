package history

import (
	"math"
	"sort"
	"time"

	"github.com/bryanwahyu/lucy-scan/internal/domain/scans"
)

// HistoricalWindow is how far back snapshot trends reach.
const HistoricalWindow = 90 * 24 * time.Hour

// AnalyticsInput is everything BuildAnalytics reads. Current holds scans
// started in [Now-Days, Now), Previous the equal window before that.
type AnalyticsInput struct {
	Now          time.Time
	Days         int
	ProjectNames map[string]string
	Targets      map[scans.TargetID]*scans.Target
	Current      []*scans.Scan
	Previous     []*scans.Scan
	Reports      map[scans.ScanID]*scans.Report
	Violations   []scans.Violation
	Snapshots    []*ProjectSnapshot
	Remediated   []*RemediatedViolation
}

type CodeCount struct {
	Code  string `json:"code"`
	Count int    `json:"count"`
}

type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type Activity struct {
	ScanID      scans.ScanID `json:"scan_id"`
	Type        string       `json:"type"` // scan_complete | scan_error | scan_started
	ProjectName string       `json:"project_name"`
	URL         string       `json:"url"`
	Timestamp   time.Time    `json:"timestamp"`
	RiskScore   *int         `json:"risk_score,omitempty"`
	TotalIssues *int         `json:"total_issues,omitempty"`
}

type Comparison struct {
	ScanGrowth           int `json:"scan_growth"`
	IssueChange          int `json:"issue_change"`
	PreviousPeriodScans  int `json:"previous_period_scans"`
	PreviousPeriodIssues int `json:"previous_period_issues"`
}

type DebtPoint struct {
	Date       string `json:"date"`
	Debt       int    `json:"debt"`
	Violations int    `json:"violations"`
	RiskScore  int    `json:"risk_score"`
	Critical   int    `json:"critical"`
	Serious    int    `json:"serious"`
	Moderate   int    `json:"moderate"`
	Minor      int    `json:"minor"`
}

type Historical struct {
	Snapshots              []*ProjectSnapshot `json:"snapshots"`
	AccessibilityDebtTrend []DebtPoint        `json:"accessibility_debt_trend"`
	LongestTrendDays       int                `json:"longest_trend_days"`
}

type Regression struct {
	ID           string         `json:"id"`
	Code         string         `json:"code"`
	Description  string         `json:"description"`
	Severity     scans.Severity `json:"severity"`
	URL          string         `json:"url"`
	RemediatedAt time.Time      `json:"remediated_at"`
	RegressedAt  *time.Time     `json:"regressed_at"`
}

type RegressionData struct {
	TotalRegressions  int            `json:"total_regressions"`
	RecentRegressions []Regression   `json:"recent_regressions"`
	RegressionsByURL  map[string]int `json:"regressions_by_url"`
}

type RemediationData struct {
	TotalRemediated      int `json:"total_remediated"`
	RemediatedThisPeriod int `json:"remediated_this_period"`
	RemediationRate      int `json:"remediation_rate"`
}

// Analytics is the dashboard payload for one owner.
type Analytics struct {
	Days                  int                     `json:"days"`
	TotalScans            int                     `json:"total_scans"`
	CompletedScans        int                     `json:"completed_scans"`
	RunningScans          int                     `json:"running_scans"`
	ErrorScans            int                     `json:"error_scans"`
	TotalIssues           int                     `json:"total_issues"`
	IssueDistribution     scans.SeverityCounts    `json:"issue_distribution"`
	WCAGLevelDistribution map[scans.WCAGLevel]int `json:"wcag_level_distribution"`
	RiskDistribution      map[scans.Risk]int      `json:"risk_distribution"`
	TopViolationTypes     []CodeCount             `json:"top_violation_types"`
	ScanTrend             []DayCount              `json:"scan_trend"`
	IssueTrend            []DayCount              `json:"issue_trend"`
	RecentActivity        []Activity              `json:"recent_activity"`
	AverageIssuesPerScan  int                     `json:"average_issues_per_scan"`
	AverageScanDuration   int                     `json:"average_scan_duration"` // seconds
	Comparison            Comparison              `json:"comparison_metrics"`
	Historical            Historical              `json:"historical_data"`
	Regressions           RegressionData          `json:"regression_data"`
	Remediation           RemediationData         `json:"remediation_data"`
}

// BuildAnalytics aggregates the input into the dashboard payload.
func BuildAnalytics(in AnalyticsInput) *Analytics {
	windowStart := in.Now.Add(-time.Duration(in.Days) * 24 * time.Hour)

	a := &Analytics{
		Days:                  in.Days,
		WCAGLevelDistribution: map[scans.WCAGLevel]int{scans.LevelA: 0, scans.LevelAA: 0, scans.LevelAAA: 0},
		RiskDistribution:      map[scans.Risk]int{scans.RiskHigh: 0, scans.RiskMedium: 0, scans.RiskLow: 0},
		TopViolationTypes:     []CodeCount{},
		RecentActivity:        []Activity{},
	}

	scansByDate := map[string]int{}
	issuesByDate := map[string]int{}
	var durationTotal time.Duration
	durationN := 0

	for _, s := range in.Current {
		a.TotalScans++
		day := dateKey(s.StartedAt)
		scansByDate[day]++
		projectName, url := in.describe(s.TargetID)

		switch s.Status {
		case scans.StatusCompleted:
			a.CompletedScans++
			if s.FinishedAt != nil {
				durationTotal += s.FinishedAt.Sub(s.StartedAt)
				durationN++
			}
			r := in.Reports[s.ID]
			if r == nil {
				continue
			}
			a.TotalIssues += r.Counts.Total
			a.IssueDistribution.Merge(r.Counts)
			issuesByDate[day] += r.Counts.Total
			risk, total := r.RiskScore, r.Counts.Total
			a.RecentActivity = append(a.RecentActivity, Activity{
				ScanID: s.ID, Type: "scan_complete", ProjectName: projectName, URL: url,
				Timestamp: finishedOrStarted(s), RiskScore: &risk, TotalIssues: &total,
			})
		case scans.StatusRunning:
			a.RunningScans++
			a.RecentActivity = append(a.RecentActivity, Activity{
				ScanID: s.ID, Type: "scan_started", ProjectName: projectName, URL: url,
				Timestamp: s.StartedAt,
			})
		case scans.StatusError:
			a.ErrorScans++
			a.RecentActivity = append(a.RecentActivity, Activity{
				ScanID: s.ID, Type: "scan_error", ProjectName: projectName, URL: url,
				Timestamp: finishedOrStarted(s),
			})
		}
	}

	codes := map[string]int{}
	for _, v := range in.Violations {
		codes[v.Code]++
		a.WCAGLevelDistribution[v.WCAGLevel]++
		a.RiskDistribution[v.Risk]++
	}
	for code, n := range codes {
		a.TopViolationTypes = append(a.TopViolationTypes, CodeCount{Code: code, Count: n})
	}
	sort.Slice(a.TopViolationTypes, func(i, j int) bool {
		if a.TopViolationTypes[i].Count != a.TopViolationTypes[j].Count {
			return a.TopViolationTypes[i].Count > a.TopViolationTypes[j].Count
		}
		return a.TopViolationTypes[i].Code < a.TopViolationTypes[j].Code
	})
	if len(a.TopViolationTypes) > 5 {
		a.TopViolationTypes = a.TopViolationTypes[:5]
	}

	// previous window counts completed scans only
	for _, s := range in.Previous {
		if s.Status != scans.StatusCompleted {
			continue
		}
		a.Comparison.PreviousPeriodScans++
		if r := in.Reports[s.ID]; r != nil {
			a.Comparison.PreviousPeriodIssues += r.Counts.Total
		}
	}
	a.Comparison.ScanGrowth = percentChange(a.Comparison.PreviousPeriodScans, a.CompletedScans)
	a.Comparison.IssueChange = percentChange(a.Comparison.PreviousPeriodIssues, a.TotalIssues)

	if durationN > 0 {
		a.AverageScanDuration = int(math.Round(durationTotal.Seconds() / float64(durationN)))
	}
	if a.CompletedScans > 0 {
		a.AverageIssuesPerScan = int(math.Round(float64(a.TotalIssues) / float64(a.CompletedScans)))
	}

	sort.SliceStable(a.RecentActivity, func(i, j int) bool {
		return a.RecentActivity[i].Timestamp.After(a.RecentActivity[j].Timestamp)
	})
	if len(a.RecentActivity) > 10 {
		a.RecentActivity = a.RecentActivity[:10]
	}

	a.ScanTrend = sortedDays(scansByDate)
	a.IssueTrend = sortedDays(issuesByDate)
	a.Historical = buildHistorical(in.Snapshots, in.Now)
	a.Regressions = in.buildRegressions(windowStart)
	a.Remediation = buildRemediation(in.Remediated, windowStart, a.TotalIssues)
	return a
}

func (in AnalyticsInput) describe(id scans.TargetID) (projectName, url string) {
	t := in.Targets[id]
	if t == nil {
		return "", ""
	}
	return in.ProjectNames[t.ProjectID], t.URL
}

func buildHistorical(snaps []*ProjectSnapshot, now time.Time) Historical {
	h := Historical{Snapshots: snaps, AccessibilityDebtTrend: []DebtPoint{}}
	if h.Snapshots == nil {
		h.Snapshots = []*ProjectSnapshot{}
	}
	byDate := map[string]*DebtPoint{}
	var earliest time.Time
	for _, s := range snaps {
		if earliest.IsZero() || s.SnapshotDate.Before(earliest) {
			earliest = s.SnapshotDate
		}
		key := dateKey(s.SnapshotDate)
		p := byDate[key]
		if p == nil {
			p = &DebtPoint{Date: key}
			byDate[key] = p
		}
		p.Debt += s.AccessibilityDebt
		p.Violations += s.TotalViolations
		p.RiskScore += s.AverageRiskScore
		p.Critical += s.CriticalCount
		p.Serious += s.SeriousCount
		p.Moderate += s.ModerateCount
		p.Minor += s.MinorCount
	}
	for _, p := range byDate {
		h.AccessibilityDebtTrend = append(h.AccessibilityDebtTrend, *p)
	}
	sort.Slice(h.AccessibilityDebtTrend, func(i, j int) bool {
		return h.AccessibilityDebtTrend[i].Date < h.AccessibilityDebtTrend[j].Date
	})
	if !earliest.IsZero() {
		h.LongestTrendDays = int(now.Sub(earliest).Hours() / 24)
	}
	return h
}

func (in AnalyticsInput) buildRegressions(windowStart time.Time) RegressionData {
	d := RegressionData{RecentRegressions: []Regression{}, RegressionsByURL: map[string]int{}}
	var regressed []*RemediatedViolation
	for _, r := range in.Remediated {
		if r.HasRegressed {
			regressed = append(regressed, r)
		}
	}
	sort.SliceStable(regressed, func(i, j int) bool {
		return timeOrZero(regressed[i].RegressedAt).After(timeOrZero(regressed[j].RegressedAt))
	})
	d.TotalRegressions = len(regressed)
	for _, r := range regressed {
		url := ""
		if t := in.Targets[r.TargetID]; t != nil {
			url = t.URL
		}
		d.RegressionsByURL[url]++
		if r.RegressedAt != nil && !r.RegressedAt.Before(windowStart) && len(d.RecentRegressions) < 10 {
			d.RecentRegressions = append(d.RecentRegressions, Regression{
				ID: r.ID, Code: r.Code, Description: r.Description, Severity: r.Severity,
				URL: url, RemediatedAt: r.RemediatedAt, RegressedAt: r.RegressedAt,
			})
		}
	}
	return d
}

func buildRemediation(all []*RemediatedViolation, windowStart time.Time, totalIssues int) RemediationData {
	var d RemediationData
	for _, r := range all {
		if r.HasRegressed {
			continue
		}
		d.TotalRemediated++
		if !r.RemediatedAt.Before(windowStart) {
			d.RemediatedThisPeriod++
		}
	}
	if totalIssues > 0 {
		d.RemediationRate = int(math.Round(float64(d.RemediatedThisPeriod) / float64(totalIssues+d.RemediatedThisPeriod) * 100))
	}
	return d
}

// percentChange is the rounded change from prev to curr, 0 when prev is 0.
func percentChange(prev, curr int) int {
	if prev <= 0 {
		return 0
	}
	return int(math.Round(float64(curr-prev) / float64(prev) * 100))
}

func sortedDays(m map[string]int) []DayCount {
	out := make([]DayCount, 0, len(m))
	for d, n := range m {
		out = append(out, DayCount{Date: d, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func dateKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

func finishedOrStarted(s *scans.Scan) time.Time {
	if s.FinishedAt != nil {
		return *s.FinishedAt
	}
	return s.StartedAt
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
