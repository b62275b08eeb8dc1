// Package render produces the downloadable report files.
package render

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/bryanwahyu/lucy-scan/internal/application/reports"
	"github.com/bryanwahyu/lucy-scan/internal/domain/history"
	"github.com/bryanwahyu/lucy-scan/internal/domain/scans"
)

// maxDetailRows caps the per-violation listing in PDFs.
const maxDetailRows = 50

// Renderer writes PDFs with gofpdf and CSVs with encoding/csv.
type Renderer struct {
	// Brand is printed in every page header.
	Brand string
}

func (r Renderer) brand() string {
	if r.Brand == "" {
		return "Lucy Accessibility"
	}
	return r.Brand
}

func (r Renderer) newDoc(title string, at time.Time) *gofpdf.Fpdf {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetAuthor(r.brand(), true)
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, title)
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 9)
	pdf.SetTextColor(110, 110, 110)
	pdf.Cell(0, 6, fmt.Sprintf("%s - generated %s", r.brand(), at.UTC().Format("2006-01-02 15:04 UTC")))
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(10)
	return pdf
}

func section(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, title)
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 10)
}

func line(pdf *gofpdf.Fpdf, format string, args ...any) {
	pdf.Cell(0, 6, fmt.Sprintf(format, args...))
	pdf.Ln(6)
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func counts(pdf *gofpdf.Fpdf, c scans.SeverityCounts) {
	line(pdf, "Critical:  %d", c.Critical)
	line(pdf, "Serious:   %d", c.Serious)
	line(pdf, "Moderate:  %d", c.Moderate)
	line(pdf, "Minor:     %d", c.Minor)
	line(pdf, "Total:     %d", c.Total)
}

// ExecutiveSummary renders the latest scan of a project.
func (r Renderer) ExecutiveSummary(s reports.ScanSummary) ([]byte, error) {
	pdf := r.newDoc("Executive Summary: "+s.ProjectName, s.GeneratedAt)

	section(pdf, "Scan Information")
	line(pdf, "Target URL: %s", s.URL)
	if s.Scan != nil {
		line(pdf, "Scanned at: %s", s.Scan.StartedAt.UTC().Format(time.RFC1123))
	}
	pdf.Ln(4)

	if s.Report != nil {
		section(pdf, "Result")
		line(pdf, "Risk score: %d / 100", s.Report.RiskScore)
		pdf.MultiCell(0, 6, s.Report.Summary, "", "L", false)
		pdf.Ln(4)
		section(pdf, "Severity Breakdown")
		counts(pdf, s.Report.Counts)
	} else {
		section(pdf, "Severity Breakdown")
		counts(pdf, scans.CountSeverities(s.Violations))
	}
	pdf.Ln(4)

	vs := worstFirst(s.Violations)
	if len(vs) > 0 {
		section(pdf, "Top Issues")
		for i, v := range vs {
			if i == maxDetailRows {
				line(pdf, "... and %d more", len(vs)-maxDetailRows)
				break
			}
			pdf.SetFont("Arial", "B", 10)
			pdf.MultiCell(0, 6, fmt.Sprintf("[%s] %s (WCAG %s)", v.Severity, v.Code, v.WCAGLevel), "", "L", false)
			pdf.SetFont("Arial", "", 9)
			pdf.MultiCell(0, 5, v.Description, "", "L", false)
			pdf.MultiCell(0, 5, v.Suggestion, "", "L", false)
			pdf.Ln(2)
		}
	}
	return output(pdf)
}

// AnalyticsReport renders the project dashboard as a PDF.
func (r Renderer) AnalyticsReport(projectName string, a *history.Analytics, at time.Time) ([]byte, error) {
	pdf := r.newDoc("Analytics Report: "+projectName, at)

	section(pdf, fmt.Sprintf("Last %d days", a.Days))
	line(pdf, "Scans: %d (completed %d, running %d, failed %d)", a.TotalScans, a.CompletedScans, a.RunningScans, a.ErrorScans)
	line(pdf, "Issues found: %d", a.TotalIssues)
	line(pdf, "Average issues per scan: %d", a.AverageIssuesPerScan)
	line(pdf, "Average scan duration: %ds", a.AverageScanDuration)
	line(pdf, "Scan growth vs previous period: %+d%%", a.Comparison.ScanGrowth)
	line(pdf, "Issue change vs previous period: %+d%%", a.Comparison.IssueChange)
	pdf.Ln(4)

	section(pdf, "Severity Breakdown")
	counts(pdf, a.IssueDistribution)
	pdf.Ln(4)

	if len(a.TopViolationTypes) > 0 {
		section(pdf, "Most Frequent Violations")
		for _, c := range a.TopViolationTypes {
			line(pdf, "%-40s %d", c.Code, c.Count)
		}
		pdf.Ln(4)
	}

	section(pdf, "Remediation")
	line(pdf, "Open remediations: %d", a.Remediation.TotalRemediated)
	line(pdf, "Remediated this period: %d", a.Remediation.RemediatedThisPeriod)
	line(pdf, "Remediation rate: %d%%", a.Remediation.RemediationRate)
	line(pdf, "Regressions: %d", a.Regressions.TotalRegressions)

	if n := len(a.Historical.AccessibilityDebtTrend); n > 0 {
		pdf.Ln(4)
		section(pdf, "Accessibility Debt Trend")
		start := 0
		if n > 14 {
			start = n - 14
		}
		for _, p := range a.Historical.AccessibilityDebtTrend[start:] {
			line(pdf, "%s  debt %d  violations %d", p.Date, p.Debt, p.Violations)
		}
	}
	return output(pdf)
}

// ViolationsCSV exports one row per violation, worst first.
func (r Renderer) ViolationsCSV(s reports.ScanSummary) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{"url", "scan_id", "code", "severity", "risk", "wcag_level", "description", "element", "suggestion", "created_at"}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	scanID := ""
	if s.Scan != nil {
		scanID = string(s.Scan.ID)
	}
	for _, v := range worstFirst(s.Violations) {
		row := []string{
			s.URL, scanID, v.Code, string(v.Severity), string(v.Risk), string(v.WCAGLevel),
			v.Description, v.Element, v.Suggestion, v.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func worstFirst(vs []scans.Violation) []scans.Violation {
	out := append([]scans.Violation(nil), vs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Severity.Rank() > out[j].Severity.Rank() })
	return out
}
