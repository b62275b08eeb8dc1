package history

import (
	"sort"
	"time"

	"github.com/bryanwahyu/lucy-scan/internal/domain/scans"
)

// CodeDelta is the outcome of comparing two scans of the same target.
type CodeDelta struct {
	Remediated []string // in previous, absent now
	Present    map[string]struct{}
}

// Diff compares the previous scan's violation codes with the current ones.
// Remediated codes come back sorted so repeated runs produce the same rows.
func Diff(previous, current []scans.Violation) CodeDelta {
	prev := codeSet(previous)
	curr := codeSet(current)
	d := CodeDelta{Present: curr}
	for code := range prev {
		if _, ok := curr[code]; !ok {
			d.Remediated = append(d.Remediated, code)
		}
	}
	sort.Strings(d.Remediated)
	return d
}

func codeSet(vs []scans.Violation) map[string]struct{} {
	m := make(map[string]struct{}, len(vs))
	for _, v := range vs {
		m[v.Code] = struct{}{}
	}
	return m
}

// FirstByCode returns the first violation carrying each code.
func FirstByCode(vs []scans.Violation) map[string]scans.Violation {
	m := make(map[string]scans.Violation, len(vs))
	for _, v := range vs {
		if _, ok := m[v.Code]; !ok {
			m[v.Code] = v
		}
	}
	return m
}

// DayStart normalises t to midnight UTC.
func DayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// AccessibilityDebt is the absolute weighted sum of outstanding violations.
func AccessibilityDebt(c scans.SeverityCounts) int {
	return scans.Weight(c)
}
