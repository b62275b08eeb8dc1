package scans

import (
	"fmt"
	"strings"
)

// Normalize expands raw findings into one violation per affected node.
// Output order follows the input order and is deterministic.
func Normalize(findings []RawFinding) []Violation {
	var out []Violation
	for _, f := range findings {
		sev := SeverityFromImpact(f.Impact)
		risk := RiskFromSeverity(sev)
		level := LevelFromTags(f.Tags)
		suggestion := fmt.Sprintf("%s. More info: %s", f.Help, f.HelpURL)
		for _, n := range f.Nodes {
			out = append(out, Violation{
				Code:        f.ID,
				Description: f.Description,
				Severity:    sev,
				Risk:        risk,
				WCAGLevel:   level,
				Element:     n.HTML,
				Suggestion:  suggestion,
			})
		}
	}
	return out
}

// SeverityFromImpact defaults a missing impact to moderate.
func SeverityFromImpact(impact string) Severity {
	impact = strings.ToLower(strings.TrimSpace(impact))
	if impact == "" {
		return SeverityModerate
	}
	return Severity(impact)
}

// RiskFromSeverity maps critical/serious to high, moderate to medium, the rest to low.
func RiskFromSeverity(s Severity) Risk {
	switch s {
	case SeverityCritical, SeveritySerious:
		return RiskHigh
	case SeverityModerate:
		return RiskMedium
	default:
		return RiskLow
	}
}

// LevelFromTags picks the first tier found in priority order AAA, AA, A.
func LevelFromTags(tags []string) WCAGLevel {
	has := func(marker string) bool {
		for _, t := range tags {
			if strings.Contains(strings.ToLower(t), marker) {
				return true
			}
		}
		return false
	}
	switch {
	case has("wcag2aaa"):
		return LevelAAA
	case has("wcag2aa"):
		return LevelAA
	default:
		return LevelA
	}
}

// CriteriaCount is the number of distinct rule codes among the findings.
func CriteriaCount(findings []RawFinding) int {
	seen := make(map[string]struct{}, len(findings))
	for _, f := range findings {
		seen[f.ID] = struct{}{}
	}
	return len(seen)
}
