package scans

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_OneViolationPerNode(t *testing.T) {
	findings := []RawFinding{
		{
			ID:          "image-alt",
			Description: "Images must have alternate text",
			Help:        "Add alt text",
			HelpURL:     "https://dequeuniversity.com/rules/axe/image-alt",
			Impact:      "critical",
			Tags:        []string{"cat.text-alternatives", "wcag2a", "wcag111"},
			Nodes:       []RawNode{{HTML: `<img src="a.png">`}, {HTML: `<img src="b.png">`}},
		},
		{
			ID:     "color-contrast",
			Help:   "Fix contrast",
			Impact: "serious",
			Tags:   []string{"wcag2aa", "wcag143"},
			Nodes:  []RawNode{{HTML: `<p class="faint">`}},
		},
	}

	out := Normalize(findings)

	require.Len(t, out, 3)
	assert.Equal(t, "image-alt", out[0].Code)
	assert.Equal(t, `<img src="a.png">`, out[0].Element)
	assert.Equal(t, `<img src="b.png">`, out[1].Element)
	assert.Equal(t, SeverityCritical, out[0].Severity)
	assert.Equal(t, RiskHigh, out[0].Risk)
	assert.Equal(t, LevelA, out[0].WCAGLevel)
	assert.Equal(t, "Add alt text. More info: https://dequeuniversity.com/rules/axe/image-alt", out[0].Suggestion)

	assert.Equal(t, "color-contrast", out[2].Code)
	assert.Equal(t, LevelAA, out[2].WCAGLevel)
	assert.Equal(t, RiskHigh, out[2].Risk)
}

func TestNormalize_FindingWithoutNodesProducesNothing(t *testing.T) {
	out := Normalize([]RawFinding{{ID: "region", Impact: "moderate"}})
	assert.Empty(t, out)
}

func TestSeverityFromImpact_MissingIsModerate(t *testing.T) {
	assert.Equal(t, SeverityModerate, SeverityFromImpact(""))
	assert.Equal(t, SeverityMinor, SeverityFromImpact(" Minor "))
}

func TestRiskFromSeverity(t *testing.T) {
	assert.Equal(t, RiskHigh, RiskFromSeverity(SeverityCritical))
	assert.Equal(t, RiskHigh, RiskFromSeverity(SeveritySerious))
	assert.Equal(t, RiskMedium, RiskFromSeverity(SeverityModerate))
	assert.Equal(t, RiskLow, RiskFromSeverity(SeverityMinor))
	assert.Equal(t, RiskLow, RiskFromSeverity(Severity("unknown")))
}

func TestLevelFromTags_PriorityOrder(t *testing.T) {
	assert.Equal(t, LevelAAA, LevelFromTags([]string{"wcag2a", "wcag2aaa"}))
	assert.Equal(t, LevelAA, LevelFromTags([]string{"wcag2a", "wcag2aa"}))
	assert.Equal(t, LevelA, LevelFromTags([]string{"best-practice"}))
	assert.Equal(t, LevelA, LevelFromTags(nil))
}

func TestCriteriaCount_DistinctCodes(t *testing.T) {
	n := CriteriaCount([]RawFinding{{ID: "a"}, {ID: "b"}, {ID: "a"}})
	assert.Equal(t, 2, n)
}

func TestSeverityRank(t *testing.T) {
	assert.Greater(t, SeverityCritical.Rank(), SeveritySerious.Rank())
	assert.Greater(t, SeveritySerious.Rank(), SeverityModerate.Rank())
	assert.Greater(t, SeverityModerate.Rank(), SeverityMinor.Rank())
	assert.Equal(t, 0, Severity("x").Rank())
}
