// Package axe runs axe-core inside a loaded page.
package axe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	domain "github.com/bryanwahyu/lucy-scan/internal/domain/scans"
)

// DefaultTags restricts the run to WCAG 2.x A, AA and AAA rules.
var DefaultTags = []string{"wcag2a", "wcag2aa", "wcag2aaa"}

const resultVar = "window.__lucyAxeResult"

// Engine injects the axe-core bundle and collects its results.
type Engine struct {
	source  string
	tags    []string
	timeout time.Duration
}

// Load reads the axe-core bundle (axe.min.js) from path.
func Load(path string, tags []string, timeout time.Duration) (*Engine, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read axe script: %w", err)
	}
	return New(string(b), tags, timeout), nil
}

func New(source string, tags []string, timeout time.Duration) *Engine {
	if len(tags) == 0 {
		tags = DefaultTags
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Engine{source: source, tags: tags, timeout: timeout}
}

// runScript starts axe.run and parks the JSON outcome in resultVar.
func (e *Engine) runScript() (string, error) {
	tags, err := json.Marshal(e.tags)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(() => {
  %[1]s = null;
  axe.run(document, { runOnly: { type: 'tag', values: %[2]s } })
    .then(r => { %[1]s = JSON.stringify({
        violations: r.violations,
        passes: r.passes.length,
        incomplete: r.incomplete.length,
        inapplicable: r.inapplicable.length
      }); })
    .catch(err => { %[1]s = JSON.stringify({ error: String(err) }); });
  return true;
})()`, resultVar, tags), nil
}

// payload mirrors what runScript serialises.
type payload struct {
	Violations   []domain.RawFinding `json:"violations"`
	Passes       int                 `json:"passes"`
	Incomplete   int                 `json:"incomplete"`
	Inapplicable int                 `json:"inapplicable"`
	Error        string              `json:"error"`
}

// Analyze injects axe, runs it and decodes the findings.
func (e *Engine) Analyze(ctx context.Context, page domain.Page) (domain.EngineResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var loaded bool
	if err := page.Evaluate(ctx, e.source+"\n;typeof axe !== 'undefined'", &loaded); err != nil {
		return domain.EngineResult{}, fmt.Errorf("inject axe: %w", err)
	}
	if !loaded {
		return domain.EngineResult{}, errors.New("inject axe: axe global missing after injection")
	}

	script, err := e.runScript()
	if err != nil {
		return domain.EngineResult{}, err
	}
	var started bool
	if err := page.Evaluate(ctx, script, &started); err != nil {
		return domain.EngineResult{}, fmt.Errorf("start axe: %w", err)
	}

	var raw string
	if err := page.Poll(ctx, resultVar, &raw); err != nil {
		return domain.EngineResult{}, fmt.Errorf("wait for axe: %w", err)
	}
	return Decode([]byte(raw))
}

// Decode parses the serialised axe outcome.
func Decode(raw []byte) (domain.EngineResult, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.EngineResult{}, fmt.Errorf("decode axe results: %w", err)
	}
	if strings.TrimSpace(p.Error) != "" {
		return domain.EngineResult{}, fmt.Errorf("axe run: %s", p.Error)
	}
	return domain.EngineResult{
		Violations:   p.Violations,
		Passes:       p.Passes,
		Incomplete:   p.Incomplete,
		Inapplicable: p.Inapplicable,
		Raw:          raw,
	}, nil
}
