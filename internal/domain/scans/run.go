package scans

import "encoding/json"

// RawNode is one DOM node the engine flagged for a rule. Target selectors
// nest for frames and shadow roots, so they stay undecoded.
type RawNode struct {
	HTML   string          `json:"html"`
	Target json.RawMessage `json:"target,omitempty"`
}

// RawFinding is one rule violation as reported by the engine.
type RawFinding struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Help        string    `json:"help"`
	HelpURL     string    `json:"helpUrl"`
	Impact      string    `json:"impact"`
	Tags        []string  `json:"tags"`
	Nodes       []RawNode `json:"nodes"`
}

// EngineResult hasil dari Engine
type EngineResult struct {
	Violations   []RawFinding
	Passes       int
	Incomplete   int
	Inapplicable int
	Raw          []byte // engine output as returned, kept for forensics
}
