package scanerrors

import "time"

// Phase of the scan pipeline where the failure happened
const (
	PhaseNavigate = "navigate"
	PhaseAnalyze  = "analyze"
	PhasePersist  = "persist"
	PhaseQueue    = "queue"
	// scan was still running when the service stopped
	PhaseInterrupted = "interrupted"
)

// ScanError represents a persisted scan error entry
type ScanError struct {
	ID        string    `json:"id"`
	ScanID    string    `json:"scan_id"`
	TargetID  string    `json:"target_id"`
	Phase     string    `json:"phase"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
