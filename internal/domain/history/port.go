package history

import (
	"context"
	"time"

	"github.com/bryanwahyu/lucy-scan/internal/domain/scans"
)

// Repository port for remediation history and daily snapshots
type Repository interface {
	CreateRemediated(ctx context.Context, r *RemediatedViolation) error
	// OpenRemediated lists the target's records with has_regressed = false.
	OpenRemediated(ctx context.Context, target scans.TargetID) ([]*RemediatedViolation, error)
	MarkRegressed(ctx context.Context, id string, scan scans.ScanID, at time.Time) error
	ListRemediatedByProjects(ctx context.Context, projectIDs []string) ([]*RemediatedViolation, error)

	// UpsertSnapshot replaces the row keyed by (project_id, snapshot_date).
	UpsertSnapshot(ctx context.Context, s *ProjectSnapshot) error
	// DeleteSnapshot removes the day's row; a missing row is not an error.
	DeleteSnapshot(ctx context.Context, projectID string, day time.Time) error
	GetSnapshot(ctx context.Context, projectID string, day time.Time) (*ProjectSnapshot, error)
	ListSnapshots(ctx context.Context, projectIDs []string, since time.Time) ([]*ProjectSnapshot, error)
}
