package scanerrors

import (
	"context"
)

// Repository defines persistence for scan errors
type Repository interface {
	SaveError(ctx context.Context, e *ScanError) error
	ListErrorsByScan(ctx context.Context, scanID string, limit int) ([]*ScanError, error)
}
