package scans

import "errors"

var (
	// ErrNotFound is returned when a target, scan or report does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden means the caller does not own the resource's project.
	ErrForbidden = errors.New("forbidden")
	// ErrTargetBusy means another scan already holds the target.
	ErrTargetBusy = errors.New("target is already being scanned")
	// ErrQueueFull means the scan worker pool cannot accept more work.
	ErrQueueFull = errors.New("scan queue is full")
)
