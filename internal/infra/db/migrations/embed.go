// Package migrations carries the versioned schema for the server databases.
package migrations

import "embed"

//go:embed mysql/*.sql postgres/*.sql
var FS embed.FS
