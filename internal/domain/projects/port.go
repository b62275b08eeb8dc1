package projects

import "context"

// Repository port for owners and projects
type Repository interface {
	CreateOwner(ctx context.Context, o *Owner) error
	GetOwner(ctx context.Context, id string) (*Owner, error)
	// Lookups of missing rows return scans.ErrNotFound.
	OwnerByAPIKey(ctx context.Context, key string) (*Owner, error)

	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjectsByOwner(ctx context.Context, ownerID string) ([]*Project, error)
}
