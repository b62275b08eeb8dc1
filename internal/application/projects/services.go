package projects

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/lucy-scan/internal/application"
	"github.com/bryanwahyu/lucy-scan/internal/domain/documents"
	domain "github.com/bryanwahyu/lucy-scan/internal/domain/projects"
	"github.com/bryanwahyu/lucy-scan/internal/domain/scans"
)

// Service manages owners, projects and their scan targets.
type Service struct {
	Repo      domain.Repository
	Scans     scans.Repository
	Documents documents.Repository
	Clock     application.Clock
}

// EnsureOwner creates the owner unless one with the same id exists.
func (s *Service) EnsureOwner(ctx context.Context, o domain.Owner) (*domain.Owner, bool, error) {
	existing, err := s.Repo.GetOwner(ctx, o.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, scans.ErrNotFound) {
		return nil, false, err
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now()
	}
	if err := s.Repo.CreateOwner(ctx, &o); err != nil {
		return nil, false, err
	}
	return &o, true, nil
}

func (s *Service) CreateProject(ctx context.Context, ownerID, name string) (*domain.Project, error) {
	p := &domain.Project{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Name:      name,
		CreatedAt: s.now(),
	}
	if err := s.Repo.CreateProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) ListProjects(ctx context.Context, ownerID string) ([]*domain.Project, error) {
	out, err := s.Repo.ListProjectsByOwner(ctx, ownerID)
	if out == nil && err == nil {
		out = []*domain.Project{}
	}
	return out, err
}

// CreateTarget registers a URL under an owned project. The URL is expected
// to be validated by the caller.
func (s *Service) CreateTarget(ctx context.Context, ownerID, projectID, url string) (*scans.Target, error) {
	if _, err := s.owned(ctx, ownerID, projectID); err != nil {
		return nil, err
	}
	t := &scans.Target{
		ID:        scans.TargetID(uuid.New().String()),
		ProjectID: projectID,
		URL:       url,
		Status:    scans.TargetIdle,
		CreatedAt: s.now(),
	}
	if err := s.Scans.CreateTarget(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) ListTargets(ctx context.Context, ownerID, projectID string) ([]*scans.Target, error) {
	if _, err := s.owned(ctx, ownerID, projectID); err != nil {
		return nil, err
	}
	out, err := s.Scans.ListTargetsByProject(ctx, projectID)
	if out == nil && err == nil {
		out = []*scans.Target{}
	}
	return out, err
}

// ListDocuments returns generated reports of an owned project, newest first.
func (s *Service) ListDocuments(ctx context.Context, ownerID, projectID string, limit int) ([]*documents.Document, error) {
	if _, err := s.owned(ctx, ownerID, projectID); err != nil {
		return nil, err
	}
	out, err := s.Documents.ListDocuments(ctx, projectID, limit)
	if out == nil && err == nil {
		out = []*documents.Document{}
	}
	return out, err
}

func (s *Service) owned(ctx context.Context, ownerID, projectID string) (*domain.Project, error) {
	p, err := s.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != ownerID {
		return nil, scans.ErrForbidden
	}
	return p, nil
}

func (s *Service) now() time.Time { return application.Or(s.Clock).Now().UTC() }
