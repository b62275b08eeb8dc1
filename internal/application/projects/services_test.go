package projects

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/lucy-scan/internal/application"
	"github.com/bryanwahyu/lucy-scan/internal/domain/documents"
	domain "github.com/bryanwahyu/lucy-scan/internal/domain/projects"
	"github.com/bryanwahyu/lucy-scan/internal/domain/scans"
	"github.com/bryanwahyu/lucy-scan/internal/infra/db/memory"
)

func newService() (*Service, *memory.Store) {
	store := memory.New()
	return &Service{
		Repo:      store,
		Scans:     store,
		Documents: store,
		Clock:     application.Fixed(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)),
	}, store
}

func TestEnsureOwner_Idempotent(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	o, created, err := svc.EnsureOwner(ctx, domain.Owner{ID: "o1", Email: "a@example.com", APIKey: "k1"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.False(t, o.CreatedAt.IsZero())

	again, created, err := svc.EnsureOwner(ctx, domain.Owner{ID: "o1", Email: "other@example.com", APIKey: "k1"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "a@example.com", again.Email)
}

func TestProjectsAndTargets(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	empty, err := svc.ListProjects(ctx, "o1")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	p, err := svc.CreateProject(ctx, "o1", "Shop")
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)

	list, err := svc.ListProjects(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Shop", list[0].Name)

	tg, err := svc.CreateTarget(ctx, "o1", p.ID, "https://shop.example")
	require.NoError(t, err)
	assert.Equal(t, scans.TargetIdle, tg.Status)

	targets, err := svc.ListTargets(ctx, "o1", p.ID)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, tg.ID, targets[0].ID)
}

func TestCreateTarget_Ownership(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	p, err := svc.CreateProject(ctx, "o1", "Shop")
	require.NoError(t, err)

	_, err = svc.CreateTarget(ctx, "intruder", p.ID, "https://shop.example")
	assert.ErrorIs(t, err, scans.ErrForbidden)

	_, err = svc.CreateTarget(ctx, "o1", "missing", "https://shop.example")
	assert.ErrorIs(t, err, scans.ErrNotFound)

	_, err = svc.ListTargets(ctx, "intruder", p.ID)
	assert.ErrorIs(t, err, scans.ErrForbidden)
}

func TestListDocuments(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()
	p, err := svc.CreateProject(ctx, "o1", "Shop")
	require.NoError(t, err)

	docs, err := svc.ListDocuments(ctx, "o1", p.ID, 10)
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)

	require.NoError(t, store.SaveDocument(ctx, &documents.Document{ID: "d1", ProjectID: p.ID, OwnerID: "o1", Title: "first"}))
	require.NoError(t, store.SaveDocument(ctx, &documents.Document{ID: "d2", ProjectID: p.ID, OwnerID: "o1", Title: "second"}))

	docs, err = svc.ListDocuments(ctx, "o1", p.ID, 10)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "second", docs[0].Title)

	_, err = svc.ListDocuments(ctx, "intruder", p.ID, 10)
	assert.ErrorIs(t, err, scans.ErrForbidden)
}
