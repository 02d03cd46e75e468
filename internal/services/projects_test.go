package services

import (
	"context"
	"testing"

	"github.com/kagan-sh/kagan-sub004/internal/models"
	"github.com/stretchr/testify/require"
)

func TestProjectService_CreateAddRepoOpen(t *testing.T) {
	repos := setupTestRepos(t)
	svc := NewProjectService(repos)
	ctx := context.Background()

	p, err := svc.Create(ctx, &models.Project{Name: "Kagan"})
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)

	repo, err := svc.AddRepo(ctx, p.ID, &models.Repo{Name: "core", Path: "/repos/core", DefaultBranch: "main"}, true, 0)
	require.NoError(t, err)
	require.NotEmpty(t, repo.ID)

	repoList, err := svc.GetProjectRepos(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, repoList, 1)
	require.Equal(t, "core", repoList[0].Name)

	opened, err := svc.Open(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, opened.LastOpenedAt)

	require.NoError(t, svc.RemoveRepo(ctx, p.ID, repo.ID))
	repoList, err = svc.GetProjectRepos(ctx, p.ID)
	require.NoError(t, err)
	require.Empty(t, repoList)
}

func TestProjectService_Delete(t *testing.T) {
	repos := setupTestRepos(t)
	svc := NewProjectService(repos)
	ctx := context.Background()

	p, err := svc.Create(ctx, &models.Project{Name: "Transient"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, p.ID))

	_, err = svc.Get(ctx, p.ID)
	require.Error(t, err)
}
