package services

import (
	"context"
	"testing"

	"github.com/kagan-sh/kagan-sub004/internal/models"
	"github.com/stretchr/testify/require"
)

func TestJanitorService_DeletesOrphanBranchesNotActiveTasks(t *testing.T) {
	repos := setupTestRepos(t)
	svc := NewJanitorService(repos)
	ctx := context.Background()

	repoPath := initTestRepo(t)
	require.NoError(t, repos.Projects.Create(ctx, &models.Project{ID: "proj-1", Name: "Kagan"}))
	require.NoError(t, repos.Repos.Create(ctx, &models.Repo{ID: "repo-1", Name: "core", Path: repoPath, DefaultBranch: "main", Scripts: map[string]string{}}))
	require.NoError(t, repos.Repos.AddToProject(ctx, "proj-1", "repo-1", true, 0))

	runGit(t, repoPath, "branch", "kagan/task-orphaned")
	runGit(t, repoPath, "branch", "kagan/task-active")

	require.NoError(t, repos.Workspaces.Create(ctx, &models.Workspace{
		ID: "ws-1", ProjectID: "proj-1", TaskID: strPtr("task-active"),
		BranchName: "kagan/task-active", Path: repoPath,
	}))

	result, err := svc.Run(ctx, false, true)
	require.NoError(t, err)
	require.Contains(t, result.BranchesDeleted, "kagan/task-orphaned")
	require.NotContains(t, result.BranchesDeleted, "kagan/task-active")
}

func strPtr(s string) *string { return &s }
