package services

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/kagan-sh/kagan-sub004/internal/models"
	"github.com/stretchr/testify/require"
)

func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		require.NoError(t, cmd.Run(), "git %v", args)
	}
	run("init", "-b", "main")
	run("config", "user.email", "test@kagan.local")
	run("config", "user.name", "kagan test")
	require.NoError(t, exec.Command("touch", filepath.Join(dir, "README.md")).Run())
	run("add", "README.md")
	run("commit", "-m", "initial commit")
	return dir
}

func TestWorkspaceService_ProvisionAndRelease(t *testing.T) {
	t.Setenv("KAGAN_WORKTREE_BASE", t.TempDir())
	repos := setupTestRepos(t)
	svc := NewWorkspaceService(repos)
	ctx := context.Background()

	require.NoError(t, repos.Projects.Create(ctx, &models.Project{ID: "proj-1", Name: "Kagan"}))
	repoPath := initTestRepo(t)
	repo := &models.Repo{ID: "repo-1", Name: "core", Path: repoPath, DefaultBranch: "main", Scripts: map[string]string{}}
	require.NoError(t, repos.Repos.Create(ctx, repo))
	require.NoError(t, repos.Repos.AddToProject(ctx, "proj-1", "repo-1", true, 0))

	ws, err := svc.Provision(ctx, "proj-1", "task-1", nil)
	require.NoError(t, err)
	require.Equal(t, "kagan/task-1", ws.BranchName)

	got, err := svc.GetForTask(ctx, "task-1")
	require.NoError(t, err)
	require.Equal(t, ws.ID, got.ID)

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	require.NoError(t, svc.Release(ctx, ws.ID, true))
	active, err = svc.ListActive(ctx)
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestWorkspaceService_ProvisionRollsBackOnPartialFailure(t *testing.T) {
	t.Setenv("KAGAN_WORKTREE_BASE", t.TempDir())
	repos := setupTestRepos(t)
	svc := NewWorkspaceService(repos)
	ctx := context.Background()

	require.NoError(t, repos.Projects.Create(ctx, &models.Project{ID: "proj-1", Name: "Kagan"}))

	repoA := initTestRepo(t)
	require.NoError(t, repos.Repos.Create(ctx, &models.Repo{ID: "repo-a", Name: "a", Path: repoA, DefaultBranch: "main", Scripts: map[string]string{}}))
	require.NoError(t, repos.Repos.AddToProject(ctx, "proj-1", "repo-a", true, 0))

	// repo-b has no "main" branch, so its worktree creation fails and
	// repo-a's already-created worktree must be rolled back cleanly.
	repoB := t.TempDir()
	require.NoError(t, repos.Repos.Create(ctx, &models.Repo{ID: "repo-b", Name: "b", Path: repoB, DefaultBranch: "main", Scripts: map[string]string{}}))
	require.NoError(t, repos.Repos.AddToProject(ctx, "proj-1", "repo-b", false, 1))

	_, err := svc.Provision(ctx, "proj-1", "task-1", nil)
	require.Error(t, err)

	_, err = svc.GetForTask(ctx, "task-1")
	require.Error(t, err)
}

func TestWorkspaceService_ProvisionNoRepos(t *testing.T) {
	t.Setenv("KAGAN_WORKTREE_BASE", t.TempDir())
	repos := setupTestRepos(t)
	svc := NewWorkspaceService(repos)
	ctx := context.Background()

	require.NoError(t, repos.Projects.Create(ctx, &models.Project{ID: "proj-1", Name: "Kagan"}))

	_, err := svc.Provision(ctx, "proj-1", "task-1", nil)
	require.Error(t, err)
}
