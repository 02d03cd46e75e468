package services

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/kagan-sh/kagan-sub004/internal/models"
	"github.com/stretchr/testify/require"
)

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

func newMergeTestEnv(t *testing.T) (*TaskService, *WorkspaceService, *MergeService, *AutomationScheduler, string) {
	t.Helper()
	t.Setenv("KAGAN_WORKTREE_BASE", t.TempDir())
	repos := setupTestRepos(t)
	cfg := testConfig()
	cfg.General.RequireReviewApproval = false
	bus := newTestBus()

	tasks := NewTaskService(repos, bus)
	workspaces := NewWorkspaceService(repos)
	automation := NewAutomationScheduler(cfg, newFakeRunner(), tasks)
	merges := NewMergeService(repos, tasks, workspaces, automation, cfg, bus, nil)

	repoPath := initTestRepo(t)

	ctx := context.Background()
	require.NoError(t, repos.Projects.Create(ctx, &models.Project{ID: "proj-1", Name: "Kagan"}))
	require.NoError(t, repos.Repos.Create(ctx, &models.Repo{ID: "repo-1", Name: "core", Path: repoPath, DefaultBranch: "main", Scripts: map[string]string{}}))
	require.NoError(t, repos.Repos.AddToProject(ctx, "proj-1", "repo-1", true, 0))

	return tasks, workspaces, merges, automation, repoPath
}

func TestMergeService_MergeTaskSucceeds(t *testing.T) {
	tasks, workspaces, merges, _, _ := newMergeTestEnv(t)
	ctx := context.Background()

	task := &models.Task{ID: "task-1", ProjectID: "proj-1", Title: "add feature", Status: models.TaskStatusReview, TaskType: models.TaskTypePair}
	require.NoError(t, tasks.repos.Tasks.Create(ctx, task))

	ws, err := workspaces.Provision(ctx, "proj-1", task.ID, nil)
	require.NoError(t, err)

	newFile := filepath.Join(ws.Path, "feature.txt")
	require.NoError(t, os.WriteFile(newFile, []byte("hello\n"), 0o644))
	runGit(t, ws.Path, "add", "feature.txt")
	runGit(t, ws.Path, "-c", "user.email=test@kagan.local", "-c", "user.name=kagan test", "commit", "-m", "add feature")

	success, message, err := merges.MergeTask(ctx, task)
	require.NoError(t, err)
	require.True(t, success, message)
	require.Equal(t, models.TaskStatusDone, task.Status)
	require.False(t, task.MergeFailed)
	require.Equal(t, models.MergeReadinessReady, task.MergeReadiness)

	_, err = workspaces.GetForTask(ctx, task.ID)
	require.Error(t, err)
}

func TestMergeService_RequiresReviewApproval(t *testing.T) {
	tasks, workspaces, merges, _, _ := newMergeTestEnv(t)
	merges.cfg.General.RequireReviewApproval = true
	ctx := context.Background()

	task := &models.Task{ID: "task-1", ProjectID: "proj-1", Title: "t", Status: models.TaskStatusReview, TaskType: models.TaskTypePair}
	require.NoError(t, tasks.repos.Tasks.Create(ctx, task))
	_, err := workspaces.Provision(ctx, "proj-1", task.ID, nil)
	require.NoError(t, err)

	success, message, err := merges.MergeTask(ctx, task)
	require.NoError(t, err)
	require.False(t, success)
	require.Contains(t, message, "approval")
	require.True(t, task.MergeFailed)
	require.Equal(t, models.MergeReadinessBlocked, task.MergeReadiness)
}

func TestMergeService_ConflictBlocksMerge(t *testing.T) {
	tasks, workspaces, merges, _, repoPath := newMergeTestEnv(t)
	ctx := context.Background()

	task := &models.Task{ID: "task-1", ProjectID: "proj-1", Title: "t", Status: models.TaskStatusReview, TaskType: models.TaskTypePair}
	require.NoError(t, tasks.repos.Tasks.Create(ctx, task))

	ws, err := workspaces.Provision(ctx, "proj-1", task.ID, nil)
	require.NoError(t, err)

	readmePath := filepath.Join(ws.Path, "README.md")
	require.NoError(t, os.WriteFile(readmePath, []byte("workspace change\n"), 0o644))
	runGit(t, ws.Path, "add", "README.md")
	runGit(t, ws.Path, "-c", "user.email=test@kagan.local", "-c", "user.name=kagan test", "commit", "-m", "workspace edit")

	baseReadme := filepath.Join(repoPath, "README.md")
	require.NoError(t, os.WriteFile(baseReadme, []byte("base change\n"), 0o644))
	runGit(t, repoPath, "add", "README.md")
	runGit(t, repoPath, "-c", "user.email=test@kagan.local", "-c", "user.name=kagan test", "commit", "-m", "base edit")

	success, message, err := merges.MergeTask(ctx, task)
	require.NoError(t, err)
	require.False(t, success)
	require.NotEmpty(t, message)
	require.True(t, task.MergeFailed)
	require.Equal(t, models.MergeReadinessBlocked, task.MergeReadiness)
}

func TestMergeService_RebaseForReviewReturnsToInProgressOnConflict(t *testing.T) {
	tasks, workspaces, merges, automation, repoPath := newMergeTestEnv(t)
	ctx := context.Background()

	task := &models.Task{ID: "task-1", ProjectID: "proj-1", Title: "t", Status: models.TaskStatusReview, TaskType: models.TaskTypeAuto}
	require.NoError(t, tasks.repos.Tasks.Create(ctx, task))
	automation.iterations[task.ID] = 3

	ws, err := workspaces.Provision(ctx, "proj-1", task.ID, nil)
	require.NoError(t, err)

	readmePath := filepath.Join(ws.Path, "README.md")
	require.NoError(t, os.WriteFile(readmePath, []byte("workspace change\n"), 0o644))
	runGit(t, ws.Path, "add", "README.md")
	runGit(t, ws.Path, "-c", "user.email=test@kagan.local", "-c", "user.name=kagan test", "commit", "-m", "workspace edit")

	baseReadme := filepath.Join(repoPath, "README.md")
	require.NoError(t, os.WriteFile(baseReadme, []byte("base change\n"), 0o644))
	runGit(t, repoPath, "add", "README.md")
	runGit(t, repoPath, "-c", "user.email=test@kagan.local", "-c", "user.name=kagan test", "commit", "-m", "base edit")

	ok, err := merges.RebaseForReview(ctx, task)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, models.TaskStatusInProgress, task.Status)
	require.Equal(t, 0, automation.iterations[task.ID])
}
