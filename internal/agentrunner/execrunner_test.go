package agentrunner

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/kagan-sh/kagan-sub004/internal/config"
	"github.com/kagan-sh/kagan-sub004/internal/db"
	"github.com/kagan-sh/kagan-sub004/internal/db/repositories"
	"github.com/kagan-sh/kagan-sub004/internal/models"
	"github.com/stretchr/testify/require"
)

func setupTestRepos(t *testing.T) *repositories.Repositories {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "kagan.db")
	database, err := db.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(dbPath))
	t.Cleanup(func() { database.Close() })
	return repositories.New(database)
}

func TestProcessRunner_RunLaunchesCommandInWorkspace(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("exercises a POSIX shell command")
	}
	repos := setupTestRepos(t)
	ctx := context.Background()
	worktree := t.TempDir()

	require.NoError(t, repos.Projects.Create(ctx, &models.Project{ID: "proj-1", Name: "Kagan"}))
	taskID := "task-1"
	require.NoError(t, repos.Tasks.Create(ctx, &models.Task{ID: taskID, ProjectID: "proj-1", Title: "demo"}))
	require.NoError(t, repos.Workspaces.Create(ctx, &models.Workspace{
		ID: "ws-1", ProjectID: "proj-1", TaskID: &taskID, BranchName: "kagan/task-1", Path: worktree,
	}))

	cfg := &config.Config{}
	cfg.General.AgentCommand = []string{"sh", "-c", "pwd > marker.txt; echo \"$KAGAN_TASK_ID\" >> marker.txt"}

	runner := New(repos, cfg, t.TempDir())
	task, err := repos.Tasks.Get(ctx, taskID)
	require.NoError(t, err)

	require.NoError(t, runner.Run(ctx, task, false, false))

	marker, err := os.ReadFile(filepath.Join(worktree, "marker.txt"))
	require.NoError(t, err)
	require.Contains(t, string(marker), worktree)
	require.Contains(t, string(marker), taskID)

	executions, err := repos.Executions.ListForTask(ctx, taskID)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	require.FileExists(t, executions[0].LogPath)
}

func TestProcessRunner_RunSurfacesMissingCommand(t *testing.T) {
	repos := setupTestRepos(t)
	cfg := &config.Config{}
	runner := New(repos, cfg, t.TempDir())

	err := runner.Run(context.Background(), &models.Task{ID: "task-1"}, false, false)
	require.Error(t, err)
}

func TestProcessRunner_RunFailingCommandStillRecordsExecution(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("exercises a POSIX shell command")
	}
	repos := setupTestRepos(t)
	ctx := context.Background()
	worktree := t.TempDir()

	require.NoError(t, repos.Projects.Create(ctx, &models.Project{ID: "proj-1", Name: "Kagan"}))
	taskID := "task-1"
	require.NoError(t, repos.Tasks.Create(ctx, &models.Task{ID: taskID, ProjectID: "proj-1", Title: "demo"}))
	require.NoError(t, repos.Workspaces.Create(ctx, &models.Workspace{
		ID: "ws-1", ProjectID: "proj-1", TaskID: &taskID, BranchName: "kagan/task-1", Path: worktree,
	}))

	cfg := &config.Config{}
	cfg.General.AgentCommand = []string{"sh", "-c", "exit 3"}
	runner := New(repos, cfg, t.TempDir())
	task, err := repos.Tasks.Get(ctx, taskID)
	require.NoError(t, err)

	require.Error(t, runner.Run(ctx, task, false, false))

	executions, err := repos.Executions.ListForTask(ctx, taskID)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	require.Contains(t, executions[0].Metadata, "error")
}
