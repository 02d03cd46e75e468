package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kagan-sh/kagan-sub004/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu      sync.Mutex
	started int
	block   chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{block: make(chan struct{})}
}

func (f *fakeRunner) Run(ctx context.Context, task *models.Task, readOnly, autoApprove bool) error {
	f.mu.Lock()
	f.started++
	f.mu.Unlock()
	select {
	case <-f.block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestAutomationScheduler_SpawnAndStop(t *testing.T) {
	cfg := testConfig()
	runner := newFakeRunner()
	sched := NewAutomationScheduler(cfg, runner, NewTaskService(setupTestRepos(t), newTestBus()))
	task := &models.Task{ID: "task-1"}

	spawned, err := sched.SpawnForTask(context.Background(), task, false)
	require.NoError(t, err)
	require.True(t, spawned)
	require.True(t, sched.IsRunning("task-1"))

	spawnedAgain, err := sched.SpawnForTask(context.Background(), task, false)
	require.NoError(t, err)
	require.False(t, spawnedAgain)

	close(runner.block)
	require.True(t, sched.StopTask("task-1"))
	require.False(t, sched.IsRunning("task-1"))
}

func TestAutomationScheduler_RespectsConcurrencyCap(t *testing.T) {
	cfg := testConfig()
	cfg.General.MaxConcurrentAgents = 1
	runner := newFakeRunner()
	sched := NewAutomationScheduler(cfg, runner, NewTaskService(setupTestRepos(t), newTestBus()))

	spawned, err := sched.SpawnForTask(context.Background(), &models.Task{ID: "task-1"}, false)
	require.NoError(t, err)
	require.True(t, spawned)

	spawned, err = sched.SpawnForTask(context.Background(), &models.Task{ID: "task-2"}, false)
	require.NoError(t, err)
	require.False(t, spawned)
}

func TestAutomationScheduler_StopOnUnstartedTaskIsNoop(t *testing.T) {
	cfg := testConfig()
	sched := NewAutomationScheduler(cfg, newFakeRunner(), NewTaskService(setupTestRepos(t), newTestBus()))
	require.True(t, sched.StopTask("never-started"))
}

func TestAutomationScheduler_IterationCapStopsTask(t *testing.T) {
	cfg := testConfig()
	cfg.General.MaxIterations = 1
	runner := newFakeRunner()
	close(runner.block)
	sched := NewAutomationScheduler(cfg, runner, NewTaskService(setupTestRepos(t), newTestBus()))

	_, err := sched.SpawnForTask(context.Background(), &models.Task{ID: "task-1"}, false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return !sched.IsRunning("task-1")
	}, time.Second, 10*time.Millisecond)

	spawnedAgain, err := sched.SpawnForTask(context.Background(), &models.Task{ID: "task-1"}, false)
	require.NoError(t, err)
	require.False(t, spawnedAgain)
}
