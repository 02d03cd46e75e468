package services

import (
	"context"
	"testing"
	"time"

	"github.com/kagan-sh/kagan-sub004/internal/eventbus"
	"github.com/kagan-sh/kagan-sub004/internal/models"
	"github.com/stretchr/testify/require"
)

func TestWaitService_AlreadyAtStatus(t *testing.T) {
	repos := setupTestRepos(t)
	bus := newTestBus()
	svc := NewWaitService(repos, bus)
	ctx := context.Background()

	require.NoError(t, repos.Projects.Create(ctx, &models.Project{ID: "proj-1", Name: "Kagan"}))
	require.NoError(t, repos.Tasks.Create(ctx, &models.Task{ID: "task-1", ProjectID: "proj-1", Title: "a", Status: models.TaskStatusInProgress}))

	result, err := svc.Wait(ctx, "task-1", time.Second, []models.TaskStatus{models.TaskStatusInProgress}, nil)
	require.NoError(t, err)
	require.True(t, result.Changed)
	require.Equal(t, WaitCodeAlreadyAtStatus, result.Code)
}

func TestWaitService_WakesOnTaskChanged(t *testing.T) {
	repos := setupTestRepos(t)
	bus := newTestBus()
	svc := NewWaitService(repos, bus)
	ctx := context.Background()

	require.NoError(t, repos.Projects.Create(ctx, &models.Project{ID: "proj-1", Name: "Kagan"}))
	task := &models.Task{ID: "task-1", ProjectID: "proj-1", Title: "a"}
	require.NoError(t, repos.Tasks.Create(ctx, task))

	go func() {
		time.Sleep(20 * time.Millisecond)
		task.Status = models.TaskStatusReview
		_ = repos.Tasks.Update(ctx, task)
		bus.Publish(eventbus.TaskChanged{TaskID: "task-1", PreviousStatus: string(models.TaskStatusBacklog), CurrentStatus: string(models.TaskStatusReview)})
	}()

	result, err := svc.Wait(ctx, "task-1", time.Second, []models.TaskStatus{models.TaskStatusReview}, nil)
	require.NoError(t, err)
	require.True(t, result.Changed)
	require.Equal(t, WaitCodeTaskChanged, result.Code)
	require.Equal(t, string(models.TaskStatusReview), result.CurrentStatus)
}

func TestWaitService_TimesOut(t *testing.T) {
	repos := setupTestRepos(t)
	bus := newTestBus()
	svc := NewWaitService(repos, bus)
	ctx := context.Background()

	require.NoError(t, repos.Projects.Create(ctx, &models.Project{ID: "proj-1", Name: "Kagan"}))
	require.NoError(t, repos.Tasks.Create(ctx, &models.Task{ID: "task-1", ProjectID: "proj-1", Title: "a"}))

	result, err := svc.Wait(ctx, "task-1", 30*time.Millisecond, []models.TaskStatus{models.TaskStatusDone}, nil)
	require.NoError(t, err)
	require.True(t, result.TimedOut)
	require.Equal(t, WaitCodeTimeout, result.Code)
}

func TestWaitService_TaskDeleted(t *testing.T) {
	repos := setupTestRepos(t)
	bus := newTestBus()
	svc := NewWaitService(repos, bus)
	ctx := context.Background()

	require.NoError(t, repos.Projects.Create(ctx, &models.Project{ID: "proj-1", Name: "Kagan"}))
	require.NoError(t, repos.Tasks.Create(ctx, &models.Task{ID: "task-1", ProjectID: "proj-1", Title: "a"}))

	go func() {
		time.Sleep(20 * time.Millisecond)
		bus.Publish(eventbus.TaskDeleted{TaskID: "task-1"})
	}()

	result, err := svc.Wait(ctx, "task-1", time.Second, []models.TaskStatus{models.TaskStatusDone}, nil)
	require.NoError(t, err)
	require.True(t, result.Changed)
	require.Equal(t, WaitCodeTaskDeleted, result.Code)
}
