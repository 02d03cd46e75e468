package services

import (
	"context"
	"fmt"
	"time"

	"github.com/kagan-sh/kagan-sub004/internal/db/repositories"
	"github.com/kagan-sh/kagan-sub004/internal/eventbus"
	"github.com/kagan-sh/kagan-sub004/internal/models"
)

// WaitCode enumerates tasks.wait's terminal outcomes.
type WaitCode string

const (
	WaitCodeAlreadyAtStatus    WaitCode = "ALREADY_AT_STATUS"
	WaitCodeTaskChanged        WaitCode = "TASK_CHANGED"
	WaitCodeTimeout            WaitCode = "WAIT_TIMEOUT"
	WaitCodeChangedSinceCursor WaitCode = "CHANGED_SINCE_CURSOR"
	WaitCodeTaskDeleted        WaitCode = "TASK_DELETED"
	WaitCodeTaskNotFound       WaitCode = "TASK_NOT_FOUND"
)

// WaitResult is tasks.wait's response shape.
type WaitResult struct {
	Changed        bool
	TimedOut       bool
	Code           WaitCode
	PreviousStatus string
	CurrentStatus  string
	Task           *models.Task
}

// WaitService implements tasks.wait: a single long-poll endpoint that
// replaces client-side status polling.
type WaitService struct {
	repos *repositories.Repositories
	bus   *eventbus.Bus
}

func NewWaitService(repos *repositories.Repositories, bus *eventbus.Bus) *WaitService {
	return &WaitService{repos: repos, bus: bus}
}

// Wait blocks up to timeout for taskID to satisfy waitForStatus (nil means
// "any change"), or until sinceCursor is exceeded by the task's updated_at.
// The listener is unregistered on every return path.
func (s *WaitService) Wait(ctx context.Context, taskID string, timeout time.Duration, waitForStatus []models.TaskStatus, sinceCursor *time.Time) (WaitResult, error) {
	task, err := s.repos.Tasks.Get(ctx, taskID)
	if err != nil {
		return WaitResult{Code: WaitCodeTaskNotFound}, fmt.Errorf("get task: %w", err)
	}

	if len(waitForStatus) > 0 && statusMatches(task.Status, waitForStatus) {
		return WaitResult{Changed: true, Code: WaitCodeAlreadyAtStatus, CurrentStatus: string(task.Status), Task: task}, nil
	}
	if sinceCursor != nil && task.UpdatedAt.After(*sinceCursor) {
		return WaitResult{Changed: true, Code: WaitCodeChangedSinceCursor, CurrentStatus: string(task.Status), Task: task}, nil
	}

	sub := s.bus.Subscribe("task.changed", func(e eventbus.Event) bool {
		changed, ok := e.(eventbus.TaskChanged)
		return ok && changed.TaskID == taskID
	})
	defer sub.Unsubscribe()
	deletedSub := s.bus.Subscribe("task.deleted", func(e eventbus.Event) bool {
		deleted, ok := e.(eventbus.TaskDeleted)
		return ok && deleted.TaskID == taskID
	})
	defer deletedSub.Unsubscribe()

	// Race-safe re-check: the task may have changed between the initial
	// read and subscribing.
	task, err = s.repos.Tasks.Get(ctx, taskID)
	if err != nil {
		return WaitResult{Code: WaitCodeTaskNotFound}, fmt.Errorf("get task: %w", err)
	}
	if len(waitForStatus) > 0 && statusMatches(task.Status, waitForStatus) {
		return WaitResult{Changed: true, Code: WaitCodeAlreadyAtStatus, CurrentStatus: string(task.Status), Task: task}, nil
	}
	if sinceCursor != nil && task.UpdatedAt.After(*sinceCursor) {
		return WaitResult{Changed: true, Code: WaitCodeChangedSinceCursor, CurrentStatus: string(task.Status), Task: task}, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ev := <-sub.C():
			changed := ev.(eventbus.TaskChanged)
			if len(waitForStatus) > 0 && !statusMatches(models.TaskStatus(changed.CurrentStatus), waitForStatus) {
				continue
			}
			task, err = s.repos.Tasks.Get(ctx, taskID)
			if err != nil {
				return WaitResult{Code: WaitCodeTaskNotFound}, fmt.Errorf("get task: %w", err)
			}
			return WaitResult{
				Changed: true, Code: WaitCodeTaskChanged,
				PreviousStatus: changed.PreviousStatus, CurrentStatus: changed.CurrentStatus, Task: task,
			}, nil
		case <-deletedSub.C():
			return WaitResult{Changed: true, Code: WaitCodeTaskDeleted}, nil
		case <-timer.C:
			return WaitResult{Changed: false, TimedOut: true, Code: WaitCodeTimeout, CurrentStatus: string(task.Status), Task: task}, nil
		case <-ctx.Done():
			return WaitResult{Changed: false, TimedOut: true, Code: WaitCodeTimeout, CurrentStatus: string(task.Status), Task: task}, ctx.Err()
		}
	}
}

func statusMatches(status models.TaskStatus, set []models.TaskStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}
