package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/kagan-sh/kagan-sub004/internal/config"
	"github.com/kagan-sh/kagan-sub004/internal/models"
)

// stopQuiesceWindow bounds how long stop_task waits for a cooperatively
// cancelled iteration to actually exit before reporting STOP_PENDING
//.
const stopQuiesceWindow = 5 * time.Second

// AgentRunner is the pluggable agent-process launcher the scheduler
// drives; its wire protocol to the underlying coding agent is out of
// scope here — callers supply a concrete runner.
type AgentRunner interface {
	// Run executes one automation iteration for task and blocks until it
	// completes, is cancelled via ctx, or fails. readOnly disables
	// write-file/terminal capability for review iterations.
	Run(ctx context.Context, task *models.Task, readOnly bool, autoApprove bool) error
}

type taskRunState struct {
	cancel    context.CancelFunc
	done      chan struct{}
	reviewing bool
}

// AutomationScheduler is the per-task AUTO runtime: it enforces a global
// concurrency cap and a per-task iteration cap, and exposes a merge lock
// that the merge service holds across destructive git mutations.
type AutomationScheduler struct {
	cfg    *config.Config
	runner AgentRunner
	tasks  *TaskService

	mu         sync.Mutex
	running    map[string]*taskRunState
	iterations map[string]int

	mergeLock sync.Mutex
}

func NewAutomationScheduler(cfg *config.Config, runner AgentRunner, tasks *TaskService) *AutomationScheduler {
	return &AutomationScheduler{
		cfg:        cfg,
		runner:     runner,
		tasks:      tasks,
		running:    make(map[string]*taskRunState),
		iterations: make(map[string]int),
	}
}

// MergeLock is the shared primitive the merge service acquires before any
// destructive multi-repo git mutation.
func (a *AutomationScheduler) MergeLock() *sync.Mutex { return &a.mergeLock }

func (a *AutomationScheduler) IsRunning(taskID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.running[taskID]
	return ok
}

func (a *AutomationScheduler) IsReviewing(taskID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	state, ok := a.running[taskID]
	return ok && state.reviewing
}

// ResetIterations clears the per-task iteration counter, used by the
// rejection-retry path before respawning automation.
func (a *AutomationScheduler) ResetIterations(taskID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.iterations, taskID)
}

// SpawnForTask starts one automation iteration for task if capacity
// allows; it returns false (not an error) when the task is already
// running, at its iteration cap, or the global concurrency cap is full.
// The iteration counter survives across spawn/finish cycles for the same
// task — only reset_iterations clears it.
func (a *AutomationScheduler) SpawnForTask(ctx context.Context, task *models.Task, readOnly bool) (bool, error) {
	a.mu.Lock()
	if _, ok := a.running[task.ID]; ok {
		a.mu.Unlock()
		return false, nil
	}
	if len(a.running) >= a.cfg.General.MaxConcurrentAgents {
		a.mu.Unlock()
		return false, nil
	}
	if a.iterations[task.ID] >= a.cfg.General.MaxIterations {
		a.mu.Unlock()
		return false, nil
	}
	a.iterations[task.ID]++
	state := &taskRunState{done: make(chan struct{}), reviewing: readOnly}
	a.running[task.ID] = state
	a.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	state.cancel = cancel

	// auto_approve is read from the shared config object by reference on
	// every spawn, so an operator toggling it mid-run takes effect on the
	// next iteration, not this one.
	autoApprove := a.cfg.General.AutoApprove

	go func() {
		defer close(state.done)
		defer func() {
			a.mu.Lock()
			delete(a.running, task.ID)
			a.mu.Unlock()
		}()
		runErr := a.runner.Run(runCtx, task, readOnly, autoApprove)
		current, getErr := a.tasks.Get(context.Background(), task.ID)
		if getErr != nil {
			return
		}
		if _, err := a.tasks.SyncStatusFromAgentComplete(context.Background(), current, runErr == nil); err != nil {
			log.Printf("automation: sync status from agent complete for task %s: %v", task.ID, err)
		}
	}()

	return true, nil
}

// StopTask cooperatively cancels task's in-flight iteration and waits up
// to stopQuiesceWindow for it to quiesce, returning true once is_running
// is false. Callers must treat a false return as STOP_PENDING, not an
// error.
func (a *AutomationScheduler) StopTask(taskID string) bool {
	a.mu.Lock()
	state, ok := a.running[taskID]
	a.mu.Unlock()
	if !ok {
		return true
	}
	if state.cancel != nil {
		state.cancel()
	}

	select {
	case <-state.done:
		return true
	case <-time.After(stopQuiesceWindow):
		return !a.IsRunning(taskID)
	}
}
