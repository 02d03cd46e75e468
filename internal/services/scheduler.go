package services

import (
	"context"
	"log"
	"time"

	"github.com/kagan-sh/kagan-sub004/internal/models"
	"github.com/robfig/cron/v3"
)

const (
	janitorCronSpec     = "@every 15m"
	reconcileCronSpec   = "@every 10s"
	reconcileJobTimeout = 30 * time.Second
)

// ReconcileScheduler is the cron-driven background tick that keeps the
// process self-healing between explicit client requests: it sweeps stale
// worktrees/branches and spawns automation for AUTO tasks that are ready
// to run but not yet picked up (the core has no external scheduler, so it
// must periodically look at its own state and act on it).
type ReconcileScheduler struct {
	cron       *cron.Cron
	janitor    *JanitorService
	automation *AutomationScheduler
	tasks      *TaskService
}

func NewReconcileScheduler(janitor *JanitorService, automation *AutomationScheduler, tasks *TaskService) *ReconcileScheduler {
	c := cron.New(cron.WithSeconds(), cron.WithLogger(cron.VerbosePrintfLogger(log.New(log.Writer(), "reconcile: ", log.LstdFlags))))
	return &ReconcileScheduler{cron: c, janitor: janitor, automation: automation, tasks: tasks}
}

// Start registers the periodic jobs and starts the cron runner. Callers
// stop it with Stop during core shutdown.
func (s *ReconcileScheduler) Start() error {
	if _, err := s.cron.AddFunc(janitorCronSpec, s.runJanitorSweep); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(reconcileCronSpec, s.runAutomationReconcile); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop waits for any in-flight tick to finish before returning.
func (s *ReconcileScheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *ReconcileScheduler) runJanitorSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), reconcileJobTimeout)
	defer cancel()
	result, err := s.janitor.Run(ctx, true, true)
	if err != nil {
		log.Printf("reconcile: janitor sweep failed: %v", err)
		return
	}
	if result.TotalCleaned() > 0 {
		log.Printf("reconcile: janitor cleaned %d worktrees, %d branches", result.WorktreesPruned, len(result.BranchesDeleted))
	}
}

// runAutomationReconcile spawns automation for any AUTO task sitting in
// BACKLOG or IN_PROGRESS that the scheduler doesn't already have running
// — the case a client's spawn request was dropped (process restart,
// crashed iteration) without anyone calling automation.start again.
func (s *ReconcileScheduler) runAutomationReconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), reconcileJobTimeout)
	defer cancel()

	for _, status := range []models.TaskStatus{models.TaskStatusBacklog, models.TaskStatusInProgress} {
		tasksForStatus, err := s.tasks.ListAllByStatus(ctx, status)
		if err != nil {
			log.Printf("reconcile: list tasks by status %s failed: %v", status, err)
			continue
		}
		for _, task := range tasksForStatus {
			if task.TaskType != models.TaskTypeAuto {
				continue
			}
			if s.automation.IsRunning(task.ID) {
				continue
			}
			if _, err := s.automation.SpawnForTask(ctx, task, false); err != nil {
				log.Printf("reconcile: spawn task %s failed: %v", task.ID, err)
			}
		}
	}
}
