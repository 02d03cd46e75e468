// Package core wires every service, scheduler, and background loop into
// one running instance and exposes it to the dispatch layer, collected
// into a package cmd/kagan can unit-construct without pulling in cobra or
// an IPC listener.
package core

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/kagan-sh/kagan-sub004/internal/agentrunner"
	"github.com/kagan-sh/kagan-sub004/internal/config"
	"github.com/kagan-sh/kagan-sub004/internal/db"
	"github.com/kagan-sh/kagan-sub004/internal/db/repositories"
	"github.com/kagan-sh/kagan-sub004/internal/eventbus"
	"github.com/kagan-sh/kagan-sub004/internal/ipc"
	"github.com/kagan-sh/kagan-sub004/internal/jobs"
	"github.com/kagan-sh/kagan-sub004/internal/models"
	"github.com/kagan-sh/kagan-sub004/internal/plan"
	"github.com/kagan-sh/kagan-sub004/internal/plugins"
	"github.com/kagan-sh/kagan-sub004/internal/services"
	"github.com/kagan-sh/kagan-sub004/internal/session"
	"github.com/kagan-sh/kagan-sub004/internal/telemetry"
	"github.com/kagan-sh/kagan-sub004/internal/tracing"
)

// Core bundles every long-lived collaborator a running instance needs:
// the persistence layer, the domain services, the background schedulers,
// and the dispatch table clients talk to.
type Core struct {
	Config *config.Config

	db    *db.DB
	Repos *repositories.Repositories
	Bus   *eventbus.Bus

	Projects   *services.ProjectService
	Tasks      *services.TaskService
	Workspaces *services.WorkspaceService
	Sessions   *services.SessionService
	Merges     *services.MergeService
	Audit      *services.AuditService
	Janitor    *services.JanitorService
	Wait       *services.WaitService
	Automation *services.AutomationScheduler
	Reconcile  *services.ReconcileScheduler
	Jobs       *jobs.Manager
	Plan       *plan.Service
	Plugins    *plugins.Registry

	Telemetry *telemetry.Service
	Tracing   *tracing.Service

	Dispatcher *ipc.CoreDispatcher
}

// New opens the database, runs pending migrations, and constructs every
// service and scheduler wired to it. It does not start the reconcile
// loop or bind any transport — callers decide when the instance goes
// live via Start.
func New(cfg *config.Config) (*Core, error) {
	dbPath := config.GetDatabasePath()
	database, err := db.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("core: open database: %w", err)
	}
	if err := database.Migrate(dbPath); err != nil {
		database.Close()
		return nil, fmt.Errorf("core: migrate database: %w", err)
	}

	repos := repositories.New(database)
	bus := eventbus.New()

	tel := telemetry.New(cfg.Telemetry)
	trc, err := tracing.New(cfg.Tracing)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("core: init tracing: %w", err)
	}

	runner := agentrunner.New(repos, cfg, filepath.Join(config.GetDataDir(), "executions"))
	tasks := services.NewTaskService(repos, bus)
	automation := services.NewAutomationScheduler(cfg, runner, tasks)
	janitor := services.NewJanitorService(repos)
	reconcile := services.NewReconcileScheduler(janitor, automation, tasks)

	planService, err := plan.NewService(cfg)
	if err != nil {
		log.Printf("core: plan.propose provider unavailable, leaving it disabled: %v", err)
		planService = nil
	}

	c := &Core{
		Config:     cfg,
		db:         database,
		Repos:      repos,
		Bus:        bus,
		Projects:   services.NewProjectService(repos),
		Tasks:      tasks,
		Workspaces: services.NewWorkspaceService(repos),
		Sessions:   services.NewSessionService(repos, cfg),
		Audit:      services.NewAuditService(repos),
		Janitor:    janitor,
		Wait:       services.NewWaitService(repos, bus),
		Automation: automation,
		Reconcile:  reconcile,
		Jobs:       jobs.NewManager(repos.Jobs, bus, trc),
		Plan:       planService,
		Plugins:    plugins.NewRegistry(),
		Telemetry:  tel,
		Tracing:    trc,
		Dispatcher: ipc.NewCoreDispatcher(session.NewRegistry(), trc),
	}
	c.Merges = services.NewMergeService(repos, c.Tasks, c.Workspaces, automation, cfg, bus, trc)

	c.registerJobHandlers()
	c.registerRoutes()
	return c, nil
}

// registerJobHandlers binds the async job subsystem's five actions to the
// same services their synchronous (capability,method) counterparts
// forward to, so a submitted job and a direct dispatcher call run
// identical logic.
func (c *Core) registerJobHandlers() {
	c.Jobs.RegisterHandler(models.JobActionAgentStart, func(ctx context.Context, job *models.Job, params map[string]interface{}) (interface{}, error) {
		task, err := c.Tasks.Get(ctx, job.TaskID)
		if err != nil {
			return nil, err
		}
		spawned, err := c.Automation.SpawnForTask(ctx, task, false)
		if err != nil {
			return nil, err
		}
		return struct {
			Spawned bool `json:"spawned"`
		}{spawned}, nil
	})
	c.Jobs.RegisterHandler(models.JobActionStopAgent, func(ctx context.Context, job *models.Job, params map[string]interface{}) (interface{}, error) {
		return struct {
			Stopped bool `json:"stopped"`
		}{c.Automation.StopTask(job.TaskID)}, nil
	})
	c.Jobs.RegisterHandler(models.JobActionReviewStart, func(ctx context.Context, job *models.Job, params map[string]interface{}) (interface{}, error) {
		task, err := c.Tasks.Get(ctx, job.TaskID)
		if err != nil {
			return nil, err
		}
		spawned, err := c.Automation.SpawnForTask(ctx, task, true)
		if err != nil {
			return nil, err
		}
		return struct {
			Spawned bool `json:"spawned"`
		}{spawned}, nil
	})
	c.Jobs.RegisterHandler(models.JobActionMergeTask, func(ctx context.Context, job *models.Job, params map[string]interface{}) (interface{}, error) {
		task, err := c.Tasks.Get(ctx, job.TaskID)
		if err != nil {
			return nil, err
		}
		merged, reason, err := c.Merges.MergeTask(ctx, task)
		if err != nil {
			return nil, err
		}
		return struct {
			Merged bool   `json:"merged"`
			Reason string `json:"reason"`
		}{merged, reason}, nil
	})
	c.Jobs.RegisterHandler(models.JobActionRebaseTask, func(ctx context.Context, job *models.Job, params map[string]interface{}) (interface{}, error) {
		task, err := c.Tasks.Get(ctx, job.TaskID)
		if err != nil {
			return nil, err
		}
		clean, err := c.Merges.RebaseForReview(ctx, task)
		if err != nil {
			return nil, err
		}
		return struct {
			Clean bool `json:"clean"`
		}{clean}, nil
	})
}

// Start launches the reconcile scheduler's cron loop. The IPC listener
// itself is bound separately by cmd/kagan so tests can construct and
// drive a Core without opening a socket.
func (c *Core) Start() error {
	if err := c.Reconcile.Start(); err != nil {
		return fmt.Errorf("core: start reconcile scheduler: %w", err)
	}
	c.Telemetry.CoreStarted()
	return nil
}

// Shutdown stops background loops and releases the database handle.
func (c *Core) Shutdown(ctx context.Context) error {
	c.Reconcile.Stop()
	c.Telemetry.Close()
	if err := c.Tracing.Shutdown(ctx); err != nil {
		log.Printf("core: tracing shutdown: %v", err)
	}
	return c.db.Close()
}
