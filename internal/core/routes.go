package core

import (
	"context"
	"fmt"
	"time"

	"github.com/kagan-sh/kagan-sub004/internal/ipc"
	"github.com/kagan-sh/kagan-sub004/internal/models"
	"github.com/kagan-sh/kagan-sub004/internal/security"
	"github.com/kagan-sh/kagan-sub004/internal/services"
)

// registerRoutes binds every capability.method this instance serves onto
// the dispatcher. Route handlers are thin: decode params, call the
// matching service method, return its result or error untouched so
// ipc.NewErrorResponse/ipc.CodedError can surface the right machine code.
func (c *Core) registerRoutes() {
	c.registerProjectRoutes()
	c.registerTaskRoutes()
	c.registerWorkspaceRoutes()
	c.registerSessionRoutes()
	c.registerReviewRoutes()
	c.registerAuditRoutes()
	c.registerJanitorRoutes()
	c.registerWaitRoutes()
	c.registerAutomationRoutes()
	c.registerJobRoutes()
	c.registerPlanRoutes()
	c.registerPluginRoutes()
}

func (c *Core) registerProjectRoutes() {
	d := c.Dispatcher
	d.Register("projects", "create", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var p models.Project
		if err := ipc.DecodeParams(params, &p); err != nil {
			return nil, err
		}
		return c.Projects.Create(ctx, &p)
	})
	d.Register("projects", "get", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct{ ID string `json:"id"` }
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		return c.Projects.Get(ctx, req.ID)
	})
	d.Register("projects", "list", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		return c.Projects.List(ctx)
	})
	d.Register("projects", "open", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct{ ID string `json:"id"` }
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		return c.Projects.Open(ctx, req.ID)
	})
	d.Register("projects", "delete", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct{ ID string `json:"id"` }
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		return nil, c.Projects.Delete(ctx, req.ID)
	})
	d.Register("projects", "add_repo", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct {
			ProjectID    string     `json:"project_id"`
			Repo         models.Repo `json:"repo"`
			IsPrimary    bool       `json:"is_primary"`
			DisplayOrder int        `json:"display_order"`
		}
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		return c.Projects.AddRepo(ctx, req.ProjectID, &req.Repo, req.IsPrimary, req.DisplayOrder)
	})
	d.Register("projects", "repos", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct{ ProjectID string `json:"project_id"` }
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		return c.Projects.GetProjectRepos(ctx, req.ProjectID)
	})
	d.Register("projects", "remove_repo", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct {
			ProjectID string `json:"project_id"`
			RepoID    string `json:"repo_id"`
		}
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		return nil, c.Projects.RemoveRepo(ctx, req.ProjectID, req.RepoID)
	})
}

func (c *Core) registerTaskRoutes() {
	d := c.Dispatcher
	d.Register("tasks", "create", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var t models.Task
		if err := ipc.DecodeParams(params, &t); err != nil {
			return nil, err
		}
		return c.Tasks.Create(ctx, &t)
	})
	d.Register("tasks", "get", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct{ TaskID string `json:"task_id"` }
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		return c.Tasks.Get(ctx, req.TaskID)
	})
	d.Register("tasks", "list_by_project", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct{ ProjectID string `json:"project_id"` }
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		return c.Tasks.ListByProject(ctx, req.ProjectID)
	})
	d.Register("tasks", "list_by_status", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct{ Status models.TaskStatus `json:"status"` }
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		return c.Tasks.ListAllByStatus(ctx, req.Status)
	})
	d.Register("tasks", "list", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		return c.Tasks.ListAll(ctx)
	})
	d.Register("tasks", "update", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct {
			TaskID string                  `json:"task_id"`
			Fields services.UpdateFields   `json:"fields"`
		}
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		return c.Tasks.UpdateFields(ctx, req.TaskID, req.Fields)
	})
	d.Register("tasks", "move", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct {
			TaskID string            `json:"task_id"`
			Status models.TaskStatus `json:"status"`
		}
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		return c.Tasks.Move(ctx, req.TaskID, req.Status)
	})
	d.Register("tasks", "delete", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct{ TaskID string `json:"task_id"` }
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		return nil, c.Tasks.Delete(ctx, req.TaskID)
	})
	d.Register("tasks", "scratchpad", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct{ TaskID string `json:"task_id"` }
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		return c.Tasks.GetScratchpad(ctx, req.TaskID)
	})
	d.Register("tasks", "update_scratchpad", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct {
			TaskID  string `json:"task_id"`
			Content string `json:"content"`
		}
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		return c.Tasks.AppendScratchpad(ctx, req.TaskID, req.Content)
	})
	d.Register("tasks", "list_events", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct{ TaskID string `json:"task_id"` }
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		return c.Tasks.ListEvents(ctx, req.TaskID)
	})
	d.Register("tasks", "logs", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct{ TaskID string `json:"task_id"` }
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		return c.Tasks.ListLogs(ctx, req.TaskID)
	})
	d.Register("tasks", "context", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct{ TaskID string `json:"task_id"` }
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		task, err := c.Tasks.Get(ctx, req.TaskID)
		if err != nil {
			return nil, err
		}
		return c.Tasks.TaskLinks(ctx, task)
	})
}

func (c *Core) registerWorkspaceRoutes() {
	d := c.Dispatcher
	d.Register("workspaces", "provision", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct {
			ProjectID          string  `json:"project_id"`
			TaskID             string  `json:"task_id"`
			BaseBranchOverride *string `json:"base_branch_override"`
		}
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		return c.Workspaces.Provision(ctx, req.ProjectID, req.TaskID, req.BaseBranchOverride)
	})
	d.Register("workspaces", "get", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct{ ID string `json:"id"` }
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		return c.Workspaces.Get(ctx, req.ID)
	})
	d.Register("workspaces", "get_for_task", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct{ TaskID string `json:"task_id"` }
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		return c.Workspaces.GetForTask(ctx, req.TaskID)
	})
	d.Register("workspaces", "list_active", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		return c.Workspaces.ListActive(ctx)
	})
	d.Register("workspaces", "release", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct {
			WorkspaceID string `json:"workspace_id"`
			Force       bool   `json:"force"`
		}
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		return nil, c.Workspaces.Release(ctx, req.WorkspaceID, req.Force)
	})
}

func (c *Core) registerSessionRoutes() {
	d := c.Dispatcher
	withTaskAndWorkspace := func(ctx context.Context, taskID string) (*models.Task, *models.Workspace, error) {
		task, err := c.Tasks.Get(ctx, taskID)
		if err != nil {
			return nil, nil, err
		}
		ws, err := c.Workspaces.GetForTask(ctx, taskID)
		if err != nil {
			return nil, nil, err
		}
		return task, ws, nil
	}
	d.Register("sessions", "create", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct{ TaskID string `json:"task_id"` }
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		task, ws, err := withTaskAndWorkspace(ctx, req.TaskID)
		if err != nil {
			return nil, err
		}
		return c.Sessions.Open(ctx, task, ws)
	})
	d.Register("sessions", "exists", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct{ TaskID string `json:"task_id"` }
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		task, err := c.Tasks.Get(ctx, req.TaskID)
		if err != nil {
			return nil, err
		}
		exists, err := c.Sessions.Exists(ctx, task)
		if err != nil {
			return nil, err
		}
		return struct {
			Exists bool `json:"exists"`
		}{exists}, nil
	})
	d.Register("sessions", "attach", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct{ TaskID string `json:"task_id"` }
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		task, ws, err := withTaskAndWorkspace(ctx, req.TaskID)
		if err != nil {
			return nil, err
		}
		return c.Sessions.Attach(ctx, task, ws)
	})
	d.Register("sessions", "kill", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct{ TaskID string `json:"task_id"` }
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		task, err := c.Tasks.Get(ctx, req.TaskID)
		if err != nil {
			return nil, err
		}
		return nil, c.Sessions.Kill(ctx, task)
	})
}

// registerReviewRoutes wires the review capability's full lifecycle:
// request (spawn the read-only review-lane agent), approve/reject (the
// REVIEW <-> IN_PROGRESS/DONE/BACKLOG transitions), and merge/rebase (the
// destructive git operations), matching internal/security/profiles.go's
// method names exactly.
func (c *Core) registerReviewRoutes() {
	d := c.Dispatcher
	d.Register("review", "request", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct{ TaskID string `json:"task_id"` }
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		task, err := c.Tasks.Get(ctx, req.TaskID)
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
	d.Register("review", "approve", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct{ TaskID string `json:"task_id"` }
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		task, err := c.Tasks.Get(ctx, req.TaskID)
		if err != nil {
			return nil, err
		}
		return c.Tasks.SyncStatusFromReviewPass(ctx, task)
	})
	d.Register("review", "reject", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct {
			TaskID string `json:"task_id"`
			Reason string `json:"reason"`
			Action string `json:"action"`
		}
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		task, err := c.Tasks.Get(ctx, req.TaskID)
		if err != nil {
			return nil, err
		}
		return c.Merges.ApplyRejectionFeedback(ctx, task, req.Reason, req.Action)
	})
	d.Register("review", "merge", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct{ TaskID string `json:"task_id"` }
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		task, err := c.Tasks.Get(ctx, req.TaskID)
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
	d.Register("review", "rebase", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct{ TaskID string `json:"task_id"` }
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		task, err := c.Tasks.Get(ctx, req.TaskID)
		if err != nil {
			return nil, err
		}
		ok, err := c.Merges.RebaseForReview(ctx, task)
		if err != nil {
			return nil, err
		}
		return struct {
			Clean bool `json:"clean"`
		}{ok}, nil
	})
}

func (c *Core) registerAuditRoutes() {
	d := c.Dispatcher
	d.Register("audit", "list_events", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct {
			Capability string `json:"capability"`
			Limit      int    `json:"limit"`
			Cursor     string `json:"cursor"`
		}
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		return c.Audit.ListEvents(ctx, req.Capability, req.Limit, req.Cursor)
	})
}

func (c *Core) registerJanitorRoutes() {
	d := c.Dispatcher
	d.Register("janitor", "run", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct {
			PruneWorktrees bool `json:"prune_worktrees"`
			GCBranches     bool `json:"gc_branches"`
		}
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		result, err := c.Janitor.Run(ctx, req.PruneWorktrees, req.GCBranches)
		if err != nil {
			return nil, err
		}
		return result, nil
	})
}

func (c *Core) registerWaitRoutes() {
	d := c.Dispatcher
	d.Register("tasks", "wait", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct {
			TaskID        string              `json:"task_id"`
			TimeoutMS     int64               `json:"timeout_ms"`
			WaitForStatus []models.TaskStatus `json:"wait_for_status"`
			SinceCursor   *time.Time          `json:"since_cursor"`
		}
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		timeout := time.Duration(req.TimeoutMS) * time.Millisecond
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		return c.Wait.Wait(ctx, req.TaskID, timeout, req.WaitForStatus, req.SinceCursor)
	})
}

func (c *Core) registerAutomationRoutes() {
	d := c.Dispatcher
	d.Register("automation", "spawn", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct {
			TaskID   string `json:"task_id"`
			ReadOnly bool   `json:"read_only"`
		}
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		task, err := c.Tasks.Get(ctx, req.TaskID)
		if err != nil {
			return nil, err
		}
		spawned, err := c.Automation.SpawnForTask(ctx, task, req.ReadOnly)
		if err != nil {
			return nil, err
		}
		return struct {
			Spawned bool `json:"spawned"`
		}{spawned}, nil
	})
	d.Register("automation", "stop", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct{ TaskID string `json:"task_id"` }
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		stopped := c.Automation.StopTask(req.TaskID)
		return struct {
			Stopped bool `json:"stopped"`
		}{stopped}, nil
	})
	d.Register("automation", "is_running", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct{ TaskID string `json:"task_id"` }
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		return struct {
			Running   bool `json:"running"`
			Reviewing bool `json:"reviewing"`
		}{c.Automation.IsRunning(req.TaskID), c.Automation.IsReviewing(req.TaskID)}, nil
	})
	d.Register("automation", "reset_iterations", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct{ TaskID string `json:"task_id"` }
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		c.Automation.ResetIterations(req.TaskID)
		return nil, nil
	})
}

func (c *Core) registerJobRoutes() {
	d := c.Dispatcher
	d.Register("jobs", "submit", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct {
			TaskID string                 `json:"task_id"`
			Action models.JobAction       `json:"action"`
			Params map[string]interface{} `json:"params"`
		}
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		return c.Jobs.Submit(ctx, req.TaskID, req.Action, req.Params)
	})
	d.Register("jobs", "get", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct{ JobID string `json:"job_id"` }
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		return c.Jobs.Get(req.JobID)
	})
	d.Register("jobs", "wait", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct {
			JobID     string `json:"job_id"`
			TimeoutMS int64  `json:"timeout_ms"`
		}
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		timeout := time.Duration(req.TimeoutMS) * time.Millisecond
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		job, timedOut, err := c.Jobs.Wait(ctx, req.JobID, timeout)
		if err != nil {
			return nil, err
		}
		return struct {
			Job      interface{} `json:"job"`
			TimedOut bool        `json:"timed_out"`
		}{job, timedOut}, nil
	})
	d.Register("jobs", "events", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct {
			JobID  string `json:"job_id"`
			Limit  int    `json:"limit"`
			Offset int    `json:"offset"`
		}
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		events, returned, total, hasMore, nextOffset, err := c.Jobs.Events(req.JobID, req.Limit, req.Offset)
		if err != nil {
			return nil, err
		}
		return struct {
			Events     interface{} `json:"events"`
			Returned   int         `json:"returned"`
			Total      int         `json:"total"`
			HasMore    bool        `json:"has_more"`
			NextOffset int         `json:"next_offset"`
		}{events, returned, total, hasMore, nextOffset}, nil
	})
	d.Register("jobs", "cancel", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct{ JobID string `json:"job_id"` }
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		return c.Jobs.Cancel(req.JobID)
	})
}

// registerPluginRoutes wires one stable entry point, plugins.invoke, onto
// the dispatcher, forwarding to the plugin registry with the caller's
// already-resolved session profile. Plugin operations themselves are
// registered against c.Plugins directly by whatever loads their
// manifests (out of this module's scope — no plugin binary discovery or
// process-isolation loader exists here); this route is what makes an
// already-committed plugin operation reachable from a client without the
// dispatcher needing to know about plugins at registration time.
func (c *Core) registerPluginRoutes() {
	d := c.Dispatcher
	d.Register("plugins", "invoke", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct {
			Capability string                 `json:"capability"`
			Method     string                 `json:"method"`
			Params     map[string]interface{} `json:"params"`
		}
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		binding := ipc.BindingFromContext(ctx)
		profile := security.DefaultProfile
		if binding != nil && binding.Policy != nil {
			profile = binding.Policy.Profile()
		}
		return c.Plugins.Invoke(ctx, req.Capability, req.Method, profile, req.Params)
	})
}

func (c *Core) registerPlanRoutes() {
	if c.Plan == nil {
		return
	}
	d := c.Dispatcher
	d.Register("plan", "propose", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		var req struct{ Brief string `json:"brief"` }
		if err := ipc.DecodeParams(params, &req); err != nil {
			return nil, err
		}
		candidates, err := c.Plan.Propose(ctx, req.Brief)
		if err != nil {
			return nil, fmt.Errorf("plan.propose: %w", err)
		}
		return candidates, nil
	})
}
