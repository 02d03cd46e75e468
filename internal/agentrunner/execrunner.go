// Package agentrunner provides the one concrete services.AgentRunner this
// module ships: a process launcher. It execs the configured agent command
// inside the task's workspace worktree, captures its combined output to a
// sidecar log file, and records an Execution row once the process exits.
// What that process actually speaks to its own stdio — ACP, a bespoke
// protocol, nothing at all — is never parsed or interpreted here; this
// package only starts it, waits for it, and keeps the audit trail.
package agentrunner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/kagan-sh/kagan-sub004/internal/config"
	"github.com/kagan-sh/kagan-sub004/internal/db/repositories"
	"github.com/kagan-sh/kagan-sub004/internal/models"
	"github.com/oklog/ulid/v2"
)

// ProcessRunner is the process-exec backed services.AgentRunner.
type ProcessRunner struct {
	repos   *repositories.Repositories
	command []string
	logDir  string
}

// New builds a ProcessRunner using cfg.General.AgentCommand as the
// argv to spawn for every automation iteration, writing per-execution
// logs under logDir.
func New(repos *repositories.Repositories, cfg *config.Config, logDir string) *ProcessRunner {
	return &ProcessRunner{
		repos:   repos,
		command: cfg.General.AgentCommand,
		logDir:  logDir,
	}
}

// Run implements services.AgentRunner.
func (r *ProcessRunner) Run(ctx context.Context, task *models.Task, readOnly bool, autoApprove bool) error {
	if len(r.command) == 0 {
		return fmt.Errorf("agentrunner: general.agent_command is empty, nothing to launch")
	}

	ws, err := r.repos.Workspaces.GetForTask(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("agentrunner: look up workspace for task %s: %w", task.ID, err)
	}

	if err := os.MkdirAll(r.logDir, 0o755); err != nil {
		return fmt.Errorf("agentrunner: create log dir: %w", err)
	}
	executionID := ulid.Make().String()
	logPath := filepath.Join(r.logDir, executionID+".log")
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("agentrunner: create execution log: %w", err)
	}
	defer logFile.Close()

	cmd := exec.CommandContext(ctx, r.command[0], r.command[1:]...)
	cmd.Dir = ws.Path
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = append(os.Environ(),
		"KAGAN_TASK_ID="+task.ID,
		"KAGAN_TASK_TITLE="+task.Title,
		"KAGAN_READ_ONLY="+boolEnv(readOnly),
		"KAGAN_AUTO_APPROVE="+boolEnv(autoApprove),
	)

	runErr := cmd.Run()

	execRecord := &models.Execution{
		ID:      executionID,
		TaskID:  task.ID,
		LogPath: logPath,
		Metadata: map[string]string{
			"read_only":    boolEnv(readOnly),
			"auto_approve": boolEnv(autoApprove),
			"command":      r.command[0],
		},
	}
	if runErr != nil {
		execRecord.Metadata["error"] = runErr.Error()
	}
	if createErr := r.repos.Executions.Create(ctx, execRecord); createErr != nil {
		if runErr != nil {
			return fmt.Errorf("agentrunner: run failed (%w) and recording execution also failed: %v", runErr, createErr)
		}
		return fmt.Errorf("agentrunner: record execution: %w", createErr)
	}

	if runErr != nil {
		return fmt.Errorf("agentrunner: agent process: %w", runErr)
	}
	return nil
}

func boolEnv(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
