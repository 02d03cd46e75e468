package services

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/kagan-sh/kagan-sub004/internal/config"
	"github.com/kagan-sh/kagan-sub004/internal/db/repositories"
	"github.com/kagan-sh/kagan-sub004/internal/models"
	"github.com/spf13/afero"
)

// sessionPromptFile is the handoff note a PAIR session's worktree carries,
// the message a human pastes into the editor/terminal to resume orchestration.
const sessionPromptFile = ".kagan/start_prompt.md"

// HandoffPayload is what session_manage(open) returns: the commands, links,
// and next-step instructions a human needs to attach to a PAIR session.
type HandoffPayload struct {
	TaskID         string                 `json:"task_id"`
	SessionName    string                 `json:"session_name"`
	Backend        models.TerminalBackend `json:"backend"`
	AlreadyExists  bool                   `json:"already_exists"`
	WorktreePath   string                 `json:"worktree_path"`
	PromptPath     string                 `json:"prompt_path"`
	PrimaryCommand string                 `json:"primary_command"`
	Commands       []string               `json:"commands"`
	Links          map[string]string      `json:"links"`
	Instructions   string                 `json:"instructions"`
	NextStep       string                 `json:"next_step"`
}

// SessionService opens/attaches/kills the terminal session a human pairs
// through; the actual interactive program is left running
// detached, Kagan only ever inspects or terminates the session wrapper.
type SessionService struct {
	repos *repositories.Repositories
	cfg   *config.Config
	fs    afero.Fs
}

func NewSessionService(repos *repositories.Repositories, cfg *config.Config) *SessionService {
	return &SessionService{repos: repos, cfg: cfg, fs: afero.NewOsFs()}
}

func sessionName(taskID string) string {
	return "kagan-" + taskID
}

// Open starts (or reuses) the session backing task's PAIR worktree and
// returns the handoff payload a human follows to attach.
func (s *SessionService) Open(ctx context.Context, task *models.Task, ws *models.Workspace) (HandoffPayload, error) {
	backend := models.ResolvePairBackend(task.TerminalBackend, s.cfg.General.DefaultPairTerminalBackend)
	name := sessionName(task.ID)

	exists, err := s.sessionExists(ctx, backend, name)
	if err != nil {
		return HandoffPayload{}, fmt.Errorf("check session: %w", err)
	}
	if !exists && backend == models.TerminalBackendTmux {
		if err := s.startTmuxSession(ctx, name, ws.Path); err != nil {
			return HandoffPayload{}, fmt.Errorf("start tmux session: %w", err)
		}
	}
	if err := s.writeStartPrompt(task, ws.Path); err != nil {
		return HandoffPayload{}, fmt.Errorf("write start prompt: %w", err)
	}

	return buildHandoffPayload(task.ID, backend, name, ws.Path, exists), nil
}

// writeStartPrompt drops the handoff note a human pastes into the paired
// editor/terminal on session open, seeding it with everything the task
// already carries so the agent doesn't start from a blank prompt.
func (s *SessionService) writeStartPrompt(task *models.Task, worktreePath string) error {
	promptPath := filepath.Join(worktreePath, sessionPromptFile)
	if err := s.fs.MkdirAll(filepath.Dir(promptPath), 0o755); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n%s\n", task.Title, task.Description)
	if len(task.AcceptanceCriteria) > 0 {
		b.WriteString("\n## Acceptance criteria\n")
		for _, c := range task.AcceptanceCriteria {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	b.WriteString("\nReply 'ready' here once you've read this so orchestration can continue.\n")

	return afero.WriteFile(s.fs, promptPath, []byte(b.String()), 0o644)
}

// Attach reports the command a human runs to attach to an already-open
// session; it does not itself take over the controlling terminal, since
// Kagan's own process is not interactive here.
func (s *SessionService) Attach(ctx context.Context, task *models.Task, ws *models.Workspace) (HandoffPayload, error) {
	backend := models.ResolvePairBackend(task.TerminalBackend, s.cfg.General.DefaultPairTerminalBackend)
	name := sessionName(task.ID)
	exists, err := s.sessionExists(ctx, backend, name)
	if err != nil {
		return HandoffPayload{}, fmt.Errorf("check session: %w", err)
	}
	return buildHandoffPayload(task.ID, backend, name, ws.Path, exists), nil
}

// Exists reports whether task's session wrapper is currently running,
// without starting or attaching to it.
func (s *SessionService) Exists(ctx context.Context, task *models.Task) (bool, error) {
	backend := models.ResolvePairBackend(task.TerminalBackend, s.cfg.General.DefaultPairTerminalBackend)
	return s.sessionExists(ctx, backend, sessionName(task.ID))
}

// Kill terminates task's session wrapper, if any. Not finding one is not
// an error — the session may have already ended on its own.
func (s *SessionService) Kill(ctx context.Context, task *models.Task) error {
	backend := models.ResolvePairBackend(task.TerminalBackend, s.cfg.General.DefaultPairTerminalBackend)
	name := sessionName(task.ID)
	if backend != models.TerminalBackendTmux {
		return nil
	}
	exists, err := s.sessionExists(ctx, backend, name)
	if err != nil || !exists {
		return err
	}
	return exec.CommandContext(ctx, "tmux", "kill-session", "-t", name).Run()
}

func (s *SessionService) sessionExists(ctx context.Context, backend models.TerminalBackend, name string) (bool, error) {
	if backend != models.TerminalBackendTmux {
		return false, nil
	}
	err := exec.CommandContext(ctx, "tmux", "has-session", "-t", name).Run()
	if err == nil {
		return true, nil
	}
	if _, ok := err.(*exec.ExitError); ok {
		return false, nil
	}
	return false, err
}

func (s *SessionService) startTmuxSession(ctx context.Context, name, worktreePath string) error {
	return exec.CommandContext(ctx, "tmux", "new-session", "-d", "-s", name, "-c", worktreePath).Run()
}

// buildHandoffPayload builds the rich handoff dict a client renders for a
// human to copy-paste, one branch per terminal backend.
func buildHandoffPayload(taskID string, backend models.TerminalBackend, sessionName, worktreePath string, alreadyExists bool) HandoffPayload {
	promptPath := filepath.Join(worktreePath, sessionPromptFile)
	quotedWorktree := shellQuote(worktreePath)
	quotedPrompt := shellQuote(promptPath)

	links := map[string]string{
		"worktree_file_url": "file://" + worktreePath,
		"prompt_file_url":   "file://" + promptPath,
	}

	var primaryCommand string
	var commands []string
	var instructions string

	switch backend {
	case models.TerminalBackendTmux:
		primaryCommand = fmt.Sprintf("tmux attach-session -t %s", sessionName)
		commands = []string{primaryCommand, "Detach and return to Kagan: Ctrl+b d"}
		links["tmux_docs"] = "https://github.com/tmux/tmux/wiki"
		instructions = "Open a terminal and run the attach command. When finished, detach with Ctrl+b d and continue in Kagan."
	case models.TerminalBackendVSCode:
		primaryCommand = fmt.Sprintf("code --new-window %s %s", quotedWorktree, quotedPrompt)
		commands = []string{primaryCommand, "Open startup prompt: cat " + quotedPrompt}
		links["vscode_prompt_uri"] = "vscode://file/" + promptPath
		instructions = "Open VS Code with the command above, then paste the startup prompt into chat."
	case models.TerminalBackendCursor:
		primaryCommand = fmt.Sprintf("cursor --new-window %s %s", quotedWorktree, quotedPrompt)
		commands = []string{primaryCommand, "Open startup prompt: cat " + quotedPrompt}
		links["cursor_prompt_uri"] = "cursor://file/" + promptPath
		instructions = "Open Cursor with the command above, then paste the startup prompt into chat."
	default:
		primaryCommand = "Open worktree: " + worktreePath
		commands = []string{primaryCommand}
		instructions = "Open the worktree and continue coding in your preferred terminal/editor."
	}

	return HandoffPayload{
		TaskID:         taskID,
		SessionName:    sessionName,
		Backend:        backend,
		AlreadyExists:  alreadyExists,
		WorktreePath:   worktreePath,
		PromptPath:     promptPath,
		PrimaryCommand: primaryCommand,
		Commands:       commands,
		Links:          links,
		Instructions:   instructions,
		NextStep:       "Reply 'ready' when attached so the agent can continue orchestration.",
	}
}

// shellQuote wraps path in single quotes for safe interpolation into the
// displayed shell commands, escaping any embedded single quote.
func shellQuote(path string) string {
	return "'" + strings.ReplaceAll(path, "'", `'\''`) + "'"
}
