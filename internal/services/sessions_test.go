package services

import (
	"context"
	"testing"

	"github.com/kagan-sh/kagan-sub004/internal/models"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func newTestSessionService(t *testing.T) *SessionService {
	t.Helper()
	repos := setupTestRepos(t)
	cfg := testConfig()
	return &SessionService{repos: repos, cfg: cfg, fs: afero.NewMemMapFs()}
}

func TestSessionService_OpenWritesStartPromptAndHandoff(t *testing.T) {
	svc := newTestSessionService(t)
	ctx := context.Background()

	backend := models.TerminalBackendVSCode
	task := &models.Task{
		ID:                 "task-1",
		Title:              "Add retry logic",
		Description:        "Wrap the client in a retry loop.",
		AcceptanceCriteria: []string{"retries 3 times", "backs off exponentially"},
		TerminalBackend:    &backend,
	}
	ws := &models.Workspace{ID: "ws-1", Path: "/work/ws-1"}

	payload, err := svc.Open(ctx, task, ws)
	require.NoError(t, err)
	require.Equal(t, "kagan-task-1", payload.SessionName)
	require.Equal(t, models.TerminalBackendVSCode, payload.Backend)
	require.False(t, payload.AlreadyExists)
	require.Contains(t, payload.PrimaryCommand, "code --new-window")
	require.Contains(t, payload.Links, "vscode_prompt_uri")

	content, err := afero.ReadFile(svc.fs, "/work/ws-1/.kagan/start_prompt.md")
	require.NoError(t, err)
	require.Contains(t, string(content), "Add retry logic")
	require.Contains(t, string(content), "retries 3 times")
}

func TestSessionService_KillNonTmuxBackendIsNoop(t *testing.T) {
	svc := newTestSessionService(t)
	backend := models.TerminalBackendCursor
	task := &models.Task{ID: "task-1", TerminalBackend: &backend}

	require.NoError(t, svc.Kill(context.Background(), task))
}

func TestSessionService_AttachReflectsDefaultBackend(t *testing.T) {
	svc := newTestSessionService(t)
	svc.cfg.General.DefaultPairTerminalBackend = "cursor"
	task := &models.Task{ID: "task-1"}
	ws := &models.Workspace{ID: "ws-1", Path: "/work/ws-1"}

	payload, err := svc.Attach(context.Background(), task, ws)
	require.NoError(t, err)
	require.Equal(t, models.TerminalBackendCursor, payload.Backend)
	require.Contains(t, payload.PrimaryCommand, "cursor --new-window")
}
