package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kagan-sh/kagan-sub004/internal/config"
	"github.com/kagan-sh/kagan-sub004/internal/ipc"
	"github.com/stretchr/testify/require"
)

func newTestCore(t *testing.T) *Core {
	t.Helper()
	dataDir := t.TempDir()
	require.NoError(t, os.Setenv("KAGAN_DATA_DIR", dataDir))
	t.Cleanup(func() { os.Unsetenv("KAGAN_DATA_DIR") })

	cfg := &config.Config{}
	cfg.General.MaxConcurrentAgents = 3
	cfg.General.MaxIterations = 25
	cfg.General.DefaultBaseBranch = "main"
	cfg.General.DefaultPairTerminalBackend = "tmux"
	cfg.General.AgentCommand = []string{"true"}

	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Shutdown(context.Background()) })
	return c
}

func TestNew_BuildsUsableDispatcher(t *testing.T) {
	c := newTestCore(t)

	resp, err := c.Dispatcher.Dispatch(context.Background(), &ipc.Request{
		ID:         "req-1",
		SessionID:  "test-session-1",
		Origin:     "legacy",
		Capability: "projects",
		Method:     "list",
	})
	require.NoError(t, err)
	require.True(t, resp.OK)
}

func TestNew_CreateProjectThenFetchIt(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	createResp, err := c.Dispatcher.Dispatch(ctx, &ipc.Request{
		ID:         "req-1",
		SessionID:  "test-session-2",
		Origin:     "legacy",
		Profile:    "maintainer",
		Capability: "projects",
		Method:     "create",
		Params:     map[string]interface{}{"name": "Kagan"},
	})
	require.NoError(t, err)
	require.True(t, createResp.OK)

	listResp, err := c.Dispatcher.Dispatch(ctx, &ipc.Request{
		ID:         "req-2",
		SessionID:  "test-session-2",
		Origin:     "legacy",
		Capability: "projects",
		Method:     "list",
	})
	require.NoError(t, err)
	require.True(t, listResp.OK)
	require.Contains(t, string(listResp.Result), "Kagan")
}

func TestNew_UnknownPluginInvokeReturnsError(t *testing.T) {
	c := newTestCore(t)

	resp, err := c.Dispatcher.Dispatch(context.Background(), &ipc.Request{
		ID:         "req-1",
		SessionID:  "test-session-3",
		Origin:     "legacy",
		Profile:    "maintainer",
		Capability: "plugins",
		Method:     "invoke",
		Params: map[string]interface{}{
			"capability": "github",
			"method":     "sync",
		},
	})
	require.NoError(t, err)
	require.False(t, resp.OK)
}

func TestGetDatabasePath_UsesOverriddenDataDir(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, os.Setenv("KAGAN_DATA_DIR", dataDir))
	defer os.Unsetenv("KAGAN_DATA_DIR")
	require.Equal(t, filepath.Join(dataDir, "kagan.db"), config.GetDatabasePath())
}
