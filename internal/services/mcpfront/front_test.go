package mcpfront

import (
	"context"
	"testing"

	"github.com/kagan-sh/kagan-sub004/internal/config"
	"github.com/kagan-sh/kagan-sub004/internal/ipc"
	"github.com/kagan-sh/kagan-sub004/internal/session"
	"github.com/kagan-sh/kagan-sub004/internal/tracing"
	mcpsdk "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher() *ipc.CoreDispatcher {
	trc, err := tracing.New(config.TracingConfig{})
	if err != nil {
		panic(err)
	}
	d := ipc.NewCoreDispatcher(session.NewRegistry(), trc)
	d.Register("tasks", "get", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		return params, nil
	})
	return d
}

func toolRequest(args map[string]interface{}) mcpsdk.CallToolRequest {
	req := mcpsdk.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func TestFront_HandleCallForwardsToDispatcher(t *testing.T) {
	f := New(newTestDispatcher())

	result, err := f.handleCall(context.Background(), toolRequest(map[string]interface{}{
		"capability":  "tasks",
		"method":      "get",
		"params_json": `{"title": "hello"}`,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
}

func TestFront_HandleCallMissingCapabilityErrors(t *testing.T) {
	f := New(newTestDispatcher())

	result, err := f.handleCall(context.Background(), toolRequest(map[string]interface{}{
		"method": "echo",
	}))
	require.NoError(t, err)
	require.True(t, result.IsError)
}

func TestFront_HandleCallUnknownMethodSurfacesDispatcherError(t *testing.T) {
	f := New(newTestDispatcher())

	result, err := f.handleCall(context.Background(), toolRequest(map[string]interface{}{
		"capability": "tasks",
		"method":     "does_not_exist",
	}))
	require.NoError(t, err)
	require.True(t, result.IsError)
}
