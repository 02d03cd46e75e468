package ipc

import (
	"context"
	"testing"

	"github.com/kagan-sh/kagan-sub004/internal/config"
	"github.com/kagan-sh/kagan-sub004/internal/security"
	"github.com/kagan-sh/kagan-sub004/internal/session"
	"github.com/kagan-sh/kagan-sub004/internal/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher() *CoreDispatcher {
	trc, err := tracing.New(config.TracingConfig{})
	if err != nil {
		panic(err)
	}
	return NewCoreDispatcher(session.NewRegistry(), trc)
}

func TestDispatch_UnknownMethod(t *testing.T) {
	d := newTestDispatcher()
	resp, err := d.Dispatch(context.Background(), &Request{
		ID: "1", SessionID: "s1", Capability: "tasks", Method: "bogus",
	})
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Equal(t, "UNKNOWN_METHOD", resp.Error.Code)
}

func TestDispatch_AuthorizationDenied(t *testing.T) {
	d := newTestDispatcher()
	called := false
	d.Register("tasks", "create", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		called = true
		return map[string]string{"ok": "yes"}, nil
	})

	resp, err := d.Dispatch(context.Background(), &Request{
		ID: "1", SessionID: "s1", Profile: string(security.ProfileViewer),
		Capability: "tasks", Method: "create",
	})
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Equal(t, "AUTHORIZATION_DENIED", resp.Error.Code)
	assert.False(t, called)
}

func TestDispatch_SuccessAndIdempotentReplay(t *testing.T) {
	d := newTestDispatcher()
	calls := 0
	d.Register("tasks", "create", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		calls++
		return map[string]int{"calls": calls}, nil
	})

	req := &Request{
		ID: "1", SessionID: "s1", Profile: string(security.ProfileOperator),
		Capability: "tasks", Method: "create", Idempotency: "key-1",
	}
	first, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, first.OK)
	assert.Equal(t, 1, calls)

	req.ID = "2"
	second, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.OK)
	assert.Equal(t, "2", second.ID)
	assert.Equal(t, 1, calls, "idempotent replay must not re-invoke the handler")
	assert.JSONEq(t, string(first.Result), string(second.Result))
}

func TestDispatch_SessionBindingRejectsProfileSwitch(t *testing.T) {
	d := newTestDispatcher()
	d.Register("tasks", "get", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		return nil, nil
	})

	req := &Request{ID: "1", SessionID: "s1", Profile: string(security.ProfileViewer), Capability: "tasks", Method: "get"}
	resp, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.OK)

	req.ID = "2"
	req.Profile = string(security.ProfileMaintainer)
	resp, err = d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Equal(t, "INVALID_PROFILE", resp.Error.Code)
}
