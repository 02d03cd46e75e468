package tracing

import (
	"context"
	"testing"

	"github.com/kagan-sh/kagan-sub004/internal/config"
	"github.com/stretchr/testify/require"
)

func TestNew_DisabledStillReturnsUsableSpans(t *testing.T) {
	svc, err := New(config.TracingConfig{Enabled: false})
	require.NoError(t, err)
	require.False(t, svc.Enabled())

	ctx, span := svc.StartRequestSpan(context.Background(), "tasks", "create")
	require.NotNil(t, ctx)
	span.End()

	ctx, span = svc.StartGitSpan(context.Background(), "merge")
	require.NotNil(t, ctx)
	span.End()

	require.NoError(t, svc.Shutdown(context.Background()))
}

func TestNew_EnabledInstallsSampler(t *testing.T) {
	svc, err := New(config.TracingConfig{Enabled: true})
	require.NoError(t, err)
	require.True(t, svc.Enabled())
	require.NoError(t, svc.Shutdown(context.Background()))
}
