package telemetry

import (
	"testing"
	"time"

	"github.com/kagan-sh/kagan-sub004/internal/config"
	"github.com/stretchr/testify/require"
)

func TestNew_DisabledWhenConfigDisabled(t *testing.T) {
	svc := New(config.TelemetryConfig{Enabled: false, APIKey: "phc_whatever"})
	require.False(t, svc.IsEnabled())
}

func TestNew_DisabledWhenAPIKeyMissing(t *testing.T) {
	svc := New(config.TelemetryConfig{Enabled: true, APIKey: ""})
	require.False(t, svc.IsEnabled())
}

func TestService_TrackMethodsAreNoopsWhenDisabled(t *testing.T) {
	svc := New(config.TelemetryConfig{Enabled: false})
	require.NotPanics(t, func() {
		svc.CoreStarted()
		svc.CoreStopped(time.Minute)
		svc.JobSubmitted("merge")
		svc.JobCompleted("merge", true, 120)
		svc.MergeSucceeded("auto")
		svc.MergeFailed("pair", "conflict")
		svc.Close()
	})
}
