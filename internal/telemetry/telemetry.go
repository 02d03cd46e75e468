// Package telemetry sends anonymous, opt-out lifecycle events (core
// start/stop, job submitted/completed, merge succeeded/failed) to PostHog so
// usage patterns can inform future work without identifying any user.
package telemetry

import (
	"crypto/sha256"
	"fmt"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/kagan-sh/kagan-sub004/internal/config"
	"github.com/posthog/posthog-go"
)

// Service tracks lifecycle events. A disabled Service (telemetry.enabled:
// false, or client construction failure) turns every Track* call into a
// no-op rather than an error, so callers never need to check IsEnabled
// before tracking.
type Service struct {
	client    posthog.Client
	enabled   bool
	machineID string
}

// New builds a Service from cfg.Telemetry. A missing api_key or a client
// construction failure disables telemetry rather than failing startup.
func New(cfg config.TelemetryConfig) *Service {
	if !cfg.Enabled || cfg.APIKey == "" {
		return &Service{enabled: false}
	}

	client, err := posthog.NewWithConfig(cfg.APIKey, posthog.Config{Endpoint: cfg.Host})
	if err != nil {
		log.Printf("telemetry: disabling, failed to initialize posthog client: %v", err)
		return &Service{enabled: false}
	}

	return &Service{
		client:    client,
		enabled:   true,
		machineID: machineID(),
	}
}

func machineID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	hash := sha256.Sum256([]byte(hostname))
	return fmt.Sprintf("machine_%x", hash[:6])
}

// track enqueues event with the standard properties plus props, silently
// returning if telemetry is disabled.
func (s *Service) track(event string, props map[string]interface{}) {
	if !s.enabled || s.client == nil {
		return
	}
	if props == nil {
		props = make(map[string]interface{})
	}
	props["machine_id"] = s.machineID
	props["os"] = runtime.GOOS
	props["arch"] = runtime.GOARCH
	props["$process_person_profile"] = false

	if err := s.client.Enqueue(posthog.Capture{
		DistinctId: s.machineID,
		Event:      event,
		Properties: props,
	}); err != nil {
		log.Printf("telemetry: failed to enqueue %s: %v", event, err)
	}
}

// CoreStarted records the core daemon coming up.
func (s *Service) CoreStarted() {
	s.track("core_started", map[string]interface{}{"go_version": runtime.Version()})
}

// CoreStopped records a clean core shutdown.
func (s *Service) CoreStopped(uptime time.Duration) {
	s.track("core_stopped", map[string]interface{}{"uptime_seconds": uptime.Seconds()})
}

// JobSubmitted records a job entering the queue.
func (s *Service) JobSubmitted(jobKind string) {
	s.track("job_submitted", map[string]interface{}{"job_kind": jobKind})
}

// JobCompleted records a job leaving the queue, successfully or not.
func (s *Service) JobCompleted(jobKind string, success bool, durationMs int64) {
	s.track("job_completed", map[string]interface{}{
		"job_kind":    jobKind,
		"success":     success,
		"duration_ms": durationMs,
	})
}

// MergeSucceeded records a task merge landing cleanly.
func (s *Service) MergeSucceeded(taskType string) {
	s.track("merge_succeeded", map[string]interface{}{"task_type": taskType})
}

// MergeFailed records a blocked or conflicting merge attempt.
func (s *Service) MergeFailed(taskType string, reason string) {
	s.track("merge_failed", map[string]interface{}{"task_type": taskType, "reason": reason})
}

// Close flushes and shuts down the underlying client.
func (s *Service) Close() {
	if s.enabled && s.client != nil {
		s.client.Close()
	}
}

// IsEnabled reports whether events are actually being sent.
func (s *Service) IsEnabled() bool {
	return s.enabled
}
