// Package tracing wraps dispatched requests and merge/rebase git
// invocations in OpenTelemetry spans, and records counters/histograms for
// the same operations. When cfg.Tracing.Enabled is true and
// cfg.Tracing.OTLPEndpoint is set, spans are additionally batched out over
// OTLP/gRPC; otherwise the provider still
// samples (or no-ops) locally and any process embedding this module can
// attach its own span processor to the global provider this package
// installs.
package tracing

import (
	"context"
	"fmt"

	"github.com/kagan-sh/kagan-sub004/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "github.com/kagan-sh/kagan-sub004"
	meterName  = "github.com/kagan-sh/kagan-sub004"
)

// Service owns the process-wide TracerProvider lifecycle plus the request,
// job, and merge instruments every dispatched operation records against.
type Service struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	meter    metric.Meter
	enabled  bool

	requestCounter  metric.Int64Counter
	requestDuration metric.Float64Histogram
	jobCounter      metric.Int64Counter
	mergeCounter    metric.Int64Counter
}

// New builds and installs a global TracerProvider per cfg.Tracing. When
// disabled, every span Start call below still returns a valid (no-op)
// span so callers never need to branch on Service.Enabled.
func New(cfg config.TracingConfig) (*Service, error) {
	sampler := sdktrace.NeverSample()
	if cfg.Enabled {
		sampler = sdktrace.AlwaysSample()
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName("kagan-core"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sampler),
		sdktrace.WithResource(res),
	}

	if cfg.Enabled && cfg.OTLPEndpoint != "" {
		exporter, err := otlptracegrpc.New(context.Background(),
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("tracing: build otlp exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)

	meter := otel.Meter(meterName)

	s := &Service{
		provider: provider,
		tracer:   provider.Tracer(tracerName),
		meter:    meter,
		enabled:  cfg.Enabled,
	}

	s.requestCounter, err = meter.Int64Counter(
		"kagan_dispatch_requests_total",
		metric.WithDescription("Total number of dispatched capability.method calls"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: build request counter: %w", err)
	}

	s.requestDuration, err = meter.Float64Histogram(
		"kagan_dispatch_request_duration_seconds",
		metric.WithDescription("Duration of dispatched capability.method calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: build request duration histogram: %w", err)
	}

	s.jobCounter, err = meter.Int64Counter(
		"kagan_jobs_completed_total",
		metric.WithDescription("Total number of async jobs that finished, by action and outcome"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: build job counter: %w", err)
	}

	s.mergeCounter, err = meter.Int64Counter(
		"kagan_merge_attempts_total",
		metric.WithDescription("Total number of merge/rebase attempts, by operation and outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: build merge counter: %w", err)
	}

	return s, nil
}

// Enabled reports whether sampling is turned on.
func (s *Service) Enabled() bool { return s != nil && s.enabled }

// StartRequestSpan wraps one dispatched CoreRequest. A nil Service (as used
// by unit tests that never construct one) returns a no-op span.
func (s *Service) StartRequestSpan(ctx context.Context, capability, method string) (context.Context, trace.Span) {
	if s == nil {
		return trace.ContextWithSpan(ctx, trace.SpanFromContext(ctx)), trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, "dispatch."+capability+"."+method, trace.WithAttributes(
		semconv.RPCMethod(method),
	))
}

// RecordRequest records one completed dispatch call's outcome and latency.
func (s *Service) RecordRequest(ctx context.Context, capability, method string, ok bool, seconds float64) {
	if s == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("capability", capability),
		attribute.String("method", method),
		attribute.Bool("ok", ok),
	)
	s.requestCounter.Add(ctx, 1, attrs)
	s.requestDuration.Record(ctx, seconds, attrs)
}

// RecordJob records one async job completion, keyed by its action and
// whether it ended in error.
func (s *Service) RecordJob(ctx context.Context, action string, ok bool) {
	if s == nil {
		return
	}
	s.jobCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.Bool("ok", ok),
	))
}

// RecordMerge records one merge/rebase attempt, keyed by operation
// ("merge"/"rebase") and whether it succeeded.
func (s *Service) RecordMerge(ctx context.Context, operation string, ok bool) {
	if s == nil {
		return
	}
	s.mergeCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("ok", ok),
	))
}

// StartGitSpan wraps one merge/rebase git invocation.
func (s *Service) StartGitSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, "git."+operation)
}

// Shutdown flushes and releases the provider's resources.
func (s *Service) Shutdown(ctx context.Context) error {
	if s == nil || s.provider == nil {
		return nil
	}
	return s.provider.Shutdown(ctx)
}
