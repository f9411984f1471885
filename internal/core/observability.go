package core

import (
	"context"
	"time"
)

// MetricsRecorder receives service operation outcomes. Implementations must
// be safe for concurrent use.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
	// ObserveConflict records an optimistic concurrency abort for operation.
	ObserveConflict(ctx context.Context, operation string)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan terminates a started span.
type TraceSpan interface {
	End(err error)
}

// NoopMetricsRecorder drops all observations.
type NoopMetricsRecorder struct{}

// Observe implements MetricsRecorder.
func (NoopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

// ObserveConflict implements MetricsRecorder.
func (NoopMetricsRecorder) ObserveConflict(context.Context, string) {}

// NoopTracer produces spans that do nothing.
type NoopTracer struct{}

// Start implements Tracer.
func (NoopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}
