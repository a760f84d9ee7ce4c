package core

import (
	"context"
	"time"
)

// Clock supplies the current time. Tests inject a fixed clock.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// MetricsRecorder receives the outcome of every instrumented service operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer opens a span around every instrumented service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is closed with the error returned by the traced operation.
type TraceSpan interface {
	End(err error)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// Operation names reported to metrics recorders and tracers.
const (
	OpLoad              = "load"
	OpSave              = "save"
	OpDelete            = "delete"
	OpCheckRequirements = "check_requirements"
	OpSaveFiles         = "save_files"
	OpLoadFile          = "load_file"
	OpFindFiles         = "find_files"
	OpPing              = "ping"
)

// run wraps fn with tracing, metrics and debug logging.
func (s *Service) run(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, operation)
	err := fn(ctx)
	span.End(err)
	elapsed := s.clock.Now().Sub(start)
	s.metrics.Observe(ctx, operation, err == nil, elapsed)
	if err != nil {
		s.logger.Debug("operation failed", "operation", operation, "error", err)
	} else {
		s.logger.Debug("operation completed", "operation", operation, "duration", elapsed)
	}
	return err
}
