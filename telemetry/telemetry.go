// Package telemetry defines the logging/metrics/tracing seams used
// throughout the coordinator and plugin. Components depend on the
// interfaces here, never on a concrete backend, so tests can run against
// Noop and production wiring can run against the Clue/OTEL implementation.
package telemetry

import "context"

// Logger is a minimal structured logger, modeled on the level+key/value
// shape goa.design/clue/log exposes over its context-scoped logger.
type Logger interface {
	Debug(ctx context.Context, msg string, kv ...any)
	Info(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, msg string, kv ...any)
}

// Metrics records counters and durations for the coordination engine's hot
// paths (append latency, broadcast fan-out, queue depth).
type Metrics interface {
	IncCounter(name string, tags ...string)
	ObserveDuration(name string, seconds float64, tags ...string)
	SetGauge(name string, value float64, tags ...string)
}

// Tracer starts spans around the operations worth following across the
// server/plugin boundary (append, broadcast, rendezvous wait).
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// Span is the handle returned by StartSpan; End must be called exactly once,
// typically via defer.
type Span interface {
	SetError(err error)
	End()
}

// Provider bundles the three seams so callers thread a single value through
// constructors instead of three separate parameters.
type Provider struct {
	Logger  Logger
	Metrics Metrics
	Tracer  Tracer
}

// Noop returns a Provider whose Logger/Metrics/Tracer all discard input. It
// is the default for unit tests and for any component constructed without an
// explicit Provider.
func Noop() Provider {
	return Provider{Logger: noopLogger{}, Metrics: noopMetrics{}, Tracer: noopTracer{}}
}

type noopLogger struct{}

func (noopLogger) Debug(context.Context, string, ...any) {}
func (noopLogger) Info(context.Context, string, ...any)  {}
func (noopLogger) Error(context.Context, string, ...any) {}

type noopMetrics struct{}

func (noopMetrics) IncCounter(string, ...string)            {}
func (noopMetrics) ObserveDuration(string, float64, ...string) {}
func (noopMetrics) SetGauge(string, float64, ...string)     {}

type noopTracer struct{}

func (noopTracer) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) SetError(error) {}
func (noopSpan) End()           {}
