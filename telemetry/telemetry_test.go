package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"goa.design/bridge/telemetry"
)

func TestNoopDoesNotPanic(t *testing.T) {
	p := telemetry.Noop()
	ctx := context.Background()

	p.Logger.Debug(ctx, "hello", "key", "value")
	p.Logger.Info(ctx, "hello")
	p.Logger.Error(ctx, "boom", "err", errors.New("x"))

	p.Metrics.IncCounter("events_appended_total", "session", "s1")
	p.Metrics.ObserveDuration("append_latency_seconds", 0.01)
	p.Metrics.SetGauge("queue_depth", 3)

	spanCtx, span := p.Tracer.StartSpan(ctx, "Append")
	if spanCtx == nil {
		t.Fatalf("StartSpan returned nil context")
	}
	span.SetError(errors.New("boom"))
	span.End()
}
