package telemetry

import (
	"context"

	cluelog "goa.design/clue/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ClueProvider wires Provider to goa.design/clue/log for logging and to the
// OpenTelemetry SDK for metrics and tracing, the way a production
// bridgeserver deployment would run.
func ClueProvider(meter metric.Meter, tracer trace.Tracer) (Provider, error) {
	counters := make(map[string]metric.Int64Counter)
	histograms := make(map[string]metric.Float64Histogram)
	gauges := make(map[string]metric.Float64ObservableGauge)

	return Provider{
		Logger:  clueLogger{},
		Metrics: &otelMetrics{meter: meter, counters: counters, histograms: histograms, gauges: gauges},
		Tracer:  otelTracer{tracer: tracer},
	}, nil
}

type clueLogger struct{}

func (clueLogger) Debug(ctx context.Context, msg string, kv ...any) {
	cluelog.Debug(ctx, msg, toFields(kv)...)
}

func (clueLogger) Info(ctx context.Context, msg string, kv ...any) {
	cluelog.Info(ctx, msg, toFields(kv)...)
}

func (clueLogger) Error(ctx context.Context, msg string, kv ...any) {
	cluelog.Error(ctx, nil, msg, toFields(kv)...)
}

// toFields converts a flat key/value variadic list into clue's KV pairs,
// matching the logging convention the teacher's telemetry wrapper uses.
func toFields(kv []any) []cluelog.Fielder {
	fields := make([]cluelog.Fielder, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, cluelog.KV{K: key, V: kv[i+1]})
	}
	return fields
}

type otelMetrics struct {
	meter      metric.Meter
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
	gauges     map[string]metric.Float64ObservableGauge
}

func (m *otelMetrics) IncCounter(name string, tags ...string) {
	c, ok := m.counters[name]
	if !ok {
		var err error
		c, err = m.meter.Int64Counter(name)
		if err != nil {
			return
		}
		m.counters[name] = c
	}
	c.Add(context.Background(), 1, metric.WithAttributes(toAttrs(tags)...))
}

func (m *otelMetrics) ObserveDuration(name string, seconds float64, tags ...string) {
	h, ok := m.histograms[name]
	if !ok {
		var err error
		h, err = m.meter.Float64Histogram(name)
		if err != nil {
			return
		}
		m.histograms[name] = h
	}
	h.Record(context.Background(), seconds, metric.WithAttributes(toAttrs(tags)...))
}

func (m *otelMetrics) SetGauge(string, float64, ...string) {
	// Async gauges require a callback registered at creation time; this
	// coordinator has no current gauge metric that needs it.
}

func toAttrs(tags []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(tags)/2)
	for i := 0; i+1 < len(tags); i += 2 {
		attrs = append(attrs, attribute.String(tags[i], tags[i+1]))
	}
	return attrs
}

type otelTracer struct {
	tracer trace.Tracer
}

func (t otelTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name)
	return ctx, otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) SetError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
}

func (s otelSpan) End() { s.span.End() }
