// Package forwarder turns extracted tags into metric events and sends them
// to a collector.
package forwarder

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/lsm/tagpulse/internal/collector"
	"github.com/lsm/tagpulse/internal/event"
	"github.com/lsm/tagpulse/internal/observability"
	"github.com/lsm/tagpulse/internal/tracing"
)

// Outcome is the result of forwarding one tag.
type Outcome int

const (
	// Delivered means the collector acknowledged the event.
	Delivered Outcome = iota
	// Dropped means the send failed and the event was discarded.
	Dropped
)

func (o Outcome) String() string {
	if o == Delivered {
		return "delivered"
	}
	return "dropped"
}

// Config holds forwarder configuration.
type Config struct {
	// CollectorName labels metrics and spans, e.g. "riemann".
	CollectorName string
	Template      event.Template
}

// Option configures a Forwarder.
type Option func(*Forwarder)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Forwarder) { f.logger = observability.NewTraceLogger(l) }
}

// WithTracer sets the tracer used for per-tag spans.
func WithTracer(t trace.Tracer) Option {
	return func(f *Forwarder) { f.tracer = t }
}

// WithMetrics sets the metrics to record sends into.
func WithMetrics(m *observability.Metrics) Option {
	return func(f *Forwarder) { f.metrics = m }
}

// Forwarder sends one event per tag. It is not safe for concurrent use
// when the collector is not.
type Forwarder struct {
	collector collector.Collector
	name      string
	template  event.Template
	logger    *observability.TraceLogger
	tracer    trace.Tracer
	metrics   *observability.Metrics
	now       func() time.Time
}

// New creates a Forwarder sending through c.
func New(c collector.Collector, cfg Config, opts ...Option) *Forwarder {
	if cfg.CollectorName == "" {
		cfg.CollectorName = "collector"
	}
	f := &Forwarder{
		collector: c,
		name:      cfg.CollectorName,
		template:  cfg.Template,
		logger:    observability.NewTraceLogger(slog.Default()),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Forward builds the event for tag and sends it. Failures are logged and
// counted, never returned.
func (f *Forwarder) Forward(ctx context.Context, tag string) Outcome {
	ctx, span := tracing.StartSpan(ctx, f.tracer, tracing.SpanForward,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(tracing.TagAttr(tag), tracing.CollectorAttr(f.name)),
	)
	defer span.End()

	evt := f.template.New(tag, f.now())
	f.logger.Info(ctx, "emitting tag", "tag", tag)

	start := time.Now()
	err := f.collector.Send(ctx, evt)
	if f.metrics != nil {
		f.metrics.SendDuration.WithLabelValues(f.name).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		tracing.SetSpanError(span, err)
		f.logger.Warn(ctx, "dropping event", "tag", tag, "collector", f.name, "error", err)
		f.record(Dropped)
		return Dropped
	}
	tracing.SetSpanOK(span)
	f.record(Delivered)
	return Delivered
}

func (f *Forwarder) record(o Outcome) {
	if f.metrics == nil {
		return
	}
	f.metrics.EventsTotal.WithLabelValues(f.name, o.String()).Inc()
}
