package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/lsm/tagpulse/internal/collector"
	"github.com/lsm/tagpulse/internal/forwarder"
	"github.com/lsm/tagpulse/internal/observability"
	"github.com/lsm/tagpulse/internal/source"
	"github.com/lsm/tagpulse/internal/tag"
	"github.com/lsm/tagpulse/internal/tracing"
)

// Matcher decides whether a status is processed.
type Matcher interface {
	Match(source.Status) (bool, error)
}

// Forwarder sends one tag occurrence downstream.
type Forwarder interface {
	Forward(ctx context.Context, tag string) forwarder.Outcome
}

// Config holds pipeline configuration.
type Config struct {
	Name string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithFilter skips statuses that m does not match. Without a filter every
// status is processed.
func WithFilter(m Matcher) Option {
	return func(p *Pipeline) { p.filter = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

// Pipeline orchestrates the source → filter → extract → forward flow.
// Statuses are handled one at a time on the source's goroutine and the
// tags of a status are forwarded in text order.
type Pipeline struct {
	config    Config
	source    source.Source
	filter    Matcher
	forwarder Forwarder
	collector collector.Collector
	logger    *slog.Logger
	metrics   *observability.Metrics
	tracer    trace.Tracer
}

// New creates a new Pipeline. The collector is only used for shutdown;
// fwd is expected to send through it.
func New(cfg Config, src source.Source, fwd Forwarder, col collector.Collector, opts ...Option) *Pipeline {
	p := &Pipeline{
		config:    cfg,
		source:    src,
		forwarder: fwd,
		collector: col,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts the pipeline. Blocks until ctx is cancelled or the source
// fails fatally.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("starting pipeline", "pipeline", p.config.Name)
	return p.source.Start(ctx, p.handle)
}

// handle never fails: forwarding errors are dropped events, not source errors.
func (p *Pipeline) handle(ctx context.Context, st source.Status) error {
	ctx, span := tracing.StartSpan(ctx, p.tracer, tracing.SpanStatus,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(tracing.StatusIDAttr(st.ID)),
	)
	defer span.End()

	if p.filter != nil {
		ok, err := p.filter.Match(st)
		if err != nil {
			p.logger.Warn("filter evaluation failed, skipping status",
				"pipeline", p.config.Name,
				"status_id", st.ID,
				"error", err,
			)
			tracing.SetSpanError(span, err)
			p.countStatus("filter_error")
			if p.metrics != nil {
				p.metrics.FilterErrors.Inc()
			}
			return nil
		}
		if !ok {
			p.countStatus("filtered")
			return nil
		}
	}

	tags := tag.Extract(st.Text)
	span.SetAttributes(tracing.TagCountAttr(len(tags)))
	p.countStatus("processed")
	if p.metrics != nil {
		p.metrics.TagsTotal.Add(float64(len(tags)))
	}

	dropped := 0
	for _, t := range tags {
		if p.forwarder.Forward(ctx, t) == forwarder.Dropped {
			dropped++
		}
	}
	if dropped > 0 {
		tracing.SetSpanError(span, fmt.Errorf("%d of %d events dropped", dropped, len(tags)))
	} else {
		tracing.SetSpanOK(span)
	}
	return nil
}

func (p *Pipeline) countStatus(result string) {
	if p.metrics != nil {
		p.metrics.StatusesTotal.WithLabelValues(result).Inc()
	}
}

// Shutdown closes the source, then the collector. Returns all errors joined.
func (p *Pipeline) Shutdown(_ context.Context) error {
	p.logger.Info("shutting down pipeline", "pipeline", p.config.Name)

	var errs []error
	if err := p.source.Close(); err != nil {
		p.logger.Error("source close error", "pipeline", p.config.Name, "error", err)
		errs = append(errs, fmt.Errorf("source close: %w", err))
	}
	if p.collector != nil {
		if err := p.collector.Close(); err != nil {
			p.logger.Error("collector close error", "pipeline", p.config.Name, "error", err)
			errs = append(errs, fmt.Errorf("collector close: %w", err))
		}
	}

	p.logger.Info("pipeline shutdown complete", "pipeline", p.config.Name)
	return errors.Join(errs...)
}
