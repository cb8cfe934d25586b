package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/lsm/tagpulse/internal/collector"
	kafkacollector "github.com/lsm/tagpulse/internal/collector/kafka"
	"github.com/lsm/tagpulse/internal/collector/riemann"
	"github.com/lsm/tagpulse/internal/config"
	"github.com/lsm/tagpulse/internal/filter"
	"github.com/lsm/tagpulse/internal/forwarder"
	"github.com/lsm/tagpulse/internal/observability"
	"github.com/lsm/tagpulse/internal/pipeline"
	"github.com/lsm/tagpulse/internal/source/stream"
	"github.com/lsm/tagpulse/internal/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFlag   = flag.String("config", "", "Path to config file. Can also be set via TAGPULSE_CONFIG env var.")
		logLevelFlag = flag.String("log-level", "", "Log level (debug, info, warn, error). Can also be set via TAGPULSE_LOG_LEVEL env var.")
	)
	flag.Parse()

	level := observability.GetLogLevel(*logLevelFlag)
	logger := observability.NewLogger("tagpulse", level)
	slog.SetDefault(logger)

	configPath := config.ResolvePath(*configFlag)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info("loaded config", "path", configPath, "collector", cfg.Collector.Type, "log_level", level.String())

	tracer, tracerShutdown, err := tracing.Initialize(tracing.GetConfig("tagpulse"), logger)
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}
	defer func() {
		if err := tracerShutdown(context.Background()); err != nil {
			logger.Error("tracer shutdown error", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())
	metrics := observability.NewMetrics(reg)

	health := observability.NewHealthServer()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("GET /healthz", health.Handler())
	mux.Handle("GET /readyz", health.Handler())

	httpServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info("metrics server starting", "addr", cfg.MetricsAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p, err := buildPipeline(cfg, logger, metrics, health, tracer)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	health.SetReady(true)
	pipelineErr := p.Run(ctx)
	if errors.Is(pipelineErr, context.Canceled) && ctx.Err() != nil {
		pipelineErr = nil
	}
	if errors.Is(pipelineErr, stream.ErrAuth) {
		logger.Error("feed authentication failed, exiting", "error", pipelineErr)
	}

	health.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := p.Shutdown(shutdownCtx); err != nil {
		logger.Error("pipeline shutdown error", "error", err)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return pipelineErr
}

func buildPipeline(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, health *observability.HealthServer, tracer trace.Tracer) (*pipeline.Pipeline, error) {
	src, err := stream.NewSource(cfg.StreamConfig(), logger.With("stage", "source"),
		stream.WithReconnectHook(func(reason string) {
			metrics.FeedReconnects.WithLabelValues(reason).Inc()
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("stream source: %w", err)
	}

	col, err := buildCollector(cfg, logger, metrics, health)
	if err != nil {
		return nil, err
	}

	fwd := forwarder.New(col, forwarder.Config{
		CollectorName: cfg.Collector.Type,
		Template:      cfg.EventTemplate(),
	},
		forwarder.WithLogger(logger.With("stage", "forwarder")),
		forwarder.WithTracer(tracer),
		forwarder.WithMetrics(metrics),
	)

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(metrics),
		pipeline.WithTracer(tracer),
	}
	if cfg.Filter != "" {
		f, err := filter.New(cfg.Filter)
		if err != nil {
			_ = col.Close()
			return nil, fmt.Errorf("filter: %w", err)
		}
		opts = append(opts, pipeline.WithFilter(f))
	}

	return pipeline.New(pipeline.Config{Name: "tagpulse"}, src, fwd, col, opts...), nil
}

var riemannStates = []string{
	riemann.Disconnected.String(),
	riemann.Connecting.String(),
	riemann.Connected.String(),
}

func buildCollector(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, health *observability.HealthServer) (collector.Collector, error) {
	switch cfg.Collector.Type {
	case config.CollectorRiemann:
		metrics.SetCollectorState(riemann.Disconnected.String(), riemannStates...)
		c, err := riemann.NewClient(cfg.RiemannConfig(),
			riemann.WithLogger(logger.With("stage", "collector")),
			riemann.WithStateHook(func(s riemann.State) {
				metrics.SetCollectorState(s.String(), riemannStates...)
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("riemann collector: %w", err)
		}
		health.Report("collector", func() string { return c.State().String() })
		return c, nil
	case config.CollectorKafka:
		c, err := kafkacollector.NewCollector(cfg.KafkaConfig())
		if err != nil {
			return nil, fmt.Errorf("kafka collector: %w", err)
		}
		health.Report("collector", func() string { return config.CollectorKafka })
		return c, nil
	default:
		return nil, fmt.Errorf("unknown collector type: %s", cfg.Collector.Type)
	}
}
