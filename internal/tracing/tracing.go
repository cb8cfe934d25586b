// Package tracing wires OpenTelemetry for tagpulse: one span per status and
// one per forwarded tag, exported over OTLP/gRPC.
package tracing

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	EnabledEnv     = "TAGPULSE_OTEL_ENABLED"
	InsecureEnv    = "TAGPULSE_OTEL_INSECURE"
	SampleRatioEnv = "TAGPULSE_OTEL_SAMPLE_RATIO"
	EndpointEnv    = "OTEL_EXPORTER_OTLP_ENDPOINT"

	defaultEndpoint = "localhost:4317"
)

// Config holds tracing configuration.
type Config struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	ServiceName string
	SampleRatio float64
}

// GetConfig reads tracing configuration from the environment. Tracing is
// off unless TAGPULSE_OTEL_ENABLED is "true". The exporter talks plaintext
// unless TAGPULSE_OTEL_INSECURE is "false". A busy feed produces one span
// per tag, so TAGPULSE_OTEL_SAMPLE_RATIO (0..1, default 1) is usually
// lowered in production.
func GetConfig(serviceName string) Config {
	cfg := Config{
		Enabled:     envIs(EnabledEnv, "true"),
		Endpoint:    os.Getenv(EndpointEnv),
		Insecure:    !envIs(InsecureEnv, "false"),
		ServiceName: serviceName,
		SampleRatio: 1,
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if v, err := strconv.ParseFloat(os.Getenv(SampleRatioEnv), 64); err == nil && v >= 0 && v <= 1 {
		cfg.SampleRatio = v
	}
	return cfg
}

func envIs(key, want string) bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(key)), want)
}

// Initialize returns a tracer and its shutdown func. When tracing is
// disabled the tracer is a no-op and shutdown does nothing.
func Initialize(cfg Config, logger *slog.Logger) (trace.Tracer, func(context.Context) error, error) {
	if !cfg.Enabled {
		logger.Info("tracing disabled, using no-op tracer")
		return noop.NewTracerProvider().Tracer(cfg.ServiceName), func(context.Context) error { return nil }, nil
	}

	logger.Info("initializing tracing",
		"endpoint", cfg.Endpoint,
		"service", cfg.ServiceName,
		"sample_ratio", cfg.SampleRatio,
		"insecure", cfg.Insecure,
	)

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(context.Background(), opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := serviceResource(cfg.ServiceName)
	if err != nil {
		return nil, nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)

	return tp.Tracer(cfg.ServiceName), func(ctx context.Context) error {
		logger.Info("shutting down tracer provider")
		return tp.Shutdown(ctx)
	}, nil
}

func serviceResource(name string) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(name)}
	if host, err := os.Hostname(); err == nil {
		attrs = append(attrs, semconv.HostName(host))
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	return res, nil
}
