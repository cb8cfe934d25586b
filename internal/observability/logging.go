package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// Environment variables consulted when no flag is given.
const (
	LogLevelEnv  = "TAGPULSE_LOG_LEVEL"
	LogFormatEnv = "TAGPULSE_LOG_FORMAT" // json (default) or text
)

// NewLogger creates a stdout logger tagged with the component name. The
// format follows TAGPULSE_LOG_FORMAT.
func NewLogger(component string, level slog.Level) *slog.Logger {
	return NewLoggerTo(os.Stdout, component, level, os.Getenv(LogFormatEnv))
}

// NewLoggerTo is NewLogger with an explicit writer and format.
func NewLoggerTo(w io.Writer, component string, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h).With("component", component)
}

// TraceLogger adds trace_id and span_id to records logged under an active span.
type TraceLogger struct {
	logger *slog.Logger
}

func NewTraceLogger(logger *slog.Logger) *TraceLogger {
	return &TraceLogger{logger: logger}
}

// WithTraceContext returns the underlying logger, annotated when ctx
// carries a valid span.
func (l *TraceLogger) WithTraceContext(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l.logger
	}
	return l.logger.With("trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())
}

func (l *TraceLogger) Info(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelInfo, msg, args)
}

func (l *TraceLogger) Warn(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, args)
}

func (l *TraceLogger) Error(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelError, msg, args)
}

func (l *TraceLogger) log(ctx context.Context, level slog.Level, msg string, args []any) {
	if !l.logger.Enabled(ctx, level) {
		return
	}
	l.WithTraceContext(ctx).Log(ctx, level, msg, args...)
}

// With returns a TraceLogger carrying additional attributes.
func (l *TraceLogger) With(args ...any) *TraceLogger {
	return &TraceLogger{logger: l.logger.With(args...)}
}

// ParseLogLevel parses debug, info, warn (or warning) and error, case
// insensitively, along with slog offsets such as "info+2". Anything else
// is info.
func ParseLogLevel(s string) slog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// GetLogLevel returns the effective log level. The flag value wins over
// TAGPULSE_LOG_LEVEL.
func GetLogLevel(flagLevel string) slog.Level {
	if flagLevel != "" {
		return ParseLogLevel(flagLevel)
	}
	return ParseLogLevel(os.Getenv(LogLevelEnv))
}
