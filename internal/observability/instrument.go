package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// instrumentationName identifies log records exported through OpenTelemetry.
const instrumentationName = "github.com/florianilch/ccauth"

// Settings configures the logging pipeline.
type Settings struct {
	Level slog.Level
	// Format is "text" or "json".
	Format string
	// Exporter optionally ships logs through OpenTelemetry: "", "none",
	// "stdout", "otlp-http" or "otlp-grpc". OTLP exporters read the standard
	// OTEL_EXPORTER_OTLP_* environment variables.
	Exporter string
	// Output receives console logs. Defaults to os.Stderr so command output on
	// stdout stays machine-readable.
	Output io.Writer
}

// Instrument installs the default slog logger and the global W3C trace
// context propagator. The returned function flushes exported logs.
func Instrument(ctx context.Context, s Settings) (func(context.Context) error, error) {
	console, err := newConsoleHandler(s)
	if err != nil {
		return nil, err
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	provider, err := newLoggerProvider(ctx, s)
	if err != nil {
		return nil, err
	}

	var handler slog.Handler = newTraceContextHandler(console)
	shutdown := func(context.Context) error { return nil }
	if provider != nil {
		handler = newFanoutHandler(handler, otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider)))
		shutdown = provider.Shutdown
	}

	slog.SetDefault(slog.New(handler))

	return shutdown, nil
}

// newConsoleHandler creates a handler for human-readable logs.
func newConsoleHandler(s Settings) (slog.Handler, error) {
	out := s.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level: s.Level,
	}

	var handler slog.Handler
	switch strings.ToLower(s.Format) {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	case "text", "":
		handler = slog.NewTextHandler(out, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q (expected: json, text)", s.Format)
	}

	return handler, nil
}

// newLoggerProvider builds the OpenTelemetry log pipeline, or returns nil when
// export is disabled.
func newLoggerProvider(ctx context.Context, s Settings) (*sdklog.LoggerProvider, error) {
	var (
		exporter sdklog.Exporter
		err      error
	)

	switch strings.ToLower(s.Exporter) {
	case "", "none":
		return nil, nil
	case "stdout":
		exporter, err = stdoutlog.New()
	case "otlp-http":
		exporter, err = otlploghttp.New(ctx)
	case "otlp-grpc":
		exporter, err = otlploggrpc.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported log exporter %q (expected: none, stdout, otlp-http, otlp-grpc)", s.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s log exporter: %w", s.Exporter, err)
	}

	processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), minSeverity(s.Level))
	return sdklog.NewLoggerProvider(sdklog.WithProcessor(processor)), nil
}

// minSeverity maps a slog level to the OpenTelemetry severity floor.
func minSeverity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}

// ParseLevel parses a slog level name (debug, info, warn, error).
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, errors.New("log level must be one of debug, info, warn, error")
	}
	return level, nil
}
