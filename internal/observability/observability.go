// Package observability configures process-wide structured logging.
//
// Logs go through log/slog. Without an exporter, records are written to stderr as
// text or JSON. With an exporter, slog records are bridged into the OpenTelemetry
// log SDK and shipped to stdout or an OTLP collector (endpoint and headers come
// from the standard OTEL_EXPORTER_OTLP_* environment variables).
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// instrumentationName identifies this module's logger in exported records.
const instrumentationName = "github.com/florianilch/changekit"

// Supported log exporters.
const (
	ExporterNone     = ""
	ExporterStdout   = "stdout"
	ExporterOTLPHTTP = "otlphttp"
	ExporterOTLPGRPC = "otlpgrpc"
)

// Options selects the logging pipeline.
type Options struct {
	Level    slog.Level
	Format   string // text|json, used without exporter
	Exporter string // see Exporter* constants
	Output   io.Writer
}

// ShutdownFunc flushes and stops the logging pipeline.
type ShutdownFunc func(context.Context) error

// Instrument installs the default slog logger described by opts.
func Instrument(ctx context.Context, opts Options) (ShutdownFunc, error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	if opts.Exporter == ExporterNone {
		handlerOpts := &slog.HandlerOptions{Level: opts.Level}
		var handler slog.Handler
		switch opts.Format {
		case "", "text":
			handler = slog.NewTextHandler(out, handlerOpts)
		case "json":
			handler = slog.NewJSONHandler(out, handlerOpts)
		default:
			return nil, fmt.Errorf("unsupported log format: %s", opts.Format)
		}
		slog.SetDefault(slog.New(handler))
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := newExporter(ctx, opts.Exporter, out)
	if err != nil {
		return nil, err
	}

	// Filter before batching.
	processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), severity(opts.Level))
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(processor))

	global.SetLoggerProvider(provider)
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		// Not through slog: the bridged handler may be the one failing.
		_, _ = fmt.Fprintf(os.Stderr, "opentelemetry: %v\n", err)
	}))

	slog.SetDefault(slog.New(otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider))))

	return provider.Shutdown, nil
}

func newExporter(ctx context.Context, name string, out io.Writer) (sdklog.Exporter, error) {
	switch name {
	case ExporterStdout:
		return stdoutlog.New(stdoutlog.WithWriter(out))
	case ExporterOTLPHTTP:
		return otlploghttp.New(ctx)
	case ExporterOTLPGRPC:
		return otlploggrpc.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported log exporter: %s", name)
	}
}

// severity maps a slog level to the minimum OpenTelemetry severity.
func severity(level slog.Level) minsev.Severity {
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
