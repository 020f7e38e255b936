// Package telemetry sets up logging and tracing for the loanflow binaries.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NewLogger returns a text or json logger writing records at or above level to w
func NewLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}

	opts := &slog.HandlerOptions{Level: l}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}

	return nil, fmt.Errorf("unknown log format %q", format)
}

type TracingOptions struct {
	// Exporter is one of none, stdout, or otlp
	Exporter string

	// Endpoint of the OTLP collector, host:port
	Endpoint string

	ServiceName string

	// Writer used by the stdout exporter
	Writer io.Writer
}

// ShutdownFunc flushes pending spans and stops the exporter
type ShutdownFunc func(context.Context) error

// NewTracerProvider returns a tracer provider exporting spans as configured. With exporter none a
// noop provider is returned.
func NewTracerProvider(ctx context.Context, options TracingOptions) (trace.TracerProvider, ShutdownFunc, error) {
	var exporter sdktrace.SpanExporter

	switch options.Exporter {
	case "", "none":
		return noop.NewTracerProvider(), func(context.Context) error { return nil }, nil

	case "stdout":
		opts := []stdouttrace.Option{}
		if options.Writer != nil {
			opts = append(opts, stdouttrace.WithWriter(options.Writer))
		}

		exp, err := stdouttrace.New(opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("creating stdout exporter: %w", err)
		}
		exporter = exp

	case "otlp":
		exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(options.Endpoint), otlptracehttp.WithInsecure())
		if err != nil {
			return nil, nil, fmt.Errorf("creating otlp exporter: %w", err)
		}
		exporter = exp

	default:
		return nil, nil, fmt.Errorf("unknown trace exporter %q", options.Exporter)
	}

	r := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(options.ServiceName),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
	)

	return tp, tp.Shutdown, nil
}
