// Package exporters builds the span exporters the tracer provider can use.
package exporters

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const DefaultExportTimeout = 10 * time.Second

// OTLPConfig points the exporter at a collector.
type OTLPConfig struct {
	// Endpoint is host:port, 4317 for grpc and 4318 for http by convention.
	Endpoint string
	// Protocol is "grpc" (default) or "http".
	Protocol string
	Insecure bool
	Headers  map[string]string
	Timeout  time.Duration
}

func NewOTLPExporter(ctx context.Context, cfg OTLPConfig) (*otlptrace.Exporter, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultExportTimeout
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTLP endpoint is required")
	}

	switch cfg.Protocol {
	case "", "grpc":
		return otlptracegrpc.New(ctx, grpcOptions(cfg)...)
	case "http":
		return otlptracehttp.New(ctx, httpOptions(cfg)...)
	}
	return nil, fmt.Errorf("unsupported OTLP protocol %q, expected grpc or http", cfg.Protocol)
}

func grpcOptions(cfg OTLPConfig) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithTimeout(cfg.Timeout),
		otlptracegrpc.WithHeaders(cfg.Headers),
	}
	if cfg.Insecure {
		opts = append(opts,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}
	return opts
}

func httpOptions(cfg OTLPConfig) []otlptracehttp.Option {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithTimeout(cfg.Timeout),
		otlptracehttp.WithHeaders(cfg.Headers),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return opts
}
