package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/guillemso1er/orbitcheck-sub004/pkg/tracing/exporters"
)

// ProviderConfig configures the process-wide tracer provider.
type ProviderConfig struct {
	ServiceName    string
	ServiceVersion string
	Enabled        bool
	OTLP           exporters.OTLPConfig
}

// Provider owns the SDK tracer provider so it can be flushed on shutdown.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// NewProvider installs a tracer provider. With tracing disabled spans still
// get ids, for the error envelope and logs, but nothing is exported.
func NewProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(sdkresource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
		)),
	}
	if cfg.Enabled {
		exporter, err := exporters.NewOTLPExporter(ctx, cfg.OTLP)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	SetTracer(tp.Tracer(cfg.ServiceName))

	return &Provider{tp: tp}, nil
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}
