// Package tracing installs the OpenTelemetry tracer provider the engine's
// spans are recorded on.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Provider owns the SDK tracer provider, or nothing when tracing is off.
type Provider struct {
	provider *sdktrace.TracerProvider
}

// Setup installs a global tracer provider exporting to stdout. When
// enabled is false the global no-op provider stays in place and the
// returned Provider's Shutdown does nothing.
func Setup(enabled bool, serviceName string, sampleRatio float64) (*Provider, error) {
	if !enabled {
		return &Provider{}, nil
	}
	return setup(os.Stdout, serviceName, sampleRatio)
}

func setup(w io.Writer, serviceName string, sampleRatio float64) (*Provider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("create stdout exporter: %w", err)
	}
	return install(sdktrace.WithBatcher(exporter), serviceName, sampleRatio), nil
}

func install(export sdktrace.TracerProviderOption, serviceName string, sampleRatio float64) *Provider {
	if serviceName == "" {
		serviceName = "sukamaju-registration"
	}
	if sampleRatio <= 0 || sampleRatio > 1 {
		sampleRatio = 1
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio))),
		export,
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return &Provider{provider: provider}
}

// Enabled reports whether spans are exported.
func (p *Provider) Enabled() bool { return p.provider != nil }

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.provider == nil {
		return nil
	}
	return p.provider.Shutdown(ctx)
}
