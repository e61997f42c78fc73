// Package telemetry builds the tracer provider shared by the service.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Exporter names.
const (
	ExporterNone   = "none"
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
)

type Config struct {
	ServiceName string
	Exporter    string
	// Endpoint is the OTLP/HTTP collector URL, e.g. http://collector:4318.
	Endpoint string
	// SampleRatio applies to root spans; children follow their parent.
	SampleRatio float64
	// Output receives stdout exporter spans. Defaults to os.Stdout.
	Output io.Writer
}

// Service owns the SDK tracer provider. With ExporterNone spans are still
// created and sampled but dropped on end.
type Service struct {
	provider *sdktrace.TracerProvider
	exporter string
}

func New(ctx context.Context, cfg Config) (*Service, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "teamart"
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	}

	switch cfg.Exporter {
	case "", ExporterNone:
		cfg.Exporter = ExporterNone

	case ExporterOTLP:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("otlp exporter needs an endpoint")
		}
		exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))

	case ExporterStdout:
		out := cfg.Output
		if out == nil {
			out = os.Stdout
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(out))
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))

	default:
		return nil, fmt.Errorf("unknown trace exporter: %s", cfg.Exporter)
	}

	return &Service{
		provider: sdktrace.NewTracerProvider(opts...),
		exporter: cfg.Exporter,
	}, nil
}

func (s *Service) TracerProvider() trace.TracerProvider { return s.provider }

func (s *Service) Tracer(name string) trace.Tracer { return s.provider.Tracer(name) }

// Exporter returns the active exporter name.
func (s *Service) Exporter() string { return s.exporter }

// Close flushes pending spans and stops the exporter.
func (s *Service) Close(ctx context.Context) error {
	return s.provider.Shutdown(ctx)
}
