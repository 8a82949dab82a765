package observability

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultServiceName    = "skilltoken"
	DefaultServiceVersion = "dev"
)

// TracerConfig holds tracing configuration.
type TracerConfig struct {
	Endpoint       string
	Protocol       string // "grpc" or "http"; empty means http
	ServiceName    string
	ServiceVersion string
	// InstanceID identifies this registry process in traces. Generated when empty.
	InstanceID string
}

func (c TracerConfig) withDefaults() (TracerConfig, error) {
	if c.Endpoint == "" {
		return c, fmt.Errorf("otlp endpoint is required")
	}
	switch c.Protocol {
	case "":
		c.Protocol = "http"
	case "grpc", "http":
	default:
		return c, fmt.Errorf("unsupported otlp protocol %q: want grpc or http", c.Protocol)
	}
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = DefaultServiceVersion
	}
	if c.InstanceID == "" {
		c.InstanceID = uuid.NewString()
	}
	return c, nil
}

func (c TracerConfig) resource() (*resource.Resource, error) {
	return resource.Merge(resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(c.ServiceName),
			semconv.ServiceVersion(c.ServiceVersion),
			semconv.ServiceInstanceID(c.InstanceID),
		),
	)
}

// InitTracer exports registry spans over OTLP and installs the provider
// globally.
func InitTracer(ctx context.Context, cfg TracerConfig) (trace.TracerProvider, *sdktrace.TracerProvider, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, nil, err
	}

	var exporter sdktrace.SpanExporter
	if cfg.Protocol == "grpc" {
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithInsecure(),
		)
	} else {
		exporter, err = otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithInsecure(),
		)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("otlp %s exporter: %w", cfg.Protocol, err)
	}

	res, err := cfg.resource()
	if err != nil {
		return nil, nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, tp, nil
}
