package observability

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

func TestTracerConfigDefaults(t *testing.T) {
	cfg, err := TracerConfig{Endpoint: "localhost:4318"}.withDefaults()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Protocol != "http" || cfg.ServiceName != DefaultServiceName || cfg.ServiceVersion != DefaultServiceVersion {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.InstanceID == "" {
		t.Error("instance id not generated")
	}

	tests := []struct {
		name string
		cfg  TracerConfig
	}{
		{"no endpoint", TracerConfig{Protocol: "grpc"}},
		{"bad protocol", TracerConfig{Endpoint: "localhost:4317", Protocol: "udp"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.cfg.withDefaults(); err == nil {
				t.Error("expected error")
			}
			if _, _, err := InitTracer(context.Background(), tt.cfg); err == nil {
				t.Error("InitTracer accepted the config")
			}
		})
	}
}

func TestTracerResource(t *testing.T) {
	cfg, err := TracerConfig{Endpoint: "localhost:4318", ServiceVersion: "1.2.0", InstanceID: "node-a"}.withDefaults()
	if err != nil {
		t.Fatal(err)
	}
	res, err := cfg.resource()
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		string(semconv.ServiceNameKey):       DefaultServiceName,
		string(semconv.ServiceVersionKey):    "1.2.0",
		string(semconv.ServiceInstanceIDKey): "node-a",
	}
	for _, kv := range res.Attributes() {
		if v, ok := want[string(kv.Key)]; ok {
			if kv.Value.AsString() != v {
				t.Errorf("%s = %q, want %q", kv.Key, kv.Value.AsString(), v)
			}
			delete(want, string(kv.Key))
		}
	}
	if len(want) != 0 {
		t.Errorf("missing resource attributes %v", want)
	}
}

func TestInitTracerHTTP(t *testing.T) {
	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	_, sdkTP, err := InitTracer(context.Background(), TracerConfig{Endpoint: "127.0.0.1:4318"})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sdkTP.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
