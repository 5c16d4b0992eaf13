package observability

import (
	"testing"

	"github.com/smallbiznis/pearlsonic/internal/config"
)

func TestLoadConfigFromAppConfig(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppName:      "pearlsonic-api",
		AppVersion:   "1.4.0",
		Environment:  "production",
		OTLPEndpoint: "otel:4318",
		Observability: config.ObservabilityConfig{
			LogLevel:          "debug",
			OtelEnabled:       true,
			OtelProtocol:      "http/protobuf",
			OtelSamplingRatio: 3,
		},
	})

	if cfg.ServiceName != "pearlsonic-api" || cfg.Version != "1.4.0" {
		t.Fatalf("unexpected identity %+v", cfg)
	}
	if cfg.LogFormat != "json" {
		t.Fatalf("expected json default, got %q", cfg.LogFormat)
	}
	if !cfg.OtelEnabled || cfg.OtelExporterProtocol != "http" {
		t.Fatalf("unexpected exporter settings %+v", cfg)
	}
	if cfg.OtelSamplingRatio != 0.1 {
		t.Fatalf("out of range ratio should fall back, got %v", cfg.OtelSamplingRatio)
	}
	if cfg.Debug() {
		t.Fatalf("production must never be debug")
	}
}

func TestLoadConfigDisablesExportWithoutEndpoint(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment:   "development",
		Observability: config.ObservabilityConfig{OtelEnabled: true},
	})
	if cfg.OtelEnabled {
		t.Fatalf("expected export disabled without endpoint")
	}
	if cfg.ServiceName != "pearlsonic" || !cfg.Debug() {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}
