package music

import (
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/pearlsonic/internal/config"
	"github.com/smallbiznis/pearlsonic/internal/providers/music/domain"
	"github.com/smallbiznis/pearlsonic/internal/providers/music/mock"
	"go.uber.org/zap"
)

func TestNewRegistryRequiresDefault(t *testing.T) {
	_, err := NewRegistry("suno", mock.New(time.Second, nil))
	if !errors.Is(err, domain.ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestRegistryLookupIsCaseInsensitive(t *testing.T) {
	registry, err := NewRegistry(" MOCK ", mock.New(time.Second, nil))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if registry.Default().Name() != mock.Name {
		t.Fatalf("unexpected default %q", registry.Default().Name())
	}
	if _, err := registry.Get("Mock"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := registry.Get("fal"); !errors.Is(err, domain.ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestProvideRegistersConfiguredVendors(t *testing.T) {
	cfg := config.Config{
		Environment: "development",
		Music: config.MusicConfig{
			Provider:    "fal",
			Timeout:     time.Second,
			SunoAPIKey:  "sk",
			SunoBaseURL: "https://suno.invalid",
			FalAPIKey:   "fk",
			FalBaseURL:  "https://fal.invalid",
			FalModel:    "fal-ai/elevenlabs/music",
		},
	}
	registry, err := Provide(Params{Cfg: cfg, Log: zap.NewNop()})
	if err != nil {
		t.Fatalf("provide: %v", err)
	}
	names := registry.Names()
	if len(names) != 3 || names[0] != "fal" || names[1] != "mock" || names[2] != "suno" {
		t.Fatalf("unexpected providers %v", names)
	}
	if registry.Default().Name() != "fal" {
		t.Fatalf("unexpected default %q", registry.Default().Name())
	}
}

func TestProvideProductionWithoutCredentialsFails(t *testing.T) {
	cfg := config.Config{Environment: "production", Music: config.MusicConfig{Provider: "suno"}}
	if _, err := Provide(Params{Cfg: cfg, Log: zap.NewNop()}); err == nil {
		t.Fatalf("expected error without suno credentials")
	}
}
