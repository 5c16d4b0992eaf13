package music

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/smallbiznis/pearlsonic/internal/clock"
	"github.com/smallbiznis/pearlsonic/internal/config"
	obstracing "github.com/smallbiznis/pearlsonic/internal/observability/tracing"
	"github.com/smallbiznis/pearlsonic/internal/providers/music/domain"
	"github.com/smallbiznis/pearlsonic/internal/providers/music/fal"
	"github.com/smallbiznis/pearlsonic/internal/providers/music/mock"
	"github.com/smallbiznis/pearlsonic/internal/providers/music/suno"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Registry resolves adapters by name. Jobs store the name of the adapter
// that accepted them so polling goes back to the same vendor.
type Registry struct {
	adapters    map[string]domain.Adapter
	defaultName string
}

func NewRegistry(defaultName string, adapters ...domain.Adapter) (*Registry, error) {
	registry := &Registry{adapters: map[string]domain.Adapter{}}
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		name := normalize(adapter.Name())
		if name == "" {
			continue
		}
		registry.adapters[name] = adapter
	}
	defaultName = normalize(defaultName)
	if _, ok := registry.adapters[defaultName]; !ok {
		return nil, fmt.Errorf("%w: default provider %q is not configured", domain.ErrUnknownProvider, defaultName)
	}
	registry.defaultName = defaultName
	return registry, nil
}

func (r *Registry) Default() domain.Adapter {
	return r.adapters[r.defaultName]
}

func (r *Registry) Get(name string) (domain.Adapter, error) {
	if r == nil {
		return nil, domain.ErrUnknownProvider
	}
	adapter, ok := r.adapters[normalize(name)]
	if !ok {
		return nil, domain.ErrUnknownProvider
	}
	return adapter, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

type Params struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	Clock clock.Clock `optional:"true"`
}

// Provide registers every vendor that has credentials. The mock vendor is
// always available outside production so existing mock jobs stay pollable.
func Provide(p Params) (*Registry, error) {
	log := p.Log.Named("music.registry")
	cfg := p.Cfg.Music
	client := obstracing.WrapHTTPClient(&http.Client{Timeout: cfg.Timeout})

	var adapters []domain.Adapter
	if cfg.SunoAPIKey != "" {
		adapter, err := suno.New(suno.Config{APIKey: cfg.SunoAPIKey, BaseURL: cfg.SunoBaseURL}, client)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, adapter)
	}
	if cfg.FalAPIKey != "" {
		adapter, err := fal.New(fal.Config{APIKey: cfg.FalAPIKey, BaseURL: cfg.FalBaseURL, Model: cfg.FalModel}, client)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, adapter)
	}
	if !p.Cfg.IsProduction() || cfg.Provider == mock.Name {
		adapters = append(adapters, mock.New(cfg.MockLatency, p.Clock))
	}

	registry, err := NewRegistry(cfg.Provider, adapters...)
	if err != nil {
		return nil, err
	}
	log.Info("music providers ready",
		zap.String("default", registry.defaultName),
		zap.Strings("available", registry.Names()),
	)
	return registry, nil
}
