package adapters

import (
	"sort"
	"strings"

	"github.com/smallbiznis/pearlsonic/internal/clock"
	"github.com/smallbiznis/pearlsonic/internal/config"
	"github.com/smallbiznis/pearlsonic/internal/payment/adapters/paddle"
	"github.com/smallbiznis/pearlsonic/internal/payment/adapters/stripe"
	"github.com/smallbiznis/pearlsonic/internal/payment/domain"
)

// Registry maps a webhook route's provider name to a factory and the signing
// secret configured for it.
type Registry struct {
	factories map[string]domain.AdapterFactory
	secrets   map[string]string
}

// Provide registers every supported provider with its configured secret.
func Provide(cfg config.Config) *Registry {
	return NewRegistry(map[string]string{
		paddle.Provider: cfg.Payment.PaddleWebhookSecret,
		stripe.Provider: cfg.Payment.StripeWebhookSecret,
	}, paddle.NewFactory(), stripe.NewFactory())
}

func NewRegistry(secrets map[string]string, factories ...domain.AdapterFactory) *Registry {
	r := &Registry{
		factories: make(map[string]domain.AdapterFactory, len(factories)),
		secrets:   make(map[string]string, len(secrets)),
	}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		if name := normalize(factory.Provider()); name != "" {
			r.factories[name] = factory
		}
	}
	for name, secret := range secrets {
		r.secrets[normalize(name)] = strings.TrimSpace(secret)
	}
	return r
}

// Providers lists registered providers in name order.
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Configured reports whether provider is registered and has a secret.
func (r *Registry) Configured(provider string) bool {
	name := normalize(provider)
	_, ok := r.factories[name]
	return ok && r.secrets[name] != ""
}

// Resolve builds an adapter bound to the current pricing catalog.
// ErrProviderNotFound means the route names no known provider, and
// ErrMissingSecret means it is known but cannot verify anything.
func (r *Registry) Resolve(provider string, catalog config.PricingCatalog, clk clock.Clock) (domain.Adapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	name := normalize(provider)
	factory, ok := r.factories[name]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	secret := r.secrets[name]
	if secret == "" {
		return nil, domain.ErrMissingSecret
	}
	return factory.NewAdapter(domain.AdapterConfig{
		Secret:  secret,
		Catalog: catalog,
		Clock:   clk,
	})
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
