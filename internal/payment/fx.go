package payment

import (
	"github.com/smallbiznis/pearlsonic/internal/payment/adapters"
	"github.com/smallbiznis/pearlsonic/internal/payment/repository"
	paymentservice "github.com/smallbiznis/pearlsonic/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(adapters.Provide),
	fx.Provide(paymentservice.NewService),
	fx.Invoke(logWebhookProviders),
)

func logWebhookProviders(registry *adapters.Registry, log *zap.Logger) {
	for _, provider := range registry.Providers() {
		log.Info("payment webhook provider",
			zap.String("provider", provider),
			zap.Bool("configured", registry.Configured(provider)),
		)
	}
}
