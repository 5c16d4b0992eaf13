package auth

import (
	"github.com/smallbiznis/pearlsonic/internal/auth/repository"
	"github.com/smallbiznis/pearlsonic/internal/auth/service"
	"github.com/smallbiznis/pearlsonic/internal/auth/token"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(repository.New),
	fx.Provide(token.Provide),
	fx.Provide(service.New),
)
