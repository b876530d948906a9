package auth

import (
	"github.com/smallbiznis/tenantry/internal/auth/repository"
	"github.com/smallbiznis/tenantry/internal/auth/service"
	"github.com/smallbiznis/tenantry/internal/auth/token"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(repository.New),
	fx.Provide(token.NewIssuer),
	fx.Provide(service.New),
)
