package organization

import (
	"github.com/smallbiznis/tenantry/internal/organization/domain"
	"github.com/smallbiznis/tenantry/internal/organization/event"
	"github.com/smallbiznis/tenantry/internal/organization/repository"
	"github.com/smallbiznis/tenantry/internal/organization/service"
	"go.uber.org/fx"
)

var Module = fx.Module("organization.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(event.NewOutboxPublisher),
	fx.Provide(service.NewService),
	fx.Provide(
		func(s *service.Service) domain.Service { return s },
		func(s *service.Service) domain.Provisioner { return s },
	),
)
