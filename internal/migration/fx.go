package migration

import (
	"context"

	"github.com/smallbiznis/tenantry/internal/config"
	"github.com/smallbiznis/tenantry/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Provide(seed.New),
	fx.Invoke(run),
)

type runParams struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Config  config.Config
	Catalog *config.PlanCatalogHolder
	Seeder  *seed.Seeder
}

func run(p runParams) error {
	if err := Migrate(p.DB); err != nil {
		return err
	}

	ctx := context.Background()
	if err := p.Seeder.EnsurePlans(ctx, p.Catalog.Get()); err != nil {
		return err
	}
	p.Catalog.OnChange(func(catalog config.PlanCatalog) {
		if err := p.Seeder.EnsurePlans(context.Background(), catalog); err != nil {
			p.Log.Error("reseed plans failed", zap.Error(err))
		}
	})

	return p.Seeder.EnsureBootstrapAdmin(ctx, p.Config.Bootstrap)
}
