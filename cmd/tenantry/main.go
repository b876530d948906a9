package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantry/internal/auth"
	"github.com/smallbiznis/tenantry/internal/authorization"
	"github.com/smallbiznis/tenantry/internal/clock"
	"github.com/smallbiznis/tenantry/internal/config"
	"github.com/smallbiznis/tenantry/internal/migration"
	"github.com/smallbiznis/tenantry/internal/observability"
	"github.com/smallbiznis/tenantry/internal/organization"
	"github.com/smallbiznis/tenantry/internal/ratelimit"
	"github.com/smallbiznis/tenantry/internal/server"
	"github.com/smallbiznis/tenantry/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domains
		authorization.Module,
		organization.Module,
		auth.Module,
		ratelimit.Module,
		migration.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
