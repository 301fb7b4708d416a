package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/azurecost/internal/billingapi/azure"
	"github.com/smallbiznis/azurecost/internal/clock"
	"github.com/smallbiznis/azurecost/internal/config"
	"github.com/smallbiznis/azurecost/internal/cost"
	"github.com/smallbiznis/azurecost/internal/metricspush"
	"github.com/smallbiznis/azurecost/internal/migration"
	"github.com/smallbiznis/azurecost/internal/observability"
	"github.com/smallbiznis/azurecost/internal/ratelimit"
	"github.com/smallbiznis/azurecost/internal/scheduler"
	"github.com/smallbiznis/azurecost/internal/server"
	"github.com/smallbiznis/azurecost/pkg/db"
	"go.uber.org/fx"
)

// Monolith: HTTP API and scheduler in one process. fx stops modules in
// reverse order, so the scheduler stops before HTTP, then the billing API
// pool, then the database.
func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		metricspush.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		// Functional Domains
		azure.Module,
		cost.Module,
		ratelimit.Module,
		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
