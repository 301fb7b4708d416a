package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/azurecost/internal/billingapi/azure"
	"github.com/smallbiznis/azurecost/internal/clock"
	"github.com/smallbiznis/azurecost/internal/config"
	"github.com/smallbiznis/azurecost/internal/cost"
	"github.com/smallbiznis/azurecost/internal/migration"
	"github.com/smallbiznis/azurecost/internal/observability"
	"github.com/smallbiznis/azurecost/internal/ratelimit"
	"github.com/smallbiznis/azurecost/internal/server"
	"github.com/smallbiznis/azurecost/pkg/db"
	"go.uber.org/fx"
)

// API only: on-demand fetches and reads. Run apps/scheduler alongside it
// for timed ingestion; /status reports the scheduler as stopped here.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		azure.Module,
		cost.Module,
		ratelimit.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
