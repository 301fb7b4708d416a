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
	"github.com/smallbiznis/azurecost/pkg/db"
	"go.uber.org/fx"
)

// Scheduler only. Enable SCHEDULER_DISTRIBUTED_LOCK when running more than
// one replica.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		metricspush.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		azure.Module,
		cost.Module,
		ratelimit.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
