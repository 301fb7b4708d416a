package billingapi

import (
	"context"

	"github.com/smallbiznis/azurecost/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ProvidePool builds the process-wide pool and drains it on shutdown.
func ProvidePool(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *Pool {
	pool := NewPool(cfg.Ingest.Workers)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("draining billing api pool", zap.Int("size", pool.Size()))
			return pool.Close(ctx)
		},
	})
	return pool
}
