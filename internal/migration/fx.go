package migration

import (
	"github.com/smallbiznis/azurecost/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module applies the embedded schema on startup. Only Postgres is migrated
// here; other dialects are expected to be provisioned out of band.
var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg db.Config, log *zap.Logger) error {
		if cfg.Type != "postgres" {
			log.Warn("skipping migrations for non-postgres database", zap.String("type", cfg.Type))
			return nil
		}
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
