package db

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/azurecost/internal/config"
	obslogger "github.com/smallbiznis/azurecost/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormprometheus "gorm.io/plugin/prometheus"
)

var Module = fx.Module("db",
	fx.Provide(ConfigFrom),
	fx.Provide(New),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	AppConfig config.Config
	Config    Config
	Log       *zap.Logger
}

// New opens the shared connection pool, retrying with exponential backoff
// until the database answers a ping.
func New(p Params) (*gorm.DB, error) {
	log := p.Log.Named("db")
	dialector, err := Dialect(p.Config)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:         obslogger.NewGormLogger(obslogger.DefaultGormLoggerConfig()),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := conn.Use(otelgorm.NewPlugin(otelgorm.WithDBName(p.Config.Name))); err != nil {
		return nil, fmt.Errorf("register otelgorm: %w", err)
	}
	if err := conn.Use(gormprometheus.New(gormprometheus.Config{
		DBName:          p.Config.Name,
		RefreshInterval: 15,
		Labels:          map[string]string{"service": p.AppConfig.AppName},
	})); err != nil {
		return nil, fmt.Errorf("register gorm prometheus: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	applyPool(sqlDB, p.Config)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := WaitForDB(ctx, conn, p.Config.ConnectRetries, p.Config.ConnectBackoff, log); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			log.Info("closing database pool")
			return sqlDB.Close()
		},
	})

	return conn, nil
}

type poolSetter interface {
	SetMaxIdleConns(int)
	SetMaxOpenConns(int)
	SetConnMaxLifetime(time.Duration)
	SetConnMaxIdleTime(time.Duration)
}

func applyPool(sqlDB poolSetter, cfg Config) {
	if cfg.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConn)
	}
	if cfg.MaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConn)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

// WaitForDB pings the database up to retries+1 times, doubling the delay
// after each failure.
func WaitForDB(ctx context.Context, conn *gorm.DB, retries int, backoff time.Duration, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if retries < 0 {
		retries = 0
	}
	if backoff <= 0 {
		backoff = 2 * time.Second
	}

	var lastErr error
	delay := backoff
	for attempt := 0; attempt <= retries; attempt++ {
		lastErr = Ping(ctx, conn)
		if lastErr == nil {
			if attempt > 0 {
				log.Info("database reachable", zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if attempt == retries {
			break
		}
		log.Warn("database not ready",
			zap.Int("attempt", attempt+1),
			zap.Duration("retry_in", delay),
			zap.Error(lastErr),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for database: %w", ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("database unreachable after %d attempts: %w", retries+1, lastErr)
}

// Ping checks connectivity with a short bounded timeout.
func Ping(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return gorm.ErrInvalidDB
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return sqlDB.PingContext(pingCtx)
}
