package metricspush

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/azurecost/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("metrics.push",
	fx.Provide(NewPusher),
	fx.Invoke(register),
)

const defaultInterval = time.Minute

// Worker pushes the default registry on an interval. Processes that expose
// no /metrics endpoint use it so scheduler metrics still reach the collector.
type Worker struct {
	pusher   Pusher
	gatherer prometheus.Gatherer
	interval time.Duration
	log      *zap.Logger
}

func NewWorker(pusher Pusher, gatherer prometheus.Gatherer, interval time.Duration, log *zap.Logger) *Worker {
	if interval <= 0 {
		interval = defaultInterval
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{pusher: pusher, gatherer: gatherer, interval: interval, log: log.Named("metrics.push")}
}

// PushOnce sends the current metrics. Failures are logged, never returned.
func (w *Worker) PushOnce(ctx context.Context) {
	if w == nil || w.pusher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, defaultPushTimeout)
	defer cancel()
	if err := w.pusher.Push(ctx, w.gatherer); err != nil {
		w.log.Warn("metrics push failed", zap.Error(err))
	}
}

// Run pushes on every interval until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.PushOnce(ctx)
	for {
		select {
		case <-ticker.C:
			w.PushOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func register(lc fx.Lifecycle, cfg config.Config, pusher Pusher, log *zap.Logger) {
	if pusher == nil {
		return
	}
	w := NewWorker(pusher, prometheus.DefaultGatherer, cfg.Push.Interval, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			w.log.Info("starting metrics push worker",
				zap.String("exporter", cfg.Push.Exporter),
				zap.Duration("interval", w.interval),
			)
			go func() {
				defer close(done)
				w.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
			// Flush what the last job runs recorded.
			w.PushOnce(stopCtx)
			return nil
		},
	})
}
