package scheduler

import (
	"context"
	"time"

	obscontext "github.com/smallbiznis/azurecost/internal/observability/context"
	obslogger "github.com/smallbiznis/azurecost/internal/observability/logger"
	"go.uber.org/zap"
)

type jobRun struct {
	job           string
	runID         string
	trigger       string
	startedAt     time.Time
	savedCount    int
	rejectedCount int
	errorCount    int
}

func (r *jobRun) AddSaved(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.savedCount += count
}

func (r *jobRun) AddRejected(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.rejectedCount += count
}

func (r *jobRun) IncError() {
	if r == nil {
		return
	}
	r.errorCount++
}

func (s *Scheduler) newJobRun(ctx context.Context, job, trigger string) (context.Context, *jobRun) {
	if ctx == nil {
		ctx = context.Background()
	}
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		trigger:   trigger,
		startedAt: time.Now(),
	}
	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	ctx = obscontext.WithJob(ctx, job, run.runID)
	return ctx, run
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	s.logger(ctx).Info("scheduler.job.start",
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.String("trigger", run.trigger),
	)
}

func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int64("duration_ms", time.Since(run.startedAt).Milliseconds()),
		zap.Int("saved_count", run.savedCount),
		zap.Int("rejected_count", run.rejectedCount),
		zap.Int("error_count", run.errorCount),
	}
	log := s.logger(ctx)
	if run.errorCount > 0 {
		log.Warn("scheduler.job.finish", fields...)
		return
	}
	log.Info("scheduler.job.finish", fields...)
}

func (s *Scheduler) logSkipped(job, reason string, fields ...zap.Field) {
	s.log.Warn("scheduler.job.skipped",
		append([]zap.Field{zap.String("job", job), zap.String("reason", reason)}, fields...)...,
	)
}
