package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/azurecost/internal/clock"
	"github.com/smallbiznis/azurecost/internal/config"
	costdomain "github.com/smallbiznis/azurecost/internal/cost/domain"
	obsmetrics "github.com/smallbiznis/azurecost/internal/observability/metrics"
	"github.com/smallbiznis/azurecost/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

type Params struct {
	fx.In

	Pipeline costdomain.Pipeline
	Schedule *config.ScheduleConfigHolder
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Config   Config                       `optional:"true"`
	Metrics  *obsmetrics.SchedulerMetrics `optional:"true"`
	Locker   *ratelimit.Locker            `optional:"true"`
}

// jobFunc runs one ingestion and reports saved and rejected counts.
type jobFunc func(ctx context.Context) (saved, rejected int, err error)

type job struct {
	id      string
	name    string
	fn      jobFunc
	running atomic.Bool

	mu        sync.Mutex
	trigger   string
	schedule  cron.Schedule
	nextRun   time.Time
	lastRun   time.Time
	lastError string
	enabled   bool
}

type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	genID    *snowflake.Node
	clock    clock.Clock
	schedule *config.ScheduleConfigHolder
	metrics  *obsmetrics.SchedulerMetrics
	locker   *ratelimit.Locker

	jobs    map[string]*job
	order   []string
	started atomic.Bool
	wg      sync.WaitGroup
}

// JobStatus is a point-in-time view of one job.
type JobStatus struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Enabled   bool       `json:"enabled"`
	Running   bool       `json:"running"`
	Trigger   string     `json:"trigger,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

type Status struct {
	Running bool        `json:"running"`
	Jobs    []JobStatus `json:"jobs"`
}

func New(p Params) (*Scheduler, error) {
	if p.Pipeline == nil || p.Schedule == nil || p.Log == nil || p.GenID == nil {
		return nil, ErrInvalidConfig
	}
	c := p.Clock
	if c == nil {
		c = clock.New()
	}
	metrics := p.Metrics
	if metrics == nil {
		metrics = obsmetrics.Scheduler()
	}

	s := &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		genID:    p.GenID,
		clock:    c,
		schedule: p.Schedule,
		metrics:  metrics,
		locker:   p.Locker,
		jobs:     map[string]*job{},
	}

	s.register(config.JobDailyCosts, "Fetch daily costs", func(ctx context.Context) (int, int, error) {
		res, err := p.Pipeline.FetchDailyCosts(ctx)
		return res.SavedCount, res.Rejected, err
	})
	s.register(config.JobServiceCosts, "Fetch service costs", func(ctx context.Context) (int, int, error) {
		res, err := p.Pipeline.FetchServiceCosts(ctx)
		return res.SavedCount, res.Rejected, err
	})

	return s, nil
}

func (s *Scheduler) register(id, name string, fn jobFunc) {
	s.jobs[id] = &job{id: id, name: name, fn: fn}
	s.order = append(s.order, id)
	sort.Strings(s.order)
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	trigger string,
	timeout time.Duration,
	fn jobFunc,
) (err error) {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.newJobRun(ctx, name, trigger)
	s.logJobStart(ctx, run)
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	s.metrics.IncJobRun(name)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", obsmetrics.ErrJobPanic, r)
			log.Error("job panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
		s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
		if err != nil {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
		if err == nil {
			s.metrics.SetLastSuccess(name, s.clock.Now())
			return
		}

		if errors.Is(err, context.DeadlineExceeded) {
			s.metrics.IncJobTimeout(name)
			log.Warn("job timed out", zap.Duration("timeout", timeout), zap.Error(err))
		}
		s.metrics.IncJobError(name, err)
		err = fmt.Errorf("%s: %w", name, err)
	}()

	saved, rejected, err := fn(ctx)
	run.AddSaved(saved)
	run.AddRejected(rejected)
	s.metrics.AddRecords(name, obsmetrics.RecordOutcomeSaved, saved)
	s.metrics.AddRecords(name, obsmetrics.RecordOutcomeRejected, rejected)
	return err
}

// RunJob executes a job now. It shares the single-flight guard with the
// schedule loop, so a job that is already running returns ErrJobRunning.
func (s *Scheduler) RunJob(ctx context.Context, id string) error {
	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	return s.execute(ctx, j, TriggerManual)
}

func (s *Scheduler) execute(ctx context.Context, j *job, trigger string) error {
	if !j.running.CompareAndSwap(false, true) {
		s.metrics.IncJobSkipped(j.id, obsmetrics.SchedulerSkipReasonAlreadyRunning)
		s.logSkipped(j.id, obsmetrics.SchedulerSkipReasonAlreadyRunning, zap.String("trigger", trigger))
		return ErrJobRunning
	}
	defer j.running.Store(false)

	js, _ := s.schedule.Get().Job(j.id)
	timeout := js.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	release, err := s.acquireLock(ctx, j.id, timeout+js.Grace)
	if err != nil {
		return err
	}
	defer release()

	err = s.runJob(ctx, j.id, trigger, timeout, j.fn)

	j.mu.Lock()
	j.lastRun = s.clock.Now()
	j.lastError = ""
	if err != nil {
		j.lastError = err.Error()
	}
	j.mu.Unlock()
	return err
}

// acquireLock takes the cross-replica lock when enabled. Redis errors fall
// back to the in-process guard alone.
func (s *Scheduler) acquireLock(ctx context.Context, id string, ttl time.Duration) (func(), error) {
	noop := func() {}
	if !s.cfg.LockEnabled || s.locker == nil {
		return noop, nil
	}

	key := s.cfg.LockPrefix + ":" + id
	waitStart := time.Now()
	lease, err := s.locker.TryLock(ctx, key, ttl)
	s.metrics.ObserveLockWait(obsmetrics.LockResourceJob, time.Since(waitStart))
	if err != nil {
		s.log.Warn("scheduler lock unavailable, running unlocked", zap.String("job", id), zap.Error(err))
		return noop, nil
	}
	if lease == nil {
		s.metrics.IncJobSkipped(id, obsmetrics.SchedulerSkipReasonLockHeld)
		s.logSkipped(id, obsmetrics.SchedulerSkipReasonLockHeld)
		return nil, ErrJobLocked
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			s.log.Warn("scheduler lock release failed", zap.String("job", id), zap.Error(err))
		}
	}, nil
}

// Tick fires every job that is due at the current clock time. Due jobs run
// in their own goroutine; a fire later than the job's grace window is
// skipped and the next fire is computed from now.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock.Now()
	schedule := s.schedule.Get()

	for _, id := range s.order {
		j := s.jobs[id]
		js, ok := schedule.Job(id)
		if !s.refresh(j, js, ok, now) {
			continue
		}

		j.mu.Lock()
		due := !now.Before(j.nextRun)
		lag := now.Sub(j.nextRun)
		if due {
			j.nextRun = j.schedule.Next(now)
		}
		j.mu.Unlock()
		if !due {
			continue
		}

		s.metrics.ObserveRunLoopLag(lag)
		if js.Grace > 0 && lag > js.Grace {
			s.metrics.IncJobSkipped(id, obsmetrics.SchedulerSkipReasonMisfire)
			s.logSkipped(id, obsmetrics.SchedulerSkipReasonMisfire, zap.Duration("lag", lag), zap.Duration("grace", js.Grace))
			continue
		}

		s.wg.Add(1)
		go func(j *job) {
			defer s.wg.Done()
			if err := s.execute(ctx, j, TriggerSchedule); err != nil && !errors.Is(err, ErrJobRunning) && !errors.Is(err, ErrJobLocked) {
				s.log.Warn("scheduler run failed", zap.String("job", j.id), zap.Error(err))
			}
		}(j)
	}
}

// refresh applies the current schedule to j and reports whether it is
// enabled with a valid trigger. A changed trigger resets the next fire.
func (s *Scheduler) refresh(j *job, js config.JobSchedule, known bool, now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !known || !js.Enabled {
		j.enabled = false
		j.nextRun = time.Time{}
		return false
	}

	sched, trigger, err := parseSchedule(js)
	if err != nil {
		if j.enabled || j.trigger != "invalid" {
			s.log.Error("invalid job schedule", zap.String("job", j.id), zap.Error(err))
		}
		j.enabled = false
		j.trigger = "invalid"
		j.nextRun = time.Time{}
		return false
	}

	if !j.enabled || trigger != j.trigger || j.nextRun.IsZero() {
		j.schedule = sched
		j.trigger = trigger
		j.nextRun = sched.Next(now)
		j.enabled = true
		return false
	}
	return true
}

// RunForever polls the schedule until ctx is done, then waits for running
// jobs to return.
func (s *Scheduler) RunForever(ctx context.Context) {
	s.started.Store(true)
	defer s.started.Store(false)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Wait blocks until every job started by Tick has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) Running() bool {
	return s.started.Load()
}

func (s *Scheduler) Status() Status {
	status := Status{Running: s.Running(), Jobs: make([]JobStatus, 0, len(s.order))}
	for _, id := range s.order {
		j := s.jobs[id]
		j.mu.Lock()
		js := JobStatus{
			ID:        j.id,
			Name:      j.name,
			Enabled:   j.enabled,
			Running:   j.running.Load(),
			Trigger:   j.trigger,
			LastError: j.lastError,
		}
		if !j.nextRun.IsZero() {
			next := j.nextRun
			js.NextRun = &next
		}
		if !j.lastRun.IsZero() {
			last := j.lastRun
			js.LastRun = &last
		}
		j.mu.Unlock()
		status.Jobs = append(status.Jobs, js)
	}
	return status
}
