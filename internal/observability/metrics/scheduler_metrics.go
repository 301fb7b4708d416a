package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/azurecost/internal/billingapi"
	costdomain "github.com/smallbiznis/azurecost/internal/cost/domain"
	"gorm.io/gorm"
)

const (
	SchedulerJobReasonDeadlineExceeded     = "deadline_exceeded"
	SchedulerJobReasonUpstream             = "upstream"
	SchedulerJobReasonProcessing           = "processing"
	SchedulerJobReasonValidation           = "validation"
	SchedulerJobReasonPersistence          = "persistence"
	SchedulerJobReasonDBLockTimeout        = "db_lock_timeout"
	SchedulerJobReasonSerializationFailure = "serialization_failure"
	SchedulerJobReasonUniqueViolation      = "unique_violation"
	SchedulerJobReasonUnavailable          = "unavailable"
	SchedulerJobReasonPanic                = "panic"
	SchedulerJobReasonUnknown              = "unknown"
)

// Reasons a scheduled fire did not run.
const (
	SchedulerSkipReasonMisfire        = "misfire"
	SchedulerSkipReasonAlreadyRunning = "already_running"
	SchedulerSkipReasonLockHeld       = "lock_held"
)

const (
	RecordOutcomeSaved    = "saved"
	RecordOutcomeRejected = "rejected"
)

const (
	LockResourceJob           = "scheduler_job"
	LockResourceCurrentPeriod = "billing_period_current"
)

// ErrJobPanic marks a job run that panicked and was recovered.
var ErrJobPanic = errors.New("job_panic")

// SchedulerMetrics captures cost ingestion scheduler health.
type SchedulerMetrics struct {
	jobRuns          *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	jobTimeouts      *prometheus.CounterVec
	jobErrors        *prometheus.CounterVec
	jobSkipped       *prometheus.CounterVec
	recordsProcessed *prometheus.CounterVec
	lastSuccess      *prometheus.GaugeVec
	runLoopLag       prometheus.Observer
	lockWait         *prometheus.HistogramVec
	lockWaitObserver map[string]prometheus.Observer
}

var (
	schedulerMetricsOnce sync.Once
	schedulerMetrics     *SchedulerMetrics
)

// Scheduler returns the singleton scheduler metrics registry.
func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

// SchedulerWithConfig returns the singleton scheduler metrics registry using config labels.
func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerMetricsOnce.Do(func() {
		schedulerMetrics = newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return schedulerMetrics
}

// NewSchedulerMetrics registers a fresh set of scheduler metrics on registerer.
func NewSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	return newSchedulerMetrics(registerer, cfg)
}

func newSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	constLabels := constLabelsFrom(cfg)

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "azurecost_scheduler_job_runs_total",
		Help:        "Scheduler job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job_name"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "azurecost_scheduler_job_duration_seconds",
		Help:        "Scheduler job latency including the billing API round trip.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300, 600},
		ConstLabels: constLabels,
	}, []string{"job_name"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "azurecost_scheduler_job_timeouts_total",
		Help:        "Scheduler job runs that hit their timeout.",
		ConstLabels: constLabels,
	}, []string{"job_name"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "azurecost_scheduler_job_errors_total",
		Help:        "Scheduler job errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job_name", "reason"})
	jobSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "azurecost_scheduler_job_skipped_total",
		Help:        "Scheduled fires that did not run, by reason.",
		ConstLabels: constLabels,
	}, []string{"job_name", "reason"})
	recordsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "azurecost_scheduler_records_processed_total",
		Help:        "Cost records handled by scheduled runs, saved or rejected.",
		ConstLabels: constLabels,
	}, []string{"job_name", "outcome"})
	lastSuccess := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "azurecost_scheduler_last_success_timestamp_seconds",
		Help:        "Unix time of the last successful run per job.",
		ConstLabels: constLabels,
	}, []string{"job_name"})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "azurecost_scheduler_runloop_lag_seconds",
		Help:        "Delay between a job's scheduled fire time and its start.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 900, 1800},
		ConstLabels: constLabels,
	})
	lockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "azurecost_scheduler_lock_wait_seconds",
		Help:        "Time spent acquiring scheduler and row locks.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	}, []string{"resource"})

	registerer.MustRegister(
		jobRuns,
		jobDuration,
		jobTimeouts,
		jobErrors,
		jobSkipped,
		recordsProcessed,
		lastSuccess,
		runLoopLag,
		lockWait,
	)

	lockWaitObserver := map[string]prometheus.Observer{
		LockResourceJob:           lockWait.WithLabelValues(LockResourceJob),
		LockResourceCurrentPeriod: lockWait.WithLabelValues(LockResourceCurrentPeriod),
	}

	return &SchedulerMetrics{
		jobRuns:          jobRuns,
		jobDuration:      jobDuration,
		jobTimeouts:      jobTimeouts,
		jobErrors:        jobErrors,
		jobSkipped:       jobSkipped,
		recordsProcessed: recordsProcessed,
		lastSuccess:      lastSuccess,
		runLoopLag:       runLoopLag,
		lockWait:         lockWait,
		lockWaitObserver: lockWaitObserver,
	}
}

func constLabelsFrom(cfg Config) prometheus.Labels {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "azurecost"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}
}

// IncJobRun increments the run counter for a scheduler job.
func (m *SchedulerMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// ObserveJobDuration records scheduler job latency in seconds.
func (m *SchedulerMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

// IncJobError increments the scheduler job error counter with classification.
func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifySchedulerJobReason(err)).Inc()
}

func (m *SchedulerMetrics) IncJobSkipped(job, reason string) {
	if m == nil {
		return
	}
	m.jobSkipped.WithLabelValues(job, reason).Inc()
}

// AddRecords counts saved or rejected records for a job.
func (m *SchedulerMetrics) AddRecords(job, outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.recordsProcessed.WithLabelValues(job, outcome).Add(float64(count))
}

func (m *SchedulerMetrics) SetLastSuccess(job string, at time.Time) {
	if m == nil {
		return
	}
	m.lastSuccess.WithLabelValues(job).Set(float64(at.Unix()))
}

// ObserveRunLoopLag records lag between the scheduled fire and actual run start.
func (m *SchedulerMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.runLoopLag.Observe(duration.Seconds())
}

// ObserveLockWait records time spent waiting on a lock resource.
func (m *SchedulerMetrics) ObserveLockWait(resource string, duration time.Duration) {
	if m == nil {
		return
	}
	if observer, ok := m.lockWaitObserver[resource]; ok {
		observer.Observe(duration.Seconds())
		return
	}
	m.lockWait.WithLabelValues(resource).Observe(duration.Seconds())
}

// ClassifySchedulerJobReason maps job errors to low-cardinality reasons.
// Database codes are checked before the persistence class because
// persistence errors wrap them.
func ClassifySchedulerJobReason(err error) string {
	switch {
	case err == nil:
		return SchedulerJobReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return SchedulerJobReasonDeadlineExceeded
	case errors.Is(err, ErrJobPanic):
		return SchedulerJobReasonPanic
	case errors.Is(err, costdomain.ErrUpstream):
		return SchedulerJobReasonUpstream
	case errors.Is(err, costdomain.ErrProcessing):
		return SchedulerJobReasonProcessing
	case errors.Is(err, costdomain.ErrValidation):
		return SchedulerJobReasonValidation
	case isDBLockTimeout(err):
		return SchedulerJobReasonDBLockTimeout
	case isSerializationFailure(err):
		return SchedulerJobReasonSerializationFailure
	case isUniqueViolation(err):
		return SchedulerJobReasonUniqueViolation
	case errors.Is(err, costdomain.ErrPersistence):
		return SchedulerJobReasonPersistence
	case errors.Is(err, billingapi.ErrPoolClosed), errors.Is(err, billingapi.ErrNotConfigured):
		return SchedulerJobReasonUnavailable
	default:
		return SchedulerJobReasonUnknown
	}
}

func isDBLockTimeout(err error) bool {
	return hasPGCode(err, "55P03")
}

func isSerializationFailure(err error) bool {
	return hasPGCode(err, "40001") || hasPGCode(err, "40P01")
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return hasPGCode(err, "23505")
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
