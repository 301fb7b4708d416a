package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/azurecost/internal/billingapi"
	costdomain "github.com/smallbiznis/azurecost/internal/cost/domain"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: SchedulerJobReasonDeadlineExceeded,
		},
		{
			name: "upstream",
			err:  &billingapi.UpstreamError{Op: "query", StatusCode: 401},
			want: SchedulerJobReasonUpstream,
		},
		{
			name: "validation",
			err:  fmt.Errorf("%w: no usable data", costdomain.ErrValidation),
			want: SchedulerJobReasonValidation,
		},
		{
			name: "db_lock_timeout",
			err:  fmt.Errorf("%w: %w", costdomain.ErrPersistence, &pgconn.PgError{Code: "55P03"}),
			want: SchedulerJobReasonDBLockTimeout,
		},
		{
			name: "serialization_failure",
			err:  &pgconn.PgError{Code: "40001"},
			want: SchedulerJobReasonSerializationFailure,
		},
		{
			name: "unique_violation",
			err:  gorm.ErrDuplicatedKey,
			want: SchedulerJobReasonUniqueViolation,
		},
		{
			name: "persistence",
			err:  fmt.Errorf("%w: connection refused", costdomain.ErrPersistence),
			want: SchedulerJobReasonPersistence,
		},
		{
			name: "pool_closed",
			err:  billingapi.ErrPoolClosed,
			want: SchedulerJobReasonUnavailable,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: SchedulerJobReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAddRecords(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewSchedulerMetrics(registry, Config{
		ServiceName: "azurecost",
		Environment: "test",
	})

	metrics.AddRecords("fetch_daily_costs", RecordOutcomeSaved, 3)
	metrics.AddRecords("fetch_daily_costs", RecordOutcomeRejected, 0)

	got := testutil.ToFloat64(metrics.recordsProcessed.WithLabelValues("fetch_daily_costs", RecordOutcomeSaved))
	if got != 3 {
		t.Fatalf("expected saved count 3, got %v", got)
	}
	if n := testutil.CollectAndCount(metrics.recordsProcessed); n != 1 {
		t.Fatalf("expected one series, got %d", n)
	}
}

func TestIncJobSkipped(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewSchedulerMetrics(registry, Config{})

	metrics.IncJobSkipped("fetch_service_costs", SchedulerSkipReasonMisfire)
	metrics.IncJobSkipped("fetch_service_costs", SchedulerSkipReasonMisfire)

	got := testutil.ToFloat64(metrics.jobSkipped.WithLabelValues("fetch_service_costs", SchedulerSkipReasonMisfire))
	if got != 2 {
		t.Fatalf("expected 2 skipped fires, got %v", got)
	}
}

func TestSchedulerMetricsAvoidReservedPushLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewSchedulerMetrics(registry, Config{ServiceName: "azurecost", Environment: "test"})
	metrics.IncJobRun("fetch_daily_costs")
	metrics.IncJobError("fetch_daily_costs", errors.New("boom"))
	metrics.IncJobSkipped("fetch_daily_costs", SchedulerSkipReasonMisfire)
	metrics.AddRecords("fetch_daily_costs", RecordOutcomeSaved, 1)
	metrics.SetLastSuccess("fetch_daily_costs", time.Unix(1700000000, 0))

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "job" || label.GetName() == "instance" {
					t.Fatalf("%s carries reserved label %q", family.GetName(), label.GetName())
				}
			}
		}
	}
}
