package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyWorkerError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: fmt.Errorf("poll: %w", context.DeadlineExceeded), want: WorkerErrorReasonDeadlineExceeded},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: WorkerErrorReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: WorkerErrorReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: WorkerErrorReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: WorkerErrorReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyWorkerError(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAddProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newWorkerMetrics(registry, Config{ServiceName: "pearlsonic", Environment: "test"})

	m.AddProcessed("job_sweeper", 3)
	m.AddProcessed("job_sweeper", 0)

	got := testutil.ToFloat64(m.processed.WithLabelValues("job_sweeper"))
	if got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
}

func TestDuplicateRegistrationReusesCollector(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := newWorkerMetrics(registry, Config{})
	second := newWorkerMetrics(registry, Config{})

	first.IncRun("rate_limit_janitor")
	second.IncRun("rate_limit_janitor")

	if got := testutil.ToFloat64(first.runs.WithLabelValues("rate_limit_janitor")); got != 2 {
		t.Fatalf("expected shared counter at 2, got %v", got)
	}
}
