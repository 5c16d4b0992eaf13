package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	WorkerErrorReasonDeadlineExceeded     = "deadline_exceeded"
	WorkerErrorReasonDBLockTimeout        = "db_lock_timeout"
	WorkerErrorReasonSerializationFailure = "serialization_failure"
	WorkerErrorReasonUniqueViolation      = "unique_violation"
	WorkerErrorReasonUnknown              = "unknown"
)

// WorkerMetrics captures background loop health: the job sweeper and the
// rate limit janitor.
type WorkerMetrics struct {
	runs      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	errors    *prometheus.CounterVec
	processed *prometheus.CounterVec
}

var (
	workerMetricsOnce sync.Once
	workerMetrics     *WorkerMetrics
)

// Worker returns the process-wide worker metrics registered on the default registry.
func Worker() *WorkerMetrics {
	return WorkerWithConfig(Config{})
}

func WorkerWithConfig(cfg Config) *WorkerMetrics {
	workerMetricsOnce.Do(func() {
		workerMetrics = newWorkerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return workerMetrics
}

func newWorkerMetrics(registerer prometheus.Registerer, cfg Config) *WorkerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "pearlsonic"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{"service": serviceName, "env": environment}

	m := &WorkerMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pearlsonic_worker_runs_total",
			Help:        "Background worker iterations.",
			ConstLabels: constLabels,
		}, []string{"worker"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "pearlsonic_worker_duration_seconds",
			Help:        "Background worker iteration duration.",
			ConstLabels: constLabels,
			Buckets:     []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60},
		}, []string{"worker"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pearlsonic_worker_errors_total",
			Help:        "Background worker failures by reason.",
			ConstLabels: constLabels,
		}, []string{"worker", "reason"}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pearlsonic_worker_processed_total",
			Help:        "Items handled by background workers.",
			ConstLabels: constLabels,
		}, []string{"worker"}),
	}

	m.runs = registerCollector(registerer, m.runs)
	m.duration = registerCollector(registerer, m.duration)
	m.errors = registerCollector(registerer, m.errors)
	m.processed = registerCollector(registerer, m.processed)
	return m
}

// registerCollector returns the already registered collector on duplicate registration.
func registerCollector[T prometheus.Collector](registerer prometheus.Registerer, c T) T {
	if err := registerer.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

func (m *WorkerMetrics) IncRun(worker string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(worker).Inc()
}

func (m *WorkerMetrics) ObserveDuration(worker string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(worker).Observe(d.Seconds())
}

func (m *WorkerMetrics) IncError(worker string, err error) {
	if m == nil || err == nil {
		return
	}
	m.errors.WithLabelValues(worker, ClassifyWorkerError(err)).Inc()
}

func (m *WorkerMetrics) AddProcessed(worker string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.processed.WithLabelValues(worker).Add(float64(count))
}

// ClassifyWorkerError maps an error to a bounded reason label.
func ClassifyWorkerError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return WorkerErrorReasonDeadlineExceeded
	case hasPGCode(err, "55P03"):
		return WorkerErrorReasonDBLockTimeout
	case hasPGCode(err, "40001"):
		return WorkerErrorReasonSerializationFailure
	case errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505"):
		return WorkerErrorReasonUniqueViolation
	default:
		return WorkerErrorReasonUnknown
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
