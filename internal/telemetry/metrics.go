package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики оркестратора.
var (
	RunTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeworks_run_transitions_total",
		Help: "Committed pipeline run state transitions by target state",
	}, []string{"to"})

	RunsReleased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipeworks_runs_released_total",
		Help: "Queued runs released after all predecessors completed",
	})

	RunsCascadeCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipeworks_runs_cascade_cancelled_total",
		Help: "Downstream runs cancelled because a predecessor failed or was cancelled",
	})

	QueuePublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipeworks_queue_publish_failures_total",
		Help: "Runnable runs that could not be published to the task queue",
	})
)

// Метрики воркера.
var (
	ExecutorStepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeworks_executor_step_duration_seconds",
		Help:    "Duration of run executor steps",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
	}, []string{"step", "outcome"})

	Executions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeworks_executions_total",
		Help: "Run executions by outcome (completed, failed, skipped)",
	}, []string{"outcome"})
)

// Метрики уведомлений.
var (
	Callbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeworks_callbacks_total",
		Help: "Callback notifications by outcome (ok, error)",
	}, []string{"outcome"})
)

// Outcome возвращает метку результата для ошибки.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
