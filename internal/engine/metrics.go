package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sdsbook",
		Subsystem: "engine",
		Name:      "operation_duration_seconds",
		Help:      "Duration of tracked portal operations, retries included.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"operation", "outcome"})
	metricRetryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sdsbook",
		Subsystem: "engine",
		Name:      "retry_attempts_failed_total",
		Help:      "Failed attempts of retried operations.",
	}, []string{"operation"})
	metricPageStates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sdsbook",
		Subsystem: "engine",
		Name:      "page_states_total",
		Help:      "Page states observed by the classifier.",
	}, []string{"state"})
)

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func recordOperation(name string, seconds float64, err error) {
	metricOperationDuration.WithLabelValues(name, outcomeLabel(err)).Observe(seconds)
}

func recordFailedAttempt(name string) {
	metricRetryAttempts.WithLabelValues(name).Inc()
}

func recordPageState(state PageState) {
	metricPageStates.WithLabelValues(state.Name()).Inc()
}
