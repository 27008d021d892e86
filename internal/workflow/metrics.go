package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sdsbook",
		Subsystem: "workflow",
		Name:      "runs_total",
		Help:      "Workflow runs by outcome.",
	}, []string{"workflow", "outcome"})
	metricActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sdsbook",
		Subsystem: "workflow",
		Name:      "active_sessions",
		Help:      "Browser sessions currently open.",
	})
)

func recordRun(workflow, outcome string) {
	metricRuns.WithLabelValues(workflow, outcome).Inc()
}
