package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "kubesentry"

var (
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "health_checks_total",
		Help:      "Health checks performed by the monitor loop.",
	})

	TickErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "health_check_errors_total",
		Help:      "Health checks that failed, by error kind.",
	}, []string{"kind"})

	IssuesCurrent = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "issues",
		Help:      "Issues detected by the latest health check, by severity.",
	}, []string{"severity"})

	NodesReady = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "nodes_ready",
		Help:      "Ready nodes seen by the latest health check.",
	})

	InvestigationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "investigations_total",
		Help:      "Completed investigations, by type and report status.",
	}, []string{"type", "status"})

	InvestigationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "investigation_duration_seconds",
		Help:      "Wall time of complete investigations.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
	})

	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "investigation_step_duration_seconds",
		Help:      "Duration of investigation steps, by step and outcome.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"step", "status"})

	PublishFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "publish_failures_total",
		Help:      "Failed deliveries to the dashboard backend, by kind.",
	}, []string{"kind"})

	BufferedLogs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "buffered_log_entries",
		Help:      "Log entries waiting for redelivery.",
	})
)
