package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adworker_jobs_processed_total",
		Help: "Deliveries handled by the consumer, by resulting status",
	}, []string{"status"})

	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "adworker_job_duration_seconds",
		Help:    "Time from claim to acknowledgement or retry",
		Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
	})

	AgentRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adworker_agent_requests_total",
		Help: "Extraction agent calls by provider and result",
	}, []string{"provider", "result"})

	QueueRedeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adworker_queue_redeliveries_total",
		Help: "Deliveries received with more than one attempt",
	})

	CallbackResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adworker_callback_results_total",
		Help: "Callback dispatch results by kind",
	}, []string{"kind"})
)

// status label used when a delivery is handed back for redelivery
const statusRetry = "retry"
