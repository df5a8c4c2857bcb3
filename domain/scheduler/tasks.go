package scheduler

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/saeedzarbi/Ai-agent-worker/domain/counters"
	"github.com/saeedzarbi/Ai-agent-worker/domain/jobs"
	"github.com/saeedzarbi/Ai-agent-worker/internal/queue"
	"github.com/saeedzarbi/Ai-agent-worker/pkg/logger"
)

var (
	JobsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "adworker_jobs",
		Help: "Stored jobs by status",
	}, []string{"status"})

	QueueMessages = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "adworker_queue_messages",
		Help: "Queue backend messages by state",
	}, []string{"state"})

	TaskRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adworker_scheduled_task_runs_total",
		Help: "Scheduled task runs by task and result",
	}, []string{"task", "result"})

	RequeuedClaims = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adworker_queue_requeued_claims_total",
		Help: "Claims returned to the queue after their visibility timeout",
	})
)

// RequeueExpiredTask redelivers claims abandoned by a crashed or stalled
// worker. Their jobs stay in processing until the redelivery runs.
type RequeueExpiredTask struct {
	queue queue.Queue
	log   *slog.Logger
}

func NewRequeueExpiredTask(q queue.Queue, log *slog.Logger) *RequeueExpiredTask {
	return &RequeueExpiredTask{
		queue: q,
		log:   log.With(logger.Scope("scheduler.requeue")),
	}
}

func (t *RequeueExpiredTask) Run(ctx context.Context) error {
	n, err := t.queue.RequeueExpired(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		RequeuedClaims.Add(float64(n))
		t.log.Warn("requeued expired claims", slog.Int("count", n))
	}
	return nil
}

// StatusCounter counts stored jobs per status.
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[jobs.Status]int64, error)
}

// GaugeTask refreshes the Prometheus gauges from the counter store, the job
// table and the queue backend.
type GaugeTask struct {
	accountant *counters.Accountant
	jobs       StatusCounter
	queue      queue.Queue
	log        *slog.Logger
}

func NewGaugeTask(acct *counters.Accountant, sc StatusCounter, q queue.Queue, log *slog.Logger) *GaugeTask {
	return &GaugeTask{
		accountant: acct,
		jobs:       sc,
		queue:      q,
		log:        log.With(logger.Scope("scheduler.gauges")),
	}
}

var allStatuses = []jobs.Status{
	jobs.StatusQueued,
	jobs.StatusProcessing,
	jobs.StatusSuccess,
	jobs.StatusFailed,
	jobs.StatusReject,
}

func (t *GaugeTask) Run(ctx context.Context) error {
	// Info mirrors the counters into their gauges as a side effect.
	if _, err := t.accountant.Info(ctx); err != nil {
		t.log.Warn("failed to read counters", logger.Error(err))
	}

	if stats, err := t.queue.Stats(ctx); err != nil {
		t.log.Warn("failed to read queue stats", logger.Error(err))
	} else {
		QueueMessages.WithLabelValues("pending").Set(float64(stats.Pending))
		QueueMessages.WithLabelValues("in_flight").Set(float64(stats.InFlight))
		QueueMessages.WithLabelValues("dead").Set(float64(stats.Dead))
	}

	counts, err := t.jobs.CountByStatus(ctx)
	if err != nil {
		return err
	}
	for _, s := range allStatuses {
		JobsByStatus.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
	return nil
}
