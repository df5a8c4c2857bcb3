package scheduler

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/saeedzarbi/Ai-agent-worker/domain/counters"
	"github.com/saeedzarbi/Ai-agent-worker/domain/jobs"
	"github.com/saeedzarbi/Ai-agent-worker/internal/config"
	"github.com/saeedzarbi/Ai-agent-worker/internal/queue"
	"github.com/saeedzarbi/Ai-agent-worker/pkg/logger"
)

// Module provides scheduled task functionality
var Module = fx.Module("scheduler",
	fx.Provide(NewFromConfig),
	fx.Invoke(
		RegisterTasks,
		RegisterSchedulerLifecycle,
	),
)

func NewFromConfig(cfg *config.Config, log *slog.Logger) *Scheduler {
	return NewScheduler(cfg.Scheduler.TaskTimeout, log)
}

// TaskParams contains dependencies for creating scheduled tasks
type TaskParams struct {
	fx.In
	Scheduler  *Scheduler
	Queue      queue.Queue
	Accountant *counters.Accountant
	Jobs       *jobs.Repository
	Cfg        *config.Config
	Log        *slog.Logger
}

// RegisterTasks registers all scheduled tasks
func RegisterTasks(p TaskParams) error {
	log := p.Log.With(logger.Scope("scheduler"))
	if !p.Cfg.Scheduler.Enabled {
		log.Info("scheduler disabled, skipping task registration")
		return nil
	}

	requeue := NewRequeueExpiredTask(p.Queue, p.Log)
	if err := p.Scheduler.AddIntervalTask("queue_requeue_expired",
		p.Cfg.Scheduler.RequeueInterval, requeue.Run); err != nil {
		return err
	}

	gauges := NewGaugeTask(p.Accountant, p.Jobs, p.Queue, p.Log)
	if err := p.Scheduler.AddIntervalTask("counter_gauges",
		p.Cfg.Scheduler.GaugeInterval, gauges.Run); err != nil {
		return err
	}

	log.Info("registered scheduled tasks", slog.Any("tasks", p.Scheduler.ListTasks()))
	return nil
}

// RegisterSchedulerLifecycle registers the scheduler with fx lifecycle
func RegisterSchedulerLifecycle(lc fx.Lifecycle, scheduler *Scheduler, cfg *config.Config) {
	if !cfg.Scheduler.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduler.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return scheduler.Stop(ctx)
		},
	})
}
