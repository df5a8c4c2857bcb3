// Package scheduler runs the periodic maintenance tasks: redelivering
// expired queue claims and refreshing the Prometheus gauges.
package scheduler

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/saeedzarbi/Ai-agent-worker/pkg/logger"
)

// TaskFunc is one run of a scheduled task. ctx carries the task timeout.
type TaskFunc func(ctx context.Context) error

// Scheduler runs named interval tasks on robfig/cron. A run that is still
// going when the next tick fires makes that tick a no-op.
type Scheduler struct {
	cron    *cron.Cron
	log     *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	entries map[string]cron.EntryID
	running bool
}

func NewScheduler(taskTimeout time.Duration, log *slog.Logger) *Scheduler {
	if taskTimeout <= 0 {
		taskTimeout = time.Minute
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		log:     log.With(logger.Scope("scheduler")),
		timeout: taskTimeout,
		entries: make(map[string]cron.EntryID),
	}
}

func (s *Scheduler) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.cron.Start()
	s.running = true
	s.log.Info("scheduler started", slog.Int("tasks", len(s.entries)))
	return nil
}

// Stop waits for in-progress runs until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false

	select {
	case <-s.cron.Stop().Done():
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stopped with tasks still running")
	}
	return nil
}

// AddIntervalTask runs task every interval. Adding a name twice replaces the
// earlier registration.
func (s *Scheduler) AddIntervalTask(name string, interval time.Duration, task TaskFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}

	id, err := s.cron.AddFunc("@every "+interval.String(), func() { s.runTask(name, task) })
	if err != nil {
		return err
	}
	s.entries[name] = id

	s.log.Info("scheduled task",
		slog.String("task", name),
		slog.Duration("every", interval))
	return nil
}

func (s *Scheduler) runTask(name string, task TaskFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	err := task(ctx)
	took := time.Since(start)

	if err != nil {
		TaskRuns.WithLabelValues(name, "error").Inc()
		s.log.Error("scheduled task failed",
			slog.String("task", name),
			slog.Duration("took", took),
			logger.Error(err))
		return
	}
	TaskRuns.WithLabelValues(name, "ok").Inc()
	s.log.Debug("scheduled task finished",
		slog.String("task", name),
		slog.Duration("took", took))
}

// ListTasks returns the registered task names, sorted.
func (s *Scheduler) ListTasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
