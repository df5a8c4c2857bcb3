package consumer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/saeedzarbi/Ai-agent-worker/pkg/logger"
)

// WorkerMetrics counts poll iterations.
type WorkerMetrics struct {
	Polls  int64 `json:"polls"`
	Failed int64 `json:"failed"`
}

// Worker polls the queue on a fixed interval until stopped.
type Worker struct {
	interval time.Duration
	poll     func(ctx context.Context) error
	log      *slog.Logger

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
	cancel    context.CancelFunc

	metricsMu sync.RWMutex
	polls     int64
	failed    int64
}

func NewWorker(interval time.Duration, poll func(ctx context.Context) error, log *slog.Logger) *Worker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Worker{
		interval:  interval,
		poll:      poll,
		log:       log.With(logger.Scope("consumer.worker")),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start launches the polling loop. The loop outlives ctx; use Stop to end it.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.stoppedCh = make(chan struct{})
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.cancel = cancel
	w.mu.Unlock()

	w.log.Info("worker starting", slog.Duration("poll_interval", w.interval))

	go w.run(runCtx)
	return nil
}

// Stop waits for the current batch to finish. If ctx ends first, in-flight
// jobs are cancelled; their claims expire and they are redelivered.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.stopCh)
	cancel := w.cancel
	w.mu.Unlock()

	select {
	case <-w.stoppedCh:
		w.log.Info("worker stopped gracefully")
	case <-ctx.Done():
		w.log.Warn("worker stop timeout, cancelling in-flight jobs")
		cancel()
		<-w.stoppedCh
	}
	cancel()
	return nil
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.stoppedCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	select {
	case <-w.stopCh:
		return
	default:
	}

	err := w.poll(ctx)

	w.metricsMu.Lock()
	w.polls++
	if err != nil {
		w.failed++
	}
	w.metricsMu.Unlock()

	if err != nil {
		w.log.Warn("poll failed", logger.Error(err))
	}
}

// Metrics returns poll counters.
func (w *Worker) Metrics() WorkerMetrics {
	w.metricsMu.RLock()
	defer w.metricsMu.RUnlock()
	return WorkerMetrics{Polls: w.polls, Failed: w.failed}
}

// IsRunning returns whether the worker is currently running
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
