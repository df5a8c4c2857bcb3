package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/saeedzarbi/Ai-agent-worker/pkg/logger"
)

// Async sends each notification on its own goroutine with a detached,
// bounded context. A nil sender makes every call a no-op.
type Async struct {
	sender  Sender
	timeout time.Duration
	log     *slog.Logger

	wg sync.WaitGroup
}

func NewAsync(sender Sender, timeout time.Duration, log *slog.Logger) *Async {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Async{
		sender:  sender,
		timeout: timeout,
		log:     log.With(logger.Scope("notify")),
	}
}

// Notify returns immediately.
func (a *Async) Notify(ctx context.Context, sev Severity, message string) {
	if a.sender == nil {
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()

		if err := a.sender.Send(sendCtx, sev, message); err != nil {
			a.log.Warn("notification not delivered",
				slog.String("channel", a.sender.Name()),
				slog.String("severity", string(sev)),
				logger.Error(err))
		}
	}()
}

// Close waits for in-flight sends or until ctx is done.
func (a *Async) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		a.log.Warn("notifier shutdown timed out with sends in flight")
		return ctx.Err()
	}
}
