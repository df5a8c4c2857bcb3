// Package consumer drives queued jobs through processing to a terminal status.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/saeedzarbi/Ai-agent-worker/domain/agent"
	"github.com/saeedzarbi/Ai-agent-worker/domain/callback"
	"github.com/saeedzarbi/Ai-agent-worker/domain/jobs"
	"github.com/saeedzarbi/Ai-agent-worker/domain/notify"
	"github.com/saeedzarbi/Ai-agent-worker/internal/queue"
	"github.com/saeedzarbi/Ai-agent-worker/pkg/logger"
	"github.com/saeedzarbi/Ai-agent-worker/pkg/tracing"
)

// JobStore is the subset of the job repository the consumer writes through.
type JobStore interface {
	MarkProcessing(ctx context.Context, messageID, generation string) (bool, error)
	SaveOutcome(ctx context.Context, messageID, generation string, status jobs.Status, output json.RawMessage, source *string) (bool, error)
}

// Accounting adjusts the advisory counters around each job.
type Accounting interface {
	Begin(ctx context.Context) error
	Release(ctx context.Context) error
}

// Dispatcher forwards final outcomes downstream.
type Dispatcher interface {
	Dispatch(ctx context.Context, p callback.Payload) callback.Result
}

// Options tune a Consumer.
type Options struct {
	// Parallelism bounds concurrent jobs within one batch.
	Parallelism int
	// BatchSize is the most deliveries claimed per Poll.
	BatchSize int
	// MaxAttempts mirrors the queue setting so notifications can say when a
	// job is being given up on. Zero means unlimited.
	MaxAttempts int
}

// Consumer processes deliveries. It is safe for concurrent use.
type Consumer struct {
	queue     queue.Queue
	store     JobStore
	extractor agent.Extractor
	counters  Accounting
	notifier  notify.Notifier
	callback  Dispatcher
	opts      Options
	log       *slog.Logger
}

func New(q queue.Queue, store JobStore, extractor agent.Extractor, acct Accounting, n notify.Notifier, cb Dispatcher, opts Options, log *slog.Logger) *Consumer {
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	return &Consumer{
		queue:     q,
		store:     store,
		extractor: extractor,
		counters:  acct,
		notifier:  n,
		callback:  cb,
		opts:      opts,
		log:       log.With(logger.Scope("consumer")),
	}
}

// Poll claims one batch and processes it.
func (c *Consumer) Poll(ctx context.Context) error {
	deliveries, err := c.queue.Receive(ctx, c.opts.BatchSize)
	if err != nil {
		return fmt.Errorf("receive: %w", err)
	}
	if len(deliveries) == 0 {
		return nil
	}
	c.log.Debug("processing batch", slog.Int("size", len(deliveries)))
	return c.ProcessBatch(ctx, deliveries)
}

// ProcessBatch handles every delivery with bounded parallelism. Jobs are
// independent; a failing job never stops the others. The returned error
// joins queue acknowledgement failures.
func (c *Consumer) ProcessBatch(ctx context.Context, deliveries []queue.Delivery) error {
	errs := make([]error, len(deliveries))

	var g errgroup.Group
	g.SetLimit(c.opts.Parallelism)
	for i, d := range deliveries {
		g.Go(func() error {
			errs[i] = c.Process(ctx, d)
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// Process runs one delivery through the job lifecycle and acknowledges it,
// or hands it back to the queue when something unexpected failed.
func (c *Consumer) Process(ctx context.Context, d queue.Delivery) error {
	msg := d.Message
	log := c.log.With(
		slog.String("message_id", msg.MessageID),
		slog.String("agent", msg.Agent),
		slog.Int("attempt", d.Attempts),
	)

	ctx, span := tracing.Start(ctx, "consumer.process",
		attribute.String("job.message_id", msg.MessageID),
		attribute.String("job.agent", msg.Agent),
		attribute.Int("job.attempt", d.Attempts),
	)
	defer span.End()

	start := time.Now()
	defer func() { JobDuration.Observe(time.Since(start).Seconds()) }()

	if d.Attempts > 1 {
		QueueRedeliveries.Inc()
		log.Info("redelivered job")
	}

	if err := c.counters.Begin(ctx); err != nil {
		log.Warn("failed to increment active_processing", logger.Error(err))
	}
	defer func() {
		if err := c.counters.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("failed to release counters", logger.Error(err))
		}
	}()

	found, err := c.store.MarkProcessing(ctx, msg.MessageID, msg.Generation)
	if err != nil {
		tracing.RecordError(span, err)
		return c.fail(ctx, log, d, fmt.Errorf("mark processing: %w", err))
	}
	if !found {
		log.Warn("job row missing or resubmitted since publish; dropping message")
		JobsProcessed.WithLabelValues("dropped").Inc()
		return c.ack(ctx, log, d)
	}

	out, err := c.extractor.Extract(ctx, msg.Agent, msg.Text)
	switch {
	case errors.Is(err, agent.ErrUnknownProvider):
		AgentRequests.WithLabelValues(msg.Agent, "unknown_provider").Inc()
		out = agent.Outcome{Status: agent.StatusFailed, Message: err.Error()}
	case err != nil:
		AgentRequests.WithLabelValues(msg.Agent, "error").Inc()
		tracing.RecordError(span, err)
		return c.fail(ctx, log, d, err)
	default:
		AgentRequests.WithLabelValues(msg.Agent, string(out.Status)).Inc()
	}

	status := statusFor(out.Status)
	span.SetAttributes(attribute.String("job.status", string(status)))

	output, err := json.Marshal(out.OutputData())
	if err != nil {
		return c.fail(ctx, log, d, fmt.Errorf("encode output: %w", err))
	}

	applied, err := c.store.SaveOutcome(ctx, msg.MessageID, msg.Generation, status, output, msg.Source)
	if err != nil {
		tracing.RecordError(span, err)
		return c.fail(ctx, log, d, fmt.Errorf("save outcome: %w", err))
	}
	if !applied {
		log.Warn("job was resubmitted while processing; outcome discarded",
			slog.String("status", string(status)))
		JobsProcessed.WithLabelValues("superseded").Inc()
		return c.ack(ctx, log, d)
	}

	log.Info("job finished", slog.String("status", string(status)))
	c.notifyOutcome(ctx, msg, out)
	c.dispatch(ctx, log, msg, status, output)

	JobsProcessed.WithLabelValues(string(status)).Inc()
	return c.ack(ctx, log, d)
}

// fail records an unexpected failure and hands the delivery back for
// redelivery instead of acknowledging it.
func (c *Consumer) fail(ctx context.Context, log *slog.Logger, d queue.Delivery, cause error) error {
	msg := d.Message
	log.Error("job attempt failed", logger.Error(cause))

	if _, err := c.store.SaveOutcome(ctx, msg.MessageID, msg.Generation, jobs.StatusFailed, jobs.MessageOutput(cause.Error()), msg.Source); err != nil {
		log.Error("failed to record job failure", logger.Error(err))
	}

	next := "will retry"
	if c.opts.MaxAttempts > 0 && d.Attempts >= c.opts.MaxAttempts {
		next = "giving up"
	}
	c.notifier.Notify(ctx, notify.SeverityError,
		fmt.Sprintf("Job %s failed on attempt %d (%s): %v", msg.MessageID, d.Attempts, next, cause))

	JobsProcessed.WithLabelValues(statusRetry).Inc()
	if err := c.queue.Retry(ctx, d, cause.Error()); err != nil {
		if errors.Is(err, queue.ErrUnknownReceipt) {
			log.Warn("claim expired before retry; message will be redelivered")
			return nil
		}
		return fmt.Errorf("retry %s: %w", msg.MessageID, err)
	}
	return nil
}

func (c *Consumer) ack(ctx context.Context, log *slog.Logger, d queue.Delivery) error {
	if err := c.queue.Ack(ctx, d); err != nil {
		if errors.Is(err, queue.ErrUnknownReceipt) {
			log.Warn("claim expired before ack; message will be redelivered")
			return nil
		}
		return fmt.Errorf("ack %s: %w", d.Message.MessageID, err)
	}
	return nil
}

func (c *Consumer) notifyOutcome(ctx context.Context, msg queue.Message, out agent.Outcome) {
	switch {
	case out.Status == agent.StatusSuccess:
		c.notifier.Notify(ctx, notify.SeveritySuccess,
			fmt.Sprintf("Job %s extracted %d record(s) via %s", msg.MessageID, len(out.Records), msg.Agent))
	case out.Status == agent.StatusReject:
		c.notifier.Notify(ctx, notify.SeverityInfo,
			fmt.Sprintf("Job %s rejected: %s", msg.MessageID, out.Message))
	case out.ParseErr != nil:
		c.notifier.Notify(ctx, notify.SeverityError,
			fmt.Sprintf("Job %s: %s", msg.MessageID, out.Message))
	default:
		c.notifier.Notify(ctx, notify.SeverityWarning,
			fmt.Sprintf("Job %s failed: %s", msg.MessageID, out.Message))
	}
}

func (c *Consumer) dispatch(ctx context.Context, log *slog.Logger, msg queue.Message, status jobs.Status, output json.RawMessage) {
	res := c.callback.Dispatch(ctx, callback.Payload{
		MessageID:  msg.MessageID,
		Text:       msg.Text,
		Agent:      msg.Agent,
		Status:     string(status),
		OutputData: output,
		Source:     msg.Source,
	})
	CallbackResults.WithLabelValues(string(res.Kind)).Inc()

	if res.OK() {
		return
	}
	log.Warn("callback not delivered",
		slog.String("kind", string(res.Kind)),
		slog.Int("status_code", res.StatusCode),
		slog.String("detail", res.Message))
	c.notifier.Notify(ctx, notify.SeverityWarning,
		fmt.Sprintf("Callback for job %s not delivered: %s", msg.MessageID, res))
}

func statusFor(s agent.Status) jobs.Status {
	switch s {
	case agent.StatusSuccess:
		return jobs.StatusSuccess
	case agent.StatusReject:
		return jobs.StatusReject
	default:
		return jobs.StatusFailed
	}
}
