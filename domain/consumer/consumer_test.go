package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/saeedzarbi/Ai-agent-worker/domain/agent"
	"github.com/saeedzarbi/Ai-agent-worker/domain/callback"
	"github.com/saeedzarbi/Ai-agent-worker/domain/counters"
	"github.com/saeedzarbi/Ai-agent-worker/domain/jobs"
	"github.com/saeedzarbi/Ai-agent-worker/domain/notify"
	"github.com/saeedzarbi/Ai-agent-worker/internal/queue"
)

const adText = "  فروش آپارتمان ۱۲۰ متری در تهران، ۳ خواب  "

type harness struct {
	consumer *Consumer
	queue    *queue.MemoryQueue
	store    *fakeStore
	counters *counters.MemoryStore
	notifier *fakeNotifier
	callback *fakeDispatcher
}

func newHarness(t *testing.T, ext agent.Extractor, ids ...string) *harness {
	t.Helper()
	h := &harness{
		queue:    queue.NewMemoryQueue(queue.Options{MaxAttempts: 3}),
		store:    newFakeStore(ids...),
		counters: counters.NewMemoryStore(),
		notifier: &fakeNotifier{},
		callback: &fakeDispatcher{},
	}
	acct := counters.NewAccountant(h.counters, 3)
	h.consumer = New(h.queue, h.store, ext, acct, h.notifier, h.callback, Options{Parallelism: 2, BatchSize: 10, MaxAttempts: 3}, slog.Default())
	return h
}

// enqueue publishes a message for the stored generation of id and counts it
// the way submission does.
func (h *harness) enqueue(t *testing.T, id, providerID string) {
	t.Helper()
	h.publish(t, queue.Message{MessageID: id, Generation: h.store.generation(id), Text: adText, Agent: providerID})
}

func (h *harness) publish(t *testing.T, msg queue.Message) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.queue.Publish(ctx, msg))
	n, _ := h.counters.Get(ctx, counters.QueueSize)
	require.NoError(t, h.counters.Set(ctx, counters.QueueSize, n+1))
}

func (h *harness) stats(t *testing.T) queue.Stats {
	t.Helper()
	s, err := h.queue.Stats(context.Background())
	require.NoError(t, err)
	return s
}

func (h *harness) assertCountersReleased(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	q, _ := h.counters.Get(ctx, counters.QueueSize)
	a, _ := h.counters.Get(ctx, counters.ActiveProcessing)
	assert.Zero(t, q, "queue_size")
	assert.Zero(t, a, "active_processing")
}

func outputMessage(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var out map[string]string
	require.NoError(t, json.Unmarshal(raw, &out))
	return out["message"]
}

func TestProcess_Reject(t *testing.T) {
	h := newHarness(t, answering("No."), "m1")
	h.enqueue(t, "m1", "gemini")

	require.NoError(t, h.consumer.Poll(context.Background()))

	job := h.store.get("m1")
	assert.Equal(t, jobs.StatusReject, job.status)
	assert.Equal(t, "No real estate advertisement found", outputMessage(t, job.output))

	assert.Equal(t, []notify.Severity{notify.SeverityInfo}, h.notifier.severities())
	require.Len(t, h.callback.payloads, 1)
	assert.Equal(t, "reject", h.callback.payloads[0].Status)

	assert.Equal(t, queue.Stats{}, h.stats(t))
	h.assertCountersReleased(t)
}

func TestProcess_Success(t *testing.T) {
	raw := "```json\n[{\"c\":\"تهران\",\"r\":3,\"zz\":\"ignored\"},{\"p\":5000000000}]\n```"
	h := newHarness(t, answering(raw), "m1")
	h.enqueue(t, "m1", "chatgpt")

	require.NoError(t, h.consumer.Poll(context.Background()))

	job := h.store.get("m1")
	require.Equal(t, jobs.StatusSuccess, job.status)

	var records []map[string]any
	require.NoError(t, json.Unmarshal(job.output, &records))
	require.Len(t, records, 2)
	assert.Equal(t, map[string]any{
		"city":        "تهران",
		"rooms":       float64(3),
		"description": "فروش آپارتمان ۱۲۰ متری در تهران، ۳ خواب",
	}, records[0])
	assert.Equal(t, map[string]any{
		"price":       float64(5000000000),
		"description": "فروش آپارتمان ۱۲۰ متری در تهران، ۳ خواب",
	}, records[1])

	assert.Equal(t, []notify.Severity{notify.SeveritySuccess}, h.notifier.severities())
	require.Len(t, h.callback.payloads, 1)
	assert.JSONEq(t, string(job.output), string(h.callback.payloads[0].OutputData))
	assert.Equal(t, queue.Stats{}, h.stats(t))
}

func TestProcess_ParseFailureIsTerminal(t *testing.T) {
	h := newHarness(t, answering("here are the fields: city=Tehran"), "m1")
	h.enqueue(t, "m1", "openrouter")

	require.NoError(t, h.consumer.Poll(context.Background()))

	job := h.store.get("m1")
	assert.Equal(t, jobs.StatusFailed, job.status)
	assert.Contains(t, outputMessage(t, job.output), "Failed to parse extraction response")
	assert.Equal(t, []notify.Severity{notify.SeverityError}, h.notifier.severities())

	// acknowledged, not retried
	assert.Equal(t, queue.Stats{}, h.stats(t))
}

func TestProcess_EmptyResponseIsTerminal(t *testing.T) {
	h := newHarness(t, answering("   "), "m1")
	h.enqueue(t, "m1", "gemini")

	require.NoError(t, h.consumer.Poll(context.Background()))

	job := h.store.get("m1")
	assert.Equal(t, jobs.StatusFailed, job.status)
	assert.Equal(t, "Empty response from extraction agent", outputMessage(t, job.output))
	assert.Equal(t, []notify.Severity{notify.SeverityWarning}, h.notifier.severities())
	assert.Equal(t, queue.Stats{}, h.stats(t))
}

func TestProcess_UnexpectedErrorIsRetried(t *testing.T) {
	ext := extractFunc(func(context.Context, string, string) (agent.Outcome, error) {
		return agent.Outcome{}, errors.New("gemini completion: connection reset by peer")
	})
	h := newHarness(t, ext, "m1")
	h.enqueue(t, "m1", "gemini")

	require.NoError(t, h.consumer.Poll(context.Background()))

	job := h.store.get("m1")
	assert.Equal(t, jobs.StatusFailed, job.status)
	assert.Equal(t, "gemini completion: connection reset by peer", outputMessage(t, job.output))
	assert.Equal(t, []notify.Severity{notify.SeverityError}, h.notifier.severities())
	assert.Empty(t, h.callback.payloads)

	// handed back, not acknowledged
	assert.Equal(t, queue.Stats{Pending: 1}, h.stats(t))
	h.assertCountersReleased(t)
}

func TestProcess_RedeliveryAfterFailureSucceeds(t *testing.T) {
	var calls atomic.Int32
	ext := extractFunc(func(_ context.Context, _, text string) (agent.Outcome, error) {
		if calls.Add(1) == 1 {
			return agent.Outcome{}, agent.ErrMissingCredential
		}
		return agent.Interpret("no", text), nil
	})
	h := newHarness(t, ext, "m1")
	h.enqueue(t, "m1", "gemini")

	require.NoError(t, h.consumer.Poll(context.Background()))
	assert.Equal(t, jobs.StatusFailed, h.store.get("m1").status)

	require.NoError(t, h.consumer.Poll(context.Background()))
	assert.Equal(t, jobs.StatusReject, h.store.get("m1").status)
	assert.Equal(t, queue.Stats{}, h.stats(t))
}

func TestProcess_DeadLettersAfterMaxAttempts(t *testing.T) {
	ext := extractFunc(func(context.Context, string, string) (agent.Outcome, error) {
		return agent.Outcome{}, errors.New("timeout")
	})
	h := newHarness(t, ext, "m1")
	h.enqueue(t, "m1", "gemini")

	for range 3 {
		require.NoError(t, h.consumer.Poll(context.Background()))
	}

	assert.Equal(t, queue.Stats{Dead: 1}, h.stats(t))
	last := h.notifier.sent[len(h.notifier.sent)-1]
	assert.Contains(t, last.msg, "giving up")
}

func TestProcess_UnknownProviderIsTerminal(t *testing.T) {
	ext := extractFunc(func(_ context.Context, p, _ string) (agent.Outcome, error) {
		return agent.Outcome{}, fmt.Errorf("%w: %q", agent.ErrUnknownProvider, p)
	})
	h := newHarness(t, ext, "m1")
	h.enqueue(t, "m1", "bard")

	require.NoError(t, h.consumer.Poll(context.Background()))

	job := h.store.get("m1")
	assert.Equal(t, jobs.StatusFailed, job.status)
	assert.Contains(t, outputMessage(t, job.output), "unknown extraction provider")
	assert.Equal(t, queue.Stats{}, h.stats(t))
	assert.Len(t, h.callback.payloads, 1)
}

func TestProcess_MissingJobIsDropped(t *testing.T) {
	var called bool
	ext := extractFunc(func(context.Context, string, string) (agent.Outcome, error) {
		called = true
		return agent.Outcome{}, nil
	})
	h := newHarness(t, ext)
	h.enqueue(t, "ghost", "gemini")

	require.NoError(t, h.consumer.Poll(context.Background()))

	assert.False(t, called)
	assert.Empty(t, h.notifier.sent)
	assert.Equal(t, queue.Stats{}, h.stats(t))
	h.assertCountersReleased(t)
}

func TestProcess_ResubmittedDuringProcessing(t *testing.T) {
	h := newHarness(t, nil, "m1")
	h.consumer.extractor = extractFunc(func(_ context.Context, _, text string) (agent.Outcome, error) {
		h.store.resubmit("m1")
		return agent.Interpret("no", text), nil
	})
	h.enqueue(t, "m1", "gemini")

	require.NoError(t, h.consumer.Poll(context.Background()))

	assert.Equal(t, jobs.StatusQueued, h.store.get("m1").status)
	assert.Empty(t, h.notifier.sent)
	assert.Empty(t, h.callback.payloads)
	assert.Equal(t, queue.Stats{}, h.stats(t))
}

func TestProcess_StaleRedeliveryAfterResubmitIsDropped(t *testing.T) {
	var calls atomic.Int32
	ext := extractFunc(func(_ context.Context, _, text string) (agent.Outcome, error) {
		if calls.Add(1) == 1 {
			return agent.Outcome{}, errors.New("gemini completion: connection reset by peer")
		}
		return agent.Interpret(`[{"c":"تهران"}]`, text), nil
	})
	h := newHarness(t, ext, "m1")
	h.queue = queue.NewMemoryQueue(queue.Options{MaxAttempts: 3, BaseRetryDelay: 50 * time.Millisecond})
	h.consumer.queue = h.queue
	ctx := context.Background()

	// first submission fails once and is backed off
	h.publish(t, queue.Message{MessageID: "m1", Generation: h.store.generation("m1"), Text: "old submission text", Agent: "gemini"})
	require.NoError(t, h.consumer.Poll(ctx))
	require.Equal(t, queue.Stats{Pending: 1}, h.stats(t))

	// resubmitted and finished before the old message comes back
	newGen := h.store.resubmit("m1")
	h.publish(t, queue.Message{MessageID: "m1", Generation: newGen, Text: "new submission text", Agent: "gemini"})
	require.NoError(t, h.consumer.Poll(ctx))

	job := h.store.get("m1")
	require.Equal(t, jobs.StatusSuccess, job.status)
	require.Contains(t, string(job.output), "new submission text")
	require.Len(t, h.callback.payloads, 1)

	time.Sleep(60 * time.Millisecond)
	require.NoError(t, h.consumer.Poll(ctx))

	job = h.store.get("m1")
	assert.Equal(t, newGen, job.generation)
	assert.Equal(t, jobs.StatusSuccess, job.status)
	assert.Contains(t, string(job.output), "new submission text")
	assert.NotContains(t, string(job.output), "old submission text")
	assert.Len(t, h.callback.payloads, 1)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, queue.Stats{}, h.stats(t))
	h.assertCountersReleased(t)
}

func TestProcess_StoreErrorIsRetried(t *testing.T) {
	h := newHarness(t, answering("no"), "m1")
	h.store.err = errors.New("database is starting up")
	h.enqueue(t, "m1", "gemini")

	require.NoError(t, h.consumer.Poll(context.Background()))

	assert.Equal(t, queue.Stats{Pending: 1}, h.stats(t))
	assert.Equal(t, []notify.Severity{notify.SeverityError}, h.notifier.severities())
}

func TestProcess_CallbackFailureWarnsButCompletes(t *testing.T) {
	h := newHarness(t, answering("no"), "m1")
	h.callback.result = callback.Result{Kind: callback.KindHTTPError, StatusCode: 500}
	h.enqueue(t, "m1", "gemini")

	require.NoError(t, h.consumer.Poll(context.Background()))

	assert.Equal(t, jobs.StatusReject, h.store.get("m1").status)
	assert.Equal(t, []notify.Severity{notify.SeverityInfo, notify.SeverityWarning}, h.notifier.severities())
	assert.Equal(t, queue.Stats{}, h.stats(t))
}

func TestProcess_SourcePassedThrough(t *testing.T) {
	h := newHarness(t, answering("no"), "m1")
	src := "telegram"
	h.publish(t, queue.Message{MessageID: "m1", Generation: h.store.generation("m1"), Text: adText, Agent: "gemini", Source: &src})

	require.NoError(t, h.consumer.Poll(context.Background()))

	job := h.store.get("m1")
	require.NotNil(t, job.source)
	assert.Equal(t, "telegram", *job.source)
	assert.Equal(t, "telegram", *h.callback.payloads[0].Source)
}

func TestProcessBatch_BoundedParallelism(t *testing.T) {
	var inFlight, peak atomic.Int32
	ext := extractFunc(func(_ context.Context, _, text string) (agent.Outcome, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return agent.Interpret("no", text), nil
	})

	ids := []string{"a", "b", "c", "d", "e"}
	h := newHarness(t, ext, ids...)
	for _, id := range ids {
		h.enqueue(t, id, "gemini")
	}

	require.NoError(t, h.consumer.Poll(context.Background()))

	assert.LessOrEqual(t, peak.Load(), int32(2))
	for _, id := range ids {
		assert.Equal(t, jobs.StatusReject, h.store.get(id).status)
	}
	h.assertCountersReleased(t)
}

func TestProcess_Span(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	h := newHarness(t, answering("no"), "m1")
	h.enqueue(t, "m1", "gemini")
	require.NoError(t, h.consumer.Poll(context.Background()))

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "consumer.process", ended[0].Name())
	assert.Contains(t, ended[0].Attributes(), attribute.String("job.message_id", "m1"))
	assert.Contains(t, ended[0].Attributes(), attribute.String("job.status", "reject"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, jobs.StatusSuccess, statusFor(agent.StatusSuccess))
	assert.Equal(t, jobs.StatusReject, statusFor(agent.StatusReject))
	assert.Equal(t, jobs.StatusFailed, statusFor(agent.StatusFailed))
}
