package consumer

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saeedzarbi/Ai-agent-worker/domain/counters"
	"github.com/saeedzarbi/Ai-agent-worker/domain/jobs"
	"github.com/saeedzarbi/Ai-agent-worker/domain/notify"
	"github.com/saeedzarbi/Ai-agent-worker/internal/queue"
)

var _ jobs.Store = (*fakeStore)(nil)

func TestPipeline_SubmitThenReject(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, answering("No"))
	svc := jobs.NewService(h.store, h.queue, counters.NewAccountant(h.counters, 3), 15, slog.Default())

	resp, err := svc.Submit(ctx, jobs.SubmitRequest{MessageID: "ad-42", Text: adText, Agent: "gemini"})
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusQueued, resp.Status)

	queued, err := svc.Get(ctx, "ad-42")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusQueued, queued.Status)
	assert.JSONEq(t, `{"message":"Job queued for processing"}`, string(queued.OutputData))

	info, err := svc.QueueInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.QueueSize)

	require.NoError(t, h.consumer.Poll(ctx))

	done, err := svc.Get(ctx, "ad-42")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusReject, done.Status)
	assert.JSONEq(t, `{"message":"No real estate advertisement found"}`, string(done.OutputData))

	assert.Equal(t, []notify.Severity{notify.SeverityInfo}, h.notifier.severities())
	require.Len(t, h.callback.payloads, 1)
	assert.Equal(t, "ad-42", h.callback.payloads[0].MessageID)
	assert.Equal(t, "reject", h.callback.payloads[0].Status)

	info, err = svc.QueueInfo(ctx)
	require.NoError(t, err)
	assert.Zero(t, info.QueueSize)
	assert.Zero(t, info.ActiveProcessing)
	assert.Equal(t, int64(3), info.AvailableProcessingSlots)
	assert.Equal(t, queue.Stats{}, h.stats(t))
}
