package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/saeedzarbi/Ai-agent-worker/domain/agent"
	"github.com/saeedzarbi/Ai-agent-worker/domain/callback"
	"github.com/saeedzarbi/Ai-agent-worker/domain/jobs"
	"github.com/saeedzarbi/Ai-agent-worker/domain/notify"
	"github.com/saeedzarbi/Ai-agent-worker/pkg/apperror"
)

type storedJob struct {
	generation string
	agent      string
	status     jobs.Status
	output     json.RawMessage
	source     *string
}

type fakeStore struct {
	mu   sync.Mutex
	jobs map[string]*storedJob
	seq  int
	err  error
}

func newFakeStore(ids ...string) *fakeStore {
	s := &fakeStore{jobs: make(map[string]*storedJob)}
	for _, id := range ids {
		s.resubmit(id)
	}
	return s
}

func (s *fakeStore) lookup(id, generation string) (*storedJob, bool) {
	j, ok := s.jobs[id]
	if !ok || j.generation != generation {
		return nil, false
	}
	return j, true
}

func (s *fakeStore) MarkProcessing(_ context.Context, id, generation string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	j, ok := s.lookup(id, generation)
	if !ok {
		return false, nil
	}
	j.status = jobs.StatusProcessing
	return true, nil
}

func (s *fakeStore) SaveOutcome(_ context.Context, id, generation string, status jobs.Status, out json.RawMessage, source *string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	j, ok := s.lookup(id, generation)
	if !ok || j.status != jobs.StatusProcessing {
		return false, nil
	}
	j.status = status
	j.output = out
	if source != nil {
		j.source = source
	}
	return true, nil
}

// resubmit replaces the row with a fresh queued generation and returns it.
func (s *fakeStore) resubmit(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	gen := fmt.Sprintf("gen-%d", s.seq)
	s.jobs[id] = &storedJob{generation: gen, status: jobs.StatusQueued, output: jobs.PlaceholderOutput}
	return gen
}

// generation returns the current generation of id, or "" when there is no row.
func (s *fakeStore) generation(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		return j.generation
	}
	return ""
}

// Replace, FailQueued and Get let the submission service share the store.
func (s *fakeStore) Replace(_ context.Context, job *jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.MessageID] = &storedJob{
		generation: job.Generation,
		agent:      job.Agent,
		status:     job.Status,
		output:     job.OutputData,
		source:     job.Source,
	}
	return nil
}

func (s *fakeStore) FailQueued(_ context.Context, id, generation string, out json.RawMessage) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.lookup(id, generation)
	if !ok || j.status != jobs.StatusQueued {
		return false, nil
	}
	j.status = jobs.StatusFailed
	j.output = out
	return true, nil
}

func (s *fakeStore) Get(_ context.Context, id string) (*jobs.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, apperror.NewNotFound("job", id)
	}
	return &jobs.Job{
		MessageID:  id,
		Generation: j.generation,
		Agent:      j.agent,
		Status:     j.status,
		OutputData: j.output,
		Source:     j.source,
	}, nil
}

func (s *fakeStore) get(id string) storedJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

type extractFunc func(ctx context.Context, provider, text string) (agent.Outcome, error)

func (f extractFunc) Extract(ctx context.Context, provider, text string) (agent.Outcome, error) {
	return f(ctx, provider, text)
}

// answering returns an extractor whose model always answers raw.
func answering(raw string) extractFunc {
	return func(_ context.Context, _, text string) (agent.Outcome, error) {
		return agent.Interpret(raw, text), nil
	}
}

type sentNotification struct {
	sev notify.Severity
	msg string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *fakeNotifier) Notify(_ context.Context, sev notify.Severity, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{sev: sev, msg: msg})
}

func (n *fakeNotifier) severities() []notify.Severity {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.Severity, len(n.sent))
	for i, s := range n.sent {
		out[i] = s.sev
	}
	return out
}

type fakeDispatcher struct {
	mu       sync.Mutex
	payloads []callback.Payload
	result   callback.Result
}

func (d *fakeDispatcher) Dispatch(_ context.Context, p callback.Payload) callback.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.payloads = append(d.payloads, p)
	if d.result.Kind == "" {
		return callback.Result{Kind: callback.KindNotConfigured}
	}
	return d.result
}
