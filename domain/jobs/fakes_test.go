package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/saeedzarbi/Ai-agent-worker/internal/queue"
	"github.com/saeedzarbi/Ai-agent-worker/pkg/apperror"
)

type memStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	// replaced counts Replace calls per id
	replaced map[string]int
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[string]*Job), replaced: make(map[string]int)}
}

func (m *memStore) Replace(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.jobs[job.MessageID] = &cp
	m.replaced[job.MessageID]++
	return nil
}

func (m *memStore) MarkProcessing(_ context.Context, id, generation string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Generation != generation {
		return false, nil
	}
	j.Status = StatusProcessing
	return true, nil
}

func (m *memStore) transition(id, generation string, from, to Status, out json.RawMessage, source *string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Generation != generation || j.Status != from {
		return false
	}
	j.Status = to
	j.OutputData = out
	if source != nil {
		j.Source = source
	}
	return true
}

func (m *memStore) SaveOutcome(_ context.Context, id, generation string, status Status, out json.RawMessage, source *string) (bool, error) {
	return m.transition(id, generation, StatusProcessing, status, out, source), nil
}

func (m *memStore) FailQueued(_ context.Context, id, generation string, out json.RawMessage) (bool, error) {
	return m.transition(id, generation, StatusQueued, StatusFailed, out, nil), nil
}

func (m *memStore) Get(_ context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, apperror.NewNotFound("job", id)
	}
	cp := *j
	return &cp, nil
}

// brokenQueue fails every publish.
type brokenQueue struct {
	queue.Queue
}

func (brokenQueue) Publish(context.Context, queue.Message) error {
	return errors.New("broker unreachable")
}

func (brokenQueue) Stats(context.Context) (queue.Stats, error) {
	return queue.Stats{}, errors.New("broker unreachable")
}
