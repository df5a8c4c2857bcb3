package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	msg       Message
	attempts  int
	lastError string
	available time.Time
}

type memoryClaim struct {
	entry    memoryEntry
	deadline time.Time
}

// MemoryQueue is an in-process backend. Messages do not survive a restart.
type MemoryQueue struct {
	opts Options
	now  func() time.Time

	mu       sync.Mutex
	pending  []memoryEntry
	inflight map[string]memoryClaim
	dead     []memoryEntry
}

// NewMemoryQueue creates an empty in-process queue.
func NewMemoryQueue(opts Options) *MemoryQueue {
	return &MemoryQueue{
		opts:     opts.withDefaults(),
		now:      time.Now,
		inflight: make(map[string]memoryClaim),
	}
}

func (q *MemoryQueue) Publish(ctx context.Context, msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, memoryEntry{msg: msg, available: q.now()})
	return nil
}

func (q *MemoryQueue) Receive(ctx context.Context, max int) ([]Delivery, error) {
	if max <= 0 {
		return nil, nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	// Stable order: earliest available first, publish order within ties.
	sort.SliceStable(q.pending, func(i, j int) bool {
		return q.pending[i].available.Before(q.pending[j].available)
	})

	var out []Delivery
	remaining := q.pending[:0]
	for _, e := range q.pending {
		if len(out) >= max || e.available.After(now) {
			remaining = append(remaining, e)
			continue
		}
		e.attempts++
		receipt := uuid.NewString()
		q.inflight[receipt] = memoryClaim{entry: e, deadline: now.Add(q.opts.VisibilityTimeout)}
		out = append(out, Delivery{
			Message:    e.msg,
			Receipt:    receipt,
			Attempts:   e.attempts,
			ReceivedAt: now,
		})
	}
	q.pending = remaining
	return out, nil
}

func (q *MemoryQueue) Ack(ctx context.Context, d Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.inflight[d.Receipt]; !ok {
		return ErrUnknownReceipt
	}
	delete(q.inflight, d.Receipt)
	return nil
}

func (q *MemoryQueue) Retry(ctx context.Context, d Delivery, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	claim, ok := q.inflight[d.Receipt]
	if !ok {
		return ErrUnknownReceipt
	}
	delete(q.inflight, d.Receipt)

	e := claim.entry
	e.lastError = truncateError(reason)
	if q.opts.exhausted(e.attempts) {
		q.dead = append(q.dead, e)
		return nil
	}
	e.available = q.now().Add(q.opts.backoff(e.attempts))
	q.pending = append(q.pending, e)
	return nil
}

func (q *MemoryQueue) RequeueExpired(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	n := 0
	for receipt, claim := range q.inflight {
		if claim.deadline.After(now) {
			continue
		}
		delete(q.inflight, receipt)
		e := claim.entry
		e.available = now
		q.pending = append(q.pending, e)
		n++
	}
	return n, nil
}

func (q *MemoryQueue) Stats(ctx context.Context) (Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Pending:  int64(len(q.pending)),
		InFlight: int64(len(q.inflight)),
		Dead:     int64(len(q.dead)),
	}, nil
}
