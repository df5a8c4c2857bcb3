package counters

import (
	"context"
	"errors"
)

// Info is the queue-info report.
type Info struct {
	QueueSize                int64 `json:"queue_size"`
	ActiveProcessing         int64 `json:"active_processing"`
	MaxConcurrency           int64 `json:"max_concurrency"`
	AvailableProcessingSlots int64 `json:"available_processing_slots"`
}

// Accountant applies the submission and processing adjustments to a Store.
// Callers log its errors; they never fail a job.
type Accountant struct {
	store          Store
	maxConcurrency int64
}

func NewAccountant(store Store, maxConcurrency int64) *Accountant {
	return &Accountant{store: store, maxConcurrency: maxConcurrency}
}

// Enqueued records one accepted submission.
func (a *Accountant) Enqueued(ctx context.Context) error {
	return a.add(ctx, QueueSize, 1)
}

// Begin records one job entering processing.
func (a *Accountant) Begin(ctx context.Context) error {
	return a.add(ctx, ActiveProcessing, 1)
}

// Release records one job leaving processing, whatever its outcome. Both
// counters are decremented and clamped at zero.
func (a *Accountant) Release(ctx context.Context) error {
	return errors.Join(
		a.add(ctx, QueueSize, -1),
		a.add(ctx, ActiveProcessing, -1),
	)
}

// Info reads both counters and derives the available slots.
func (a *Accountant) Info(ctx context.Context) (Info, error) {
	queued, err := a.store.Get(ctx, QueueSize)
	if err != nil {
		return Info{}, err
	}
	active, err := a.store.Get(ctx, ActiveProcessing)
	if err != nil {
		return Info{}, err
	}

	info := Info{
		QueueSize:                queued,
		ActiveProcessing:         active,
		MaxConcurrency:           a.maxConcurrency,
		AvailableProcessingSlots: max(0, a.maxConcurrency-active),
	}
	observe(info)
	return info, nil
}

func (a *Accountant) add(ctx context.Context, name string, delta int64) error {
	cur, err := a.store.Get(ctx, name)
	if err != nil {
		return err
	}
	next := max(0, cur+delta)
	if err := a.store.Set(ctx, name, next); err != nil {
		return err
	}
	gaugeFor(name).Set(float64(next))
	return nil
}
