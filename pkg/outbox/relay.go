package outbox

import (
	"context"
	"log/slog"
	"time"
)

// Store is implemented by every backing store that persists outbox rows in the same
// transaction as the state change they describe.
type Store interface {
	// LockBatch claims up to batchSize pending events (or in-progress events whose lease
	// expired) for relayID until lease elapses.
	LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error)
	MarkSent(ctx context.Context, ids []int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
}

type Relay struct {
	log       *slog.Logger
	store     Store
	dispatch  *Dispatcher
	relayID   string
	batchSize int
	interval  time.Duration
	lease     time.Duration
}

type RelayOption func(*Relay)

func WithInterval(d time.Duration) RelayOption { return func(r *Relay) { r.interval = d } }

func WithBatchSize(n int) RelayOption { return func(r *Relay) { r.batchSize = n } }

func NewRelay(log *slog.Logger, store Store, dispatch *Dispatcher, relayID string, opts ...RelayOption) *Relay {
	r := &Relay{
		log:       log,
		store:     store,
		dispatch:  dispatch,
		relayID:   relayID,
		batchSize: 100,
		interval:  500 * time.Millisecond,
		lease:     5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("relay stopping", "relay_id", r.relayID)
			return nil
		case <-t.C:
			if _, err := r.Flush(ctx); err != nil {
				r.log.Error("relay flush error", "relay_id", r.relayID, "err", err)
			}
		}
	}
}

// Flush relays one batch and reports how many events were sent.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	events, err := r.store.LockBatch(ctx, r.relayID, r.batchSize, r.lease)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	sent, failed := r.dispatch.Dispatch(ctx, events)
	for id, derr := range failed {
		if err := r.store.MarkFailed(ctx, id, derr.Error()); err != nil {
			r.log.Error("relay mark failed error", "event_id", id, "err", err)
		}
	}
	if len(sent) > 0 {
		if err := r.store.MarkSent(ctx, sent); err != nil {
			return 0, err
		}
	}
	return len(sent), nil
}
