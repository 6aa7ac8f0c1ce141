// Package keylock provides per-key critical sections with ordered, bounded acquisition.
//
// Keys passed to a single Acquire call are locked in ascending order, so two callers that
// need overlapping key sets can never deadlock on each other. A caller that cannot obtain
// every key within the configured wait gets ErrTimeout and holds nothing.
package keylock

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

var ErrTimeout = errors.New("keylock: wait for critical section exceeded")

type entry struct {
	token chan struct{}
	refs  int
}

type Locker[K cmp.Ordered] struct {
	mu      sync.Mutex
	entries map[K]*entry
	wait    time.Duration
}

// New returns a Locker that waits at most wait for a full key set. A zero wait means the
// caller's context is the only bound.
func New[K cmp.Ordered](wait time.Duration) *Locker[K] {
	return &Locker[K]{
		entries: make(map[K]*entry),
		wait:    wait,
	}
}

// Acquire locks keys (deduplicated, ascending) and returns the function that unlocks them.
// The returned function is safe to call more than once.
func (l *Locker[K]) Acquire(ctx context.Context, keys ...K) (func(), error) {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	waitCtx := ctx
	if l.wait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	held := make([]K, 0, len(sorted))
	for _, k := range sorted {
		e := l.ref(k)
		select {
		case e.token <- struct{}{}:
			held = append(held, k)
		case <-waitCtx.Done():
			l.unref(k)
			l.release(held)
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: key %v", ErrTimeout, k)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(held) })
	}, nil
}

// Len reports how many keys currently have holders or waiters.
func (l *Locker[K]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Locker[K]) ref(k K) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[k]
	if !ok {
		e = &entry{token: make(chan struct{}, 1)}
		l.entries[k] = e
	}
	e.refs++
	return e
}

func (l *Locker[K]) unref(k K) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entries[k]
	e.refs--
	if e.refs == 0 {
		delete(l.entries, k)
	}
}

func (l *Locker[K]) release(held []K) {
	for i := len(held) - 1; i >= 0; i-- {
		k := held[i]
		l.mu.Lock()
		e := l.entries[k]
		l.mu.Unlock()
		<-e.token
		l.unref(k)
	}
}
