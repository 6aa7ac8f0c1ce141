package keylock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestAcquire_ExclusivePerKey(t *testing.T) {
	l := New[int64](time.Second)

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Acquire(context.Background(), 7)
			require.NoError(t, err)
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, l.Len())
}

func TestAcquire_OverlappingSetsInOppositeOrderDoNotDeadlock(t *testing.T) {
	l := New[int64](2 * time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unlock, err := l.Acquire(context.Background(), 1, 2)
			require.NoError(t, err)
			unlock()
		}()
		go func() {
			defer wg.Done()
			unlock, err := l.Acquire(context.Background(), 2, 1)
			require.NoError(t, err)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, l.Len())
}

func TestAcquire_TimeoutReleasesPartialSet(t *testing.T) {
	l := New[int64](20 * time.Millisecond)

	unlockB, err := l.Acquire(context.Background(), 2)
	require.NoError(t, err)

	_, err = l.Acquire(context.Background(), 1, 2)
	require.ErrorIs(t, err, ErrTimeout)

	// key 1 must not stay held by the failed attempt
	unlockA, err := l.Acquire(context.Background(), 1)
	require.NoError(t, err)
	unlockA()
	unlockB()

	assert.Equal(t, 0, l.Len())
}

func TestAcquire_CallerCancellationIsNotATimeout(t *testing.T) {
	l := New[string](time.Second)

	unlock, err := l.Acquire(context.Background(), "order-1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Acquire(ctx, "order-1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrTimeout))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAcquire_DuplicateKeysAndDoubleUnlock(t *testing.T) {
	l := New[int64](time.Second)

	unlock, err := l.Acquire(context.Background(), 3, 3, 3)
	require.NoError(t, err)
	unlock()
	unlock()

	unlock, err = l.Acquire(context.Background(), 3)
	require.NoError(t, err)
	unlock()
	assert.Equal(t, 0, l.Len())
}
