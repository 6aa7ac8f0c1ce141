package shutdown

import (
	"context"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dmehra2102/stock-reservation-engine/pkg/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSecondSignalForcesExit(t *testing.T) {
	var forced atomic.Bool
	ctx, cancel := notify(context.Background(), logging.Discard(), func() { forced.Store(true) }, syscall.SIGUSR1)
	defer cancel()

	p, err := os.FindProcess(os.Getpid())
	require.NoError(t, err)

	require.NoError(t, p.Signal(syscall.SIGUSR1))
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled by signal")
	}
	assert.False(t, forced.Load())

	require.NoError(t, p.Signal(syscall.SIGUSR1))
	assert.Eventually(t, forced.Load, 2*time.Second, 10*time.Millisecond)
}

func TestCancelStopsWatcher(t *testing.T) {
	ctx, cancel := notify(context.Background(), logging.Discard(), func() { t.Error("unexpected force") }, syscall.SIGUSR2)
	cancel()
	<-ctx.Done()
}
