package shutdown

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// WithSignals cancels the returned context on the first SIGINT or SIGTERM. A second signal
// exits immediately, for when draining in-flight reservations hangs.
func WithSignals(ctx context.Context, log *slog.Logger) (context.Context, context.CancelFunc) {
	return notify(ctx, log, func() { os.Exit(1) }, syscall.SIGINT, syscall.SIGTERM)
}

func notify(ctx context.Context, log *slog.Logger, force func(), sigs ...os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, sigs...)

	go func() {
		defer signal.Stop(ch)
		select {
		case sig := <-ch:
			log.Info("shutdown requested", "signal", sig.String())
			cancel()
		case <-ctx.Done():
			return
		}
		if sig, ok := <-ch; ok {
			log.Warn("forced exit", "signal", sig.String())
			force()
		}
	}()

	return ctx, cancel
}
