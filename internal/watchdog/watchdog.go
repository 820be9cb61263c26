// Package watchdog periodically verifies that the tracked runtime
// handle is still usable. Handles can die outside any controller
// operation (the runtime crashes, the host reclaims it), and without a
// sweep the dead reference would only be discovered on the next user
// action.
package watchdog

import (
	"context"
	"log/slog"
	"time"
)

type Watchdog struct {
	ctrl     Controller
	interval time.Duration
	logger   *slog.Logger
}

func New(ctrl Controller, interval time.Duration, logger *slog.Logger) *Watchdog {
	return &Watchdog{
		ctrl:     ctrl,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps on a fixed interval until ctx is canceled.
func (w *Watchdog) Run(ctx context.Context) {
	w.logger.Info("watchdog started", "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watchdog stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Watchdog) sweep(ctx context.Context) {
	reaped, err := w.ctrl.ReapDeadHandle(ctx)
	if err != nil {
		w.logger.Warn("watchdog: liveness probe failed", "error", err)
		return
	}
	if reaped {
		w.logger.Info("watchdog: reaped dead runtime handle")
	}
}
