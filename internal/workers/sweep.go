package workers

import (
	"context"
	"sync"
	"time"

	"github.com/therappio/clinsync/internal/logger"
	"github.com/therappio/clinsync/internal/service"
)

// sweepWorker periodically runs the rollout queue sweep that promotes
// pending migrations into execution.
type sweepWorker struct {
	rollout  service.RolloutService
	interval time.Duration
	logger   *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweepWorker creates a sweep worker. The worker is idle until Run is
// called. If interval is zero or negative it defaults to 15 seconds.
func NewSweepWorker(rollout service.RolloutService, interval time.Duration, log *logger.Logger) Worker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &sweepWorker{
		rollout:  rollout,
		interval: interval,
		logger:   log,
	}
}

// Run launches the background goroutine that sweeps the queue every
// interval. The goroutine exits when Stop is called.
func (w *sweepWorker) Run() {
	w.Stop()

	w.mu.Lock()
	ctx, cancel := context.WithCancel(w.logger.WithContext(context.Background()))
	w.cancel = cancel
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		t := time.NewTicker(w.interval)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				claimed, err := w.rollout.Sweep(ctx)
				if err != nil {
					w.logger.Err(err).
						Str("func", "sweepWorker.Run").
						Msg("rollout sweep failed")
					continue
				}
				if claimed > 0 {
					w.logger.Info().
						Str("func", "sweepWorker.Run").
						Int("claimed", claimed).
						Msg("rollout sweep ran migrations")
				}
			}
		}
	}()
}

// Stop cancels the background goroutine's context and blocks until it has
// fully exited. Safe to call when the worker is not running.
func (w *sweepWorker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
}
