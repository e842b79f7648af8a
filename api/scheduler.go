/*
scheduler.go - Periodic batch pruning

PURPOSE:
  Exhausted batches that no sale references are dead weight in the FIFO
  walk. The scheduler runs PruneEmptyBatches on an interval so the lot
  lists stay short without anyone calling the prune endpoint by hand.

DESIGN:
  - One background goroutine with a ticker
  - Runs once immediately on Start
  - Pruning is idempotent, so an overlapping manual prune is harmless

USAGE:
  s := NewPruneScheduler(service, time.Hour, logger)
  s.Start()
  // ... later
  s.Stop()

SEE ALSO:
  - handlers.go: PruneBatches endpoint (manual prune)
  - trading/deletion.go: PruneEmptyBatches
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/sheet-ledger/trading"
)

type PruneScheduler struct {
	Service  *trading.Service
	Interval time.Duration
	Logger   *slog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewPruneScheduler creates a scheduler. A zero interval disables it.
func NewPruneScheduler(service *trading.Service, interval time.Duration, logger *slog.Logger) *PruneScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PruneScheduler{
		Service:  service,
		Interval: interval,
		Logger:   logger,
	}
}

// Start begins the scheduler. Calling it twice is a no-op.
func (ps *PruneScheduler) Start() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.Interval <= 0 {
		ps.Logger.Info("prune scheduler disabled")
		return
	}
	if ps.ticker != nil {
		return
	}

	ps.ticker = time.NewTicker(ps.Interval)
	ps.stop = make(chan struct{})
	ps.wg.Add(1)
	go ps.run()

	ps.Logger.Info("prune scheduler started", slog.Duration("interval", ps.Interval))
}

// Stop waits for an in-flight prune to finish.
func (ps *PruneScheduler) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.ticker == nil {
		return
	}
	ps.ticker.Stop()
	close(ps.stop)
	ps.wg.Wait()
	ps.ticker = nil
	ps.Logger.Info("prune scheduler stopped")
}

func (ps *PruneScheduler) run() {
	defer ps.wg.Done()

	ps.prune()
	for {
		select {
		case <-ps.ticker.C:
			ps.prune()
		case <-ps.stop:
			return
		}
	}
}

func (ps *PruneScheduler) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	result, err := ps.Service.PruneEmptyBatches(ctx)
	if err != nil {
		ps.Logger.Error("scheduled prune failed", slog.Any("error", err))
		return
	}
	if result.Removed > 0 {
		ps.Logger.Info("scheduled prune", slog.Int64("removed", result.Removed))
	}
}
