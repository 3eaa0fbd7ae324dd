package services

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sweeper periodically deletes expired alerts, the same operation the cleanup
// endpoint performs on demand.
type Sweeper struct {
	alerts   *AlertService
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSweeper(alerts *AlertService, interval time.Duration) *Sweeper {
	return &Sweeper{alerts: alerts, interval: interval}
}

// Start launches the sweep loop. An interval of 0 disables sweeping.
func (s *Sweeper) Start(ctx context.Context) {
	if s.interval <= 0 {
		slog.Info("alert sweeper disabled")
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	deleted, err := s.alerts.Cleanup(ctx)
	if err != nil {
		slog.Error("alert sweep failed", "error", err)
		return
	}
	if len(deleted) > 0 {
		slog.Info("swept expired alerts", "count", len(deleted))
	}
}

func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
}
