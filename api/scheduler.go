/*
scheduler.go - In-process daily update trigger

PURPOSE:
  Runs the batch sweep on a fixed interval so balances stay current
  without an external cron. Each tick sweeps as of "today"; the grant
  occurrence keys make repeat sweeps of the same date harmless.

DESIGN:
  - Background goroutine with a ticker
  - Runs once immediately on start, then on every tick
  - A failed run is logged and the ticker keeps going

USAGE:
  scheduler := NewScheduler(service, interval, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerDailyUpdate endpoint (manual runs)
  - engine/batch.go: The sweep itself
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tryers-jsshin/btq-hr-system-sub000/engine"
	"github.com/tryers-jsshin/btq-hr-system-sub000/ledger"
)

// Scheduler triggers the daily batch sweep on an interval.
type Scheduler struct {
	Service  *engine.Service
	Interval time.Duration
	Logger   *zap.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewScheduler creates a new scheduler. Interval defaults to 24h.
func NewScheduler(service *engine.Service, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		Service:  service,
		Interval: interval,
		Logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.wg.Add(1)
	go s.run()

	s.Logger.Info("scheduler started", zap.Duration("interval", s.Interval))
}

// Stop stops the scheduler and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.Logger.Info("scheduler stopped")
	}
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.runOnce()

	for {
		select {
		case <-s.ticker.C:
			s.runOnce()
		case <-s.stop:
			return
		}
	}
}

func (s *Scheduler) runOnce() {
	target := ledger.Today()
	summary, err := s.Service.RunDailyUpdate(context.Background(), target, nil)
	if err != nil {
		s.Logger.Error("scheduled daily update failed",
			zap.String("target_date", target.String()),
			zap.Error(err))
		return
	}

	s.Logger.Info("scheduled daily update finished",
		zap.String("target_date", target.String()),
		zap.Int("processed", summary.Processed),
		zap.String("granted", summary.Granted.String()),
		zap.String("expired", summary.Expired.String()),
		zap.Int("errors", len(summary.Errors)))
}
