// Package scheduler runs the engine's timed jobs (C10): daily reset,
// balance snapshots and the eligibility auto-monitor, grounded on
// configurations.py's auto_config() and normalized to spec §4.10, following
// the teacher's ticker-goroutine shape (gateway.Manager.Start/Stop). Start and
// Stop cover only these three timer jobs; the candle ingestor, orchestrator
// and trade monitor are started and stopped by the caller (main.go), not by
// Scheduler.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"forex-engine/internal/eligibility"
	"forex-engine/pkg/store"
)

// BalanceReader reads a user's current broker balance.
type BalanceReader interface {
	Balance(ctx context.Context, token string) (float64, error)
}

// Scheduler owns the daily-reset, balance-snapshot and eligibility-monitor
// timers. Location is the zone the daily reset and date checks run in;
// main.go passes the configured TIMEZONE (Africa/Harare by default), and New
// falls back to UTC when given nil.
type Scheduler struct {
	Store       *store.Store
	Broker      BalanceReader
	Eligibility *eligibility.Evaluator
	Location    *time.Location

	BalanceInterval  time.Duration // default 2h
	MonitorInterval  time.Duration // default 5m
	ResetCheckPeriod time.Duration // how often the midnight check is polled, default 1m

	Clock func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu        sync.Mutex
	lastReset string // date string of the last applied daily reset, dedupes within ±2m clock skew tolerance
}

// New builds a Scheduler; loc nil falls back to UTC.
func New(s *store.Store, broker BalanceReader, elig *eligibility.Evaluator, loc *time.Location, balanceInterval, monitorInterval time.Duration) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if balanceInterval <= 0 {
		balanceInterval = 2 * time.Hour
	}
	if monitorInterval <= 0 {
		monitorInterval = 5 * time.Minute
	}
	return &Scheduler{
		Store:            s,
		Broker:           broker,
		Eligibility:      elig,
		Location:         loc,
		BalanceInterval:  balanceInterval,
		MonitorInterval:  monitorInterval,
		ResetCheckPeriod: time.Minute,
		Clock:            time.Now,
		stopCh:           make(chan struct{}),
	}
}

func (s *Scheduler) now() time.Time {
	if s.Clock != nil {
		return s.Clock().In(s.Location)
	}
	return time.Now().In(s.Location)
}

// Start launches the three timer goroutines. Clock skew up to ±2 minutes is
// tolerated by the daily-reset job's own dedupe on the local date string, so
// a slightly early or late tick never double-applies the reset.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(3)
	go s.runDailyReset(ctx)
	go s.runBalanceSnapshot(ctx)
	go s.runEligibilityMonitor(ctx)
}

// Stop signals every timer goroutine to exit and waits for them to drain.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) runDailyReset(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.ResetCheckPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.maybeApplyDailyReset(ctx)
		}
	}
}

// maybeApplyDailyReset applies the midnight-local reset once per calendar
// date: disable stop_date==today users, resume trading_today for
// trading=true users, enable start_date==today users (spec §4.10).
func (s *Scheduler) maybeApplyDailyReset(ctx context.Context) {
	now := s.now()
	if now.Hour() != 0 {
		return
	}
	today := now.Format("2006-01-02")

	s.mu.Lock()
	if s.lastReset == today {
		s.mu.Unlock()
		return
	}
	s.lastReset = today
	s.mu.Unlock()

	if err := s.Store.DisableUsersStoppingToday(ctx, today); err != nil {
		log.Printf("[scheduler] disable stop_date users: %v", err)
	}
	if err := s.Store.ResumeAllTradingToday(ctx); err != nil {
		log.Printf("[scheduler] resume trading_today: %v", err)
	}
	if err := s.Store.EnableUsersStartingToday(ctx, today); err != nil {
		log.Printf("[scheduler] enable start_date users: %v", err)
	}
	log.Printf("[scheduler] daily reset applied for %s", today)
}

func (s *Scheduler) runBalanceSnapshot(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.BalanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.snapshotBalances(ctx)
		}
	}
}

// snapshotBalances re-reads every trading user's broker balance, updates
// balance_today, appends a BalanceSnapshot, and for users whose start_date
// is today also resets the lifecycle balance (spec §4.10).
func (s *Scheduler) snapshotBalances(ctx context.Context) {
	users, err := s.Store.UsersTrading(ctx)
	if err != nil {
		log.Printf("[scheduler] load users for balance snapshot: %v", err)
		return
	}
	today := s.now().Format("2006-01-02")
	now := s.now()

	for _, u := range users {
		balance, err := s.Broker.Balance(ctx, u.Token)
		if err != nil {
			log.Printf("[scheduler] %s: balance fetch failed: %v", u.Email, err)
			continue
		}
		if err := s.Store.UpdateBalanceToday(ctx, u.Email, balance); err != nil {
			log.Printf("[scheduler] %s: update balance_today: %v", u.Email, err)
		}
		if err := s.Store.InsertBalanceSnapshot(ctx, store.BalanceSnapshot{Email: u.Email, Timestamp: now, Balance: balance}); err != nil {
			log.Printf("[scheduler] %s: insert balance snapshot: %v", u.Email, err)
		}

		window, err := s.Store.WindowFor(ctx, u.Email)
		if err != nil {
			continue
		}
		if window.StartDate.Format("2006-01-02") == today {
			if err := s.Store.ResetLifecycleBalance(ctx, u.Email, balance); err != nil {
				log.Printf("[scheduler] %s: reset lifecycle balance: %v", u.Email, err)
			}
		}
	}
}

func (s *Scheduler) runEligibilityMonitor(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.MonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Eligibility.AutoTradingMonitor(ctx, s.now()); err != nil {
				log.Printf("[scheduler] auto trading monitor: %v", err)
			}
		}
	}
}
