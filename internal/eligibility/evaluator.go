// Package eligibility implements the per-user trading predicate (C7):
// per-day trade count, daily P/L caps, cumulative P/L caps, and the
// start/stop date window. Grounded on the original eligible_user/auto_config
// checks, normalized to spec §4.7's six-step order.
package eligibility

import (
	"context"
	"log"
	"time"

	"forex-engine/pkg/store"
)

// Evaluator mutates userdetails.trading / trading_today as it evaluates.
type Evaluator struct {
	Store *store.Store
}

func New(s *store.Store) *Evaluator {
	return &Evaluator{Store: s}
}

// Evaluate runs the six-step predicate from spec §4.7 for one user and
// returns whether they may trade right now. It always writes through to
// Store, even when returning false, so the engine doesn't need to
// re-evaluate every loop.
func (e *Evaluator) Evaluate(ctx context.Context, u store.User, now time.Time) (bool, error) {
	risk, err := e.Store.RiskFor(ctx, u.Email)
	if err != nil {
		return false, err
	}
	window, err := e.Store.WindowFor(ctx, u.Email)
	if err != nil {
		return false, err
	}

	today := now.Truncate(24 * time.Hour)
	todaysTrades, err := e.Store.TradesInWindow(ctx, u.Email, today, now)
	if err != nil {
		return false, err
	}
	cumulativeTrades, err := e.Store.TradesInWindow(ctx, u.Email, window.StartDate, now)
	if err != nil {
		return false, err
	}

	perTrade := risk.PerTrade
	if perTrade <= 0 {
		perTrade = 1
	}
	maxTradesPerDay := risk.PerDay / perTrade

	// Step 3: per-day trade count cap.
	if float64(len(todaysTrades)) >= maxTradesPerDay {
		if err := e.Store.SetTradingFlags(ctx, u.Email, true, false); err != nil {
			return false, err
		}
		log.Printf("[eligibility] %s hit daily trade cap (%d/%v), pausing for today", u.Email, len(todaysTrades), maxTradesPerDay)
		return false, nil
	}

	todayLoss, todayWin := realizedPL(todaysTrades)
	// Step 4: daily P/L caps.
	if -todayLoss >= u.BalanceToday*window.LossPerDay/100 || todayWin >= u.BalanceToday*window.WinPerDay/100 {
		if err := e.Store.SetTradingFlags(ctx, u.Email, true, false); err != nil {
			return false, err
		}
		log.Printf("[eligibility] %s hit daily P/L cap, pausing for today", u.Email)
		return false, nil
	}

	cumLoss, cumWin := realizedPL(cumulativeTrades)
	// Step 5: overall P/L caps — hard stop.
	if -cumLoss >= u.Balance*window.OverallLoss/100 || cumWin >= u.Balance*window.OverallWin/100 {
		if err := e.Store.SetTradingFlags(ctx, u.Email, false, false); err != nil {
			return false, err
		}
		log.Printf("[eligibility] %s hit overall P/L cap, stopping trading entirely", u.Email)
		return false, nil
	}

	return true, nil
}

// realizedPL splits a trade slice's profit_loss into (loss, win), where
// loss is the sum of negative outcomes (<= 0) and win the sum of positive
// ones.
func realizedPL(trades []store.Trade) (loss, win float64) {
	for _, t := range trades {
		if t.ProfitLoss < 0 {
			loss += t.ProfitLoss
		} else {
			win += t.ProfitLoss
		}
	}
	return loss, win
}

// AutoTradingMonitor re-runs Evaluate for every user with trading=true, on
// a fixed interval, so cap breaches are enforced even for users without a
// fresh signal (spec §4.7's independent monitor task).
func (e *Evaluator) AutoTradingMonitor(ctx context.Context, now time.Time) error {
	users, err := e.Store.UsersTrading(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		if _, err := e.Evaluate(ctx, u, now); err != nil {
			log.Printf("[eligibility] auto-monitor error for %s: %v", u.Email, err)
		}
	}
	return nil
}
