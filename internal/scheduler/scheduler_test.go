package scheduler

import (
	"context"
	"testing"
	"time"

	"forex-engine/internal/eligibility"
	"forex-engine/pkg/store"
)

type fakeBalanceReader struct {
	balance float64
}

func (f *fakeBalanceReader) Balance(ctx context.Context, token string) (float64, error) {
	return f.balance, nil
}

func seedSchedulerUser(t *testing.T, s *store.Store, email, startDate, stopDate string) {
	t.Helper()
	ctx := context.Background()
	if _, err := s.DB.ExecContext(ctx, `
		INSERT INTO userdetails (email, token, strategy, trading, trading_today, balance, balance_today)
		VALUES (?, 'tok', 'Malaysian', 1, 0, 500, 500)
	`, email); err != nil {
		t.Fatalf("seed userdetails: %v", err)
	}
	if _, err := s.DB.ExecContext(ctx, `INSERT INTO risk_table (email, per_trade, per_day) VALUES (?, 1, 100)`, email); err != nil {
		t.Fatalf("seed risk_table: %v", err)
	}
	if _, err := s.DB.ExecContext(ctx, `
		INSERT INTO start_stop_table (email, start_date, stop_date, loss_per_day, overall_loss, win_per_day, overall_win)
		VALUES (?, ?, ?, 100, 100, 100, 100)
	`, email, startDate, stopDate); err != nil {
		t.Fatalf("seed start_stop_table: %v", err)
	}
}

func openSchedulerStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDailyResetDisablesStoppingUsersAndEnablesStartingUsers(t *testing.T) {
	s := openSchedulerStore(t)
	ctx := context.Background()
	seedSchedulerUser(t, s, "stopping@example.com", "2020-01-01", "2026-01-01")
	seedSchedulerUser(t, s, "starting@example.com", "2026-01-01", "2999-01-01")

	fb := &fakeBalanceReader{balance: 500}
	sched := New(s, fb, eligibility.New(s), time.UTC, time.Hour, time.Hour)
	midnight := time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC)
	sched.Clock = func() time.Time { return midnight }

	sched.maybeApplyDailyReset(ctx)

	users, err := s.AllUsers(ctx)
	if err != nil {
		t.Fatalf("all users: %v", err)
	}
	byEmail := make(map[string]store.User)
	for _, u := range users {
		byEmail[u.Email] = u
	}

	if u := byEmail["stopping@example.com"]; u.Trading || u.TradingToday {
		t.Fatalf("expected stopping user disabled, got trading=%v trading_today=%v", u.Trading, u.TradingToday)
	}
	if u := byEmail["starting@example.com"]; !u.Trading || !u.TradingToday {
		t.Fatalf("expected starting user enabled, got trading=%v trading_today=%v", u.Trading, u.TradingToday)
	}
}

func TestDailyResetIsIdempotentWithinSameDate(t *testing.T) {
	s := openSchedulerStore(t)
	ctx := context.Background()
	seedSchedulerUser(t, s, "u@example.com", "2020-01-01", "2999-01-01")
	// Soft-disable trading_today as if an earlier cap breach fired.
	if err := s.SetTradingFlags(ctx, "u@example.com", true, false); err != nil {
		t.Fatalf("set flags: %v", err)
	}

	fb := &fakeBalanceReader{balance: 500}
	sched := New(s, fb, eligibility.New(s), time.UTC, time.Hour, time.Hour)
	midnight := time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC)
	sched.Clock = func() time.Time { return midnight }

	sched.maybeApplyDailyReset(ctx)
	users, _ := s.AllUsers(ctx)
	if !users[0].TradingToday {
		t.Fatalf("expected trading_today resumed after first reset pass")
	}

	// Simulate a cap breach landing between the two ticks within the same
	// calendar date; a second reset call within the date must be a no-op.
	if err := s.SetTradingFlags(ctx, "u@example.com", true, false); err != nil {
		t.Fatalf("set flags: %v", err)
	}
	sched.maybeApplyDailyReset(ctx)
	users, _ = s.AllUsers(ctx)
	if users[0].TradingToday {
		t.Fatalf("second reset within the same date should have been a no-op, but trading_today was resumed again")
	}
}

func TestSnapshotBalancesUpdatesBalanceToday(t *testing.T) {
	s := openSchedulerStore(t)
	ctx := context.Background()
	seedSchedulerUser(t, s, "u@example.com", "2020-01-01", "2999-01-01")
	if err := s.SetTradingFlags(ctx, "u@example.com", true, true); err != nil {
		t.Fatalf("set flags: %v", err)
	}

	fb := &fakeBalanceReader{balance: 777}
	sched := New(s, fb, eligibility.New(s), time.UTC, time.Hour, time.Hour)
	sched.Clock = func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) }

	sched.snapshotBalances(ctx)

	users, err := s.AllUsers(ctx)
	if err != nil {
		t.Fatalf("all users: %v", err)
	}
	if users[0].BalanceToday != 777 {
		t.Fatalf("balance_today = %v, want 777", users[0].BalanceToday)
	}
}
