package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmailRequired guards every user-scoped query the way the teacher's
	// UserQueries guarded on user_id for multi-tenant isolation.
	ErrEmailRequired = errors.New("store: email is required")
	ErrNotFound      = errors.New("store: record not found")
)

// ----------------------------------------
// Candle queries (C3 writer, C4/C11 readers)
// ----------------------------------------

// UpsertCandle writes a one-minute candle, overwriting any existing row for
// the same ts (idempotent catch-up per spec §4.3 step 3).
func (s *Store) UpsertCandle(ctx context.Context, table string, c Candle) error {
	if !candleTableNamePattern.MatchString(table) {
		return fmt.Errorf("store: invalid candle table name %q", table)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (ts, open, high, low, close)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(ts) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low, close = excluded.close
	`, table)
	_, err := s.DB.ExecContext(ctx, query, c.TS.Unix(), c.Open, c.High, c.Low, c.Close)
	return err
}

// ReadCandles returns minute candles for table with ts >= since, ordered by ts.
func (s *Store) ReadCandles(ctx context.Context, table string, since time.Time) ([]Candle, error) {
	if !candleTableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("store: invalid candle table name %q", table)
	}
	query := fmt.Sprintf(`SELECT ts, open, high, low, close FROM %s WHERE ts >= ? ORDER BY ts ASC`, table)
	rows, err := s.DB.QueryContext(ctx, query, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("store: read candles: %w", err)
	}
	defer rows.Close()

	var out []Candle
	for rows.Next() {
		var c Candle
		var ts int64
		if err := rows.Scan(&ts, &c.Open, &c.High, &c.Low, &c.Close); err != nil {
			return nil, err
		}
		c.TS = time.Unix(ts, 0).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// ----------------------------------------
// Trade queries (C8 writer/inserter, C9 single updater per contract_id)
// ----------------------------------------

// InsertTrade creates a trades row in the active state.
func (s *Store) InsertTrade(ctx context.Context, t Trade) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO trades (
			contract_id, email, token, symbol, timestamp, trade_status,
			amount, multiplier, contract_type, currency, take_profit, stop_loss, buy_price
		) VALUES (?, ?, ?, ?, ?, 'active', ?, ?, ?, ?, ?, ?, ?)
	`, t.ContractID, t.Email, t.Token, t.Symbol, t.Timestamp, t.Amount, t.Multiplier,
		t.ContractType, t.Currency, t.TakeProfit, t.StopLoss, t.BuyPrice)
	return err
}

// SettleTrade marks a trade complete; keyed solely by contract_id, as spec
// §4.2 requires. Idempotent: calling it twice after the row is already
// complete leaves it unchanged because the WHERE clause excludes non-active
// rows.
func (s *Store) SettleTrade(ctx context.Context, contractID string, buyPrice, sellPrice, profitLoss float64, sellTime time.Time) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE trades
		SET trade_status = 'complete', buy_price = ?, sell_price = ?, profit_loss = ?, sell_time = ?
		WHERE contract_id = ? AND trade_status = 'active'
	`, buyPrice, sellPrice, profitLoss, sellTime, contractID)
	if err != nil {
		return err
	}
	_, err = res.RowsAffected()
	return err
}

// UpdateTradeBuyPrice refreshes the cached buy_price for a still-active
// contract, per spec §4.9 step 3.
func (s *Store) UpdateTradeBuyPrice(ctx context.Context, contractID string, buyPrice float64) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE trades SET buy_price = ? WHERE contract_id = ? AND trade_status = 'active'
	`, buyPrice, contractID)
	return err
}

// ActiveTrades returns every trade still in the active state, used by
// TradeMonitor on boot to rebuild its watcher set (spec §4.9 startup).
func (s *Store) ActiveTrades(ctx context.Context) ([]Trade, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT contract_id, email, token, symbol, timestamp, trade_status,
		       amount, multiplier, contract_type, currency,
		       COALESCE(take_profit, 0), COALESCE(stop_loss, 0), COALESCE(buy_price, 0)
		FROM trades WHERE trade_status = 'active'
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.ContractID, &t.Email, &t.Token, &t.Symbol, &t.Timestamp, &t.TradeStatus,
			&t.Amount, &t.Multiplier, &t.ContractType, &t.Currency, &t.TakeProfit, &t.StopLoss, &t.BuyPrice); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TradesInWindow returns completed trades for email between [from, to]. It is
// EligibilityEvaluator's only source of realized P/L; the broker's profit
// table is not consulted.
func (s *Store) TradesInWindow(ctx context.Context, email string, from, to time.Time) ([]Trade, error) {
	if email == "" {
		return nil, ErrEmailRequired
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT contract_id, email, token, symbol, timestamp, trade_status,
		       amount, multiplier, contract_type, currency,
		       COALESCE(take_profit, 0), COALESCE(stop_loss, 0),
		       COALESCE(buy_price, 0), COALESCE(sell_price, 0), sell_time, COALESCE(profit_loss, 0)
		FROM trades
		WHERE email = ? AND trade_status = 'complete' AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`, email, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		var t Trade
		var sellTime sql.NullTime
		if err := rows.Scan(&t.ContractID, &t.Email, &t.Token, &t.Symbol, &t.Timestamp, &t.TradeStatus,
			&t.Amount, &t.Multiplier, &t.ContractType, &t.Currency, &t.TakeProfit, &t.StopLoss,
			&t.BuyPrice, &t.SellPrice, &sellTime, &t.ProfitLoss); err != nil {
			return nil, err
		}
		if sellTime.Valid {
			t.SellTime = sellTime.Time
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ----------------------------------------
// Signal queries (C5 -> C11 persistence, for audit)
// ----------------------------------------

// InsertSignal persists a strategy signal for audit.
func (s *Store) InsertSignal(ctx context.Context, sig Signal) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO trading_signals (pair, kind, entry, sl, tp, strategy)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sig.Pair, sig.Kind, sig.Entry, sig.SL, sig.TP, sig.Strategy)
	return err
}

// ----------------------------------------
// User / Risk / Window queries (C7, C10)
// ----------------------------------------

// UsersTrading returns every user with trading=true, the population the
// Scheduler's AutoTradingMonitor evaluates every interval.
func (s *Store) UsersTrading(ctx context.Context) ([]User, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT email, token, strategy, trading, trading_today, balance, balance_today, created_at, COALESCE(started_at, created_at)
		FROM userdetails WHERE trading = 1
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

// AllUsers returns every configured user.
func (s *Store) AllUsers(ctx context.Context) ([]User, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT email, token, strategy, trading, trading_today, balance, balance_today, created_at, COALESCE(started_at, created_at)
		FROM userdetails
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func scanUsers(rows *sql.Rows) ([]User, error) {
	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Email, &u.Token, &u.Strategy, &u.Trading, &u.TradingToday,
			&u.Balance, &u.BalanceToday, &u.CreatedAt, &u.StartedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// SymbolsForUser returns the instruments a user subscribes to.
func (s *Store) SymbolsForUser(ctx context.Context, email string) ([]string, error) {
	if email == "" {
		return nil, ErrEmailRequired
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT symbol FROM user_symbols WHERE email = ?`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// RiskFor returns a user's risk percentages, defaulting PerTrade to 1 when absent.
func (s *Store) RiskFor(ctx context.Context, email string) (Risk, error) {
	if email == "" {
		return Risk{}, ErrEmailRequired
	}
	var r Risk
	err := s.DB.QueryRowContext(ctx, `
		SELECT email, COALESCE(per_trade, 1), per_day FROM risk_table WHERE email = ?
	`, email).Scan(&r.Email, &r.PerTrade, &r.PerDay)
	if err == sql.ErrNoRows {
		return Risk{}, ErrNotFound
	}
	return r, err
}

// WindowFor returns a user's eligibility window and caps.
func (s *Store) WindowFor(ctx context.Context, email string) (Window, error) {
	if email == "" {
		return Window{}, ErrEmailRequired
	}
	var w Window
	var start, stop string
	err := s.DB.QueryRowContext(ctx, `
		SELECT email, start_date, stop_date, loss_per_day, overall_loss, win_per_day, overall_win
		FROM start_stop_table WHERE email = ?
	`, email).Scan(&w.Email, &start, &stop, &w.LossPerDay, &w.OverallLoss, &w.WinPerDay, &w.OverallWin)
	if err == sql.ErrNoRows {
		return Window{}, ErrNotFound
	}
	if err != nil {
		return Window{}, err
	}
	w.StartDate, err = time.Parse("2006-01-02", start)
	if err != nil {
		return Window{}, fmt.Errorf("store: parse start_date: %w", err)
	}
	w.StopDate, err = time.Parse("2006-01-02", stop)
	if err != nil {
		return Window{}, fmt.Errorf("store: parse stop_date: %w", err)
	}
	return w, nil
}

// SetTradingFlags updates the trading / trading_today soft-enable flags.
// Called by EligibilityEvaluator and Scheduler; last-write-wins on these
// columns per spec §5's shared-resource policy.
func (s *Store) SetTradingFlags(ctx context.Context, email string, trading, tradingToday bool) error {
	if email == "" {
		return ErrEmailRequired
	}
	_, err := s.DB.ExecContext(ctx, `
		UPDATE userdetails SET trading = ?, trading_today = ? WHERE email = ?
	`, trading, tradingToday, email)
	return err
}

// ResumeAllTradingToday clears transient soft-disables for every user whose
// master trading flag is still on, per spec §4.10 daily reset step.
func (s *Store) ResumeAllTradingToday(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE userdetails SET trading_today = 1 WHERE trading = 1`)
	return err
}

// DisableUsersStoppingToday sets trading=false for users whose stop_date is today.
func (s *Store) DisableUsersStoppingToday(ctx context.Context, today string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE userdetails SET trading = 0, trading_today = 0
		WHERE email IN (SELECT email FROM start_stop_table WHERE stop_date = ?)
	`, today)
	return err
}

// EnableUsersStartingToday sets trading=true for users whose start_date is today.
func (s *Store) EnableUsersStartingToday(ctx context.Context, today string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE userdetails SET trading = 1, trading_today = 1
		WHERE email IN (SELECT email FROM start_stop_table WHERE start_date = ?)
	`, today)
	return err
}

// ----------------------------------------
// Balance queries (C10 Scheduler)
// ----------------------------------------

// UpdateBalanceToday sets the start-of-day balance snapshot field.
func (s *Store) UpdateBalanceToday(ctx context.Context, email string, balance float64) error {
	if email == "" {
		return ErrEmailRequired
	}
	_, err := s.DB.ExecContext(ctx, `UPDATE userdetails SET balance_today = ? WHERE email = ?`, balance, email)
	return err
}

// ResetLifecycleBalance sets both balance and balance_today, used the one day
// a user's start_date matches today (their "lifecycle start" per spec §9).
func (s *Store) ResetLifecycleBalance(ctx context.Context, email string, balance float64) error {
	if email == "" {
		return ErrEmailRequired
	}
	_, err := s.DB.ExecContext(ctx, `
		UPDATE userdetails SET balance = ?, balance_today = ? WHERE email = ?
	`, balance, balance, email)
	return err
}

// InsertBalanceSnapshot appends one balance history row.
func (s *Store) InsertBalanceSnapshot(ctx context.Context, snap BalanceSnapshot) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO balances (email, timestamp, balance) VALUES (?, ?, ?)
	`, snap.Email, snap.Timestamp, snap.Balance)
	return err
}
