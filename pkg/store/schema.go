package store

import (
	"fmt"
	"regexp"
)

const fixedSchema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS symbols (
	symbol TEXT PRIMARY KEY,
	candle_table TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS userdetails (
	email TEXT PRIMARY KEY,
	token TEXT NOT NULL,
	strategy TEXT NOT NULL DEFAULT '',
	trading INTEGER NOT NULL DEFAULT 0,
	trading_today INTEGER NOT NULL DEFAULT 0,
	balance REAL NOT NULL DEFAULT 0,
	balance_today REAL NOT NULL DEFAULT 0,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	started_at DATETIME
);

CREATE TABLE IF NOT EXISTS user_symbols (
	email TEXT NOT NULL,
	token TEXT NOT NULL,
	symbol TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (email, symbol),
	FOREIGN KEY (email) REFERENCES userdetails(email)
);

CREATE TABLE IF NOT EXISTS risk_table (
	email TEXT PRIMARY KEY,
	per_trade REAL NOT NULL DEFAULT 1,
	per_day REAL NOT NULL,
	FOREIGN KEY (email) REFERENCES userdetails(email)
);

CREATE TABLE IF NOT EXISTS start_stop_table (
	email TEXT PRIMARY KEY,
	start_date TEXT NOT NULL,
	stop_date TEXT NOT NULL,
	loss_per_day REAL NOT NULL DEFAULT 0,
	overall_loss REAL NOT NULL DEFAULT 0,
	win_per_day REAL NOT NULL DEFAULT 0,
	overall_win REAL NOT NULL DEFAULT 0,
	FOREIGN KEY (email) REFERENCES userdetails(email)
);

CREATE TABLE IF NOT EXISTS trades (
	contract_id TEXT PRIMARY KEY,
	email TEXT NOT NULL,
	token TEXT NOT NULL,
	symbol TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	trade_status TEXT NOT NULL DEFAULT 'active',
	amount REAL NOT NULL,
	multiplier REAL NOT NULL,
	contract_type TEXT NOT NULL,
	currency TEXT NOT NULL DEFAULT 'USD',
	take_profit REAL,
	stop_loss REAL,
	buy_price REAL,
	sell_price REAL,
	sell_time DATETIME,
	profit_loss REAL
);

CREATE TABLE IF NOT EXISTS trading_signals (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	pair TEXT NOT NULL,
	kind TEXT NOT NULL,
	entry REAL NOT NULL,
	sl REAL NOT NULL,
	tp REAL NOT NULL,
	strategy TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS balances (
	email TEXT NOT NULL,
	timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	balance REAL NOT NULL,
	PRIMARY KEY (email, timestamp)
);
`

// candleTableNamePattern whitelists candle table identifiers so they can be
// safely interpolated into DDL/DML; candle tables are never chosen from user
// input, only from the SYMBOLS_TO_TABLES configuration map.
var candleTableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// candleTableSchema returns the CREATE TABLE statement for a symbol's
// one-minute candle table. Primary key is (ts); symbol is implicit in the
// table name, matching the teacher-style whitelisted-table-per-symbol layout.
func candleTableSchema(table string) (string, error) {
	if !candleTableNamePattern.MatchString(table) {
		return "", fmt.Errorf("store: invalid candle table name %q", table)
	}
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	ts INTEGER PRIMARY KEY,
	open REAL NOT NULL,
	high REAL NOT NULL,
	low REAL NOT NULL,
	close REAL NOT NULL
)`, table), nil
}

// applyMigrations bootstraps the fixed schema; keep lightweight for fast
// startup. Candle tables are created on demand via EnsureCandleTable, since
// the set of symbols is only known once configuration is loaded.
func (s *Store) applyMigrations() error {
	if s == nil || s.DB == nil {
		return fmt.Errorf("store: not initialized")
	}
	if _, err := s.DB.Exec(fixedSchema); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}
	return nil
}

// EnsureCandleTable creates a symbol's candle table if it does not already
// exist and records the symbol->table binding. Idempotent: safe to call on
// every ingestor startup, matching spec's "every writer ensures its table
// exists on first use" contract.
func (s *Store) EnsureCandleTable(symbol, table string) error {
	ddl, err := candleTableSchema(table)
	if err != nil {
		return err
	}
	if _, err := s.DB.Exec(ddl); err != nil {
		return fmt.Errorf("store: create candle table %s: %w", table, err)
	}
	_, err = s.DB.Exec(`
		INSERT INTO symbols (symbol, candle_table) VALUES (?, ?)
		ON CONFLICT(symbol) DO UPDATE SET candle_table = excluded.candle_table
	`, symbol, table)
	if err != nil {
		return fmt.Errorf("store: register symbol %s: %w", symbol, err)
	}
	return nil
}
