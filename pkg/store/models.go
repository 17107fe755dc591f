package store

import "time"

// Candle is a one-minute OHLC bar. ts is the minute boundary (UTC, seconds
// and microseconds zeroed). Invariant: low <= min(open,close) <= max(open,close) <= high.
type Candle struct {
	Symbol string
	TS     time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
}

// AggregatedCandle is a derived roll-up over a larger timeframe; it is never
// persisted, only computed on demand by the Aggregator.
type AggregatedCandle struct {
	Symbol    string
	Timeframe time.Duration
	TS        time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
}

// User is the engine's view of a configured trading account. Trading implies
// the master enable; TradingToday is the soft enable flipped by eligibility.
type User struct {
	Email        string
	Token        string
	Strategy     string // one of {Malaysian, MovingAverage}, or both comma-separated
	Trading      bool
	TradingToday bool
	Balance      float64
	BalanceToday float64
	CreatedAt    time.Time
	StartedAt    time.Time
}

// UserSymbol is one instrument a user wishes to trade.
type UserSymbol struct {
	Email     string
	Token     string
	Symbol    string
	CreatedAt time.Time
}

// Risk holds the per-user trade-sizing percentages.
type Risk struct {
	Email    string
	PerTrade float64 // defaults to 1 if absent
	PerDay   float64
}

// Window holds the per-user eligibility caps and lifecycle dates.
type Window struct {
	Email       string
	StartDate   time.Time
	StopDate    time.Time
	LossPerDay  float64
	OverallLoss float64
	WinPerDay   float64
	OverallWin  float64
}

// Trade is a dispatched contract, tracked from placement to settlement.
type Trade struct {
	ContractID   string
	Email        string
	Token        string
	Symbol       string
	Timestamp    time.Time
	TradeStatus  string // active | complete
	Amount       float64
	Multiplier   float64
	ContractType string // MULTUP | MULTDOWN
	Currency     string
	TakeProfit   float64
	StopLoss     float64
	BuyPrice     float64
	SellPrice    float64
	SellTime     time.Time
	ProfitLoss   float64
}

// Signal is a strategy's pattern-match output, persisted for audit.
type Signal struct {
	Pair     string
	Kind     string // Buy | Sell
	Entry    float64
	SL       float64
	TP       float64
	Strategy string
}

// BalanceSnapshot is one append-only balance reading.
type BalanceSnapshot struct {
	Email     string
	Timestamp time.Time
	Balance   float64
}
