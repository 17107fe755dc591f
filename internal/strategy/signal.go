// Package strategy holds the pure pattern-matching functions that turn
// aggregated candles into trading signals: Malaysian (§4.5.1) and
// MovingAverage (§4.5.2). Both are deterministic — same input always
// produces the same output — so neither touches the clock, the store, or
// the broker.
package strategy

import (
	"forex-engine/internal/risk"
	"forex-engine/pkg/store"
)

// Names of the strategies a user may subscribe to, matching the
// STRATEGIES configuration values and the userdetails.strategy column.
const (
	Malaysian     = "Malaysian"
	MovingAverage = "MovingAverage"
)

// Params bundles the constants both strategies read from configuration.
type Params struct {
	PipValue          float64
	DefaultBufferPips float64
	LowRiskRatio      float64
	HighRiskRatio     float64
	RewardToRiskRatio float64
	ATRPeriod         int
	ADXThreshold      float64
	MAPeriods         [4]int // {short, mid, long, long_term}, normally {7,14,89,200}
}

func kindOf(s string) risk.Kind {
	if s == "Buy" {
		return risk.Buy
	}
	return risk.Sell
}

func newSigner() *risk.Sizer {
	// A signer with no Broker: only the pure StopLoss/TakeProfit math is
	// used inside strategies, never RiskAmount.
	return &risk.Sizer{}
}

func buildSignal(pair string, kind risk.Kind, entry, sl, tp float64, strategyName string) store.Signal {
	k := "Buy"
	if kind == risk.Sell {
		k = "Sell"
	}
	return store.Signal{
		Pair:     pair,
		Kind:     k,
		Entry:    entry,
		SL:       sl,
		TP:       tp,
		Strategy: strategyName,
	}
}

// rewardToRisk returns the absolute reward/risk ratio of a signal, or 0 if
// entry == sl (which callers must already have excluded).
func rewardToRisk(entry, sl, tp float64) float64 {
	risk := abs(entry - sl)
	if risk == 0 {
		return 0
	}
	return abs(tp-entry) / risk
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
