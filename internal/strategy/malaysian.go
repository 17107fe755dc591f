package strategy

import (
	"time"

	"forex-engine/pkg/store"
)

// Malaysian implements spec §4.5.1: a 4h reversal pattern confirmed by a
// 15-minute candle inside a fixed-width safe zone, then tightened against
// the following 15-minute window.
//
// The safe zone here is the fixed ±2×PIP_VALUE band around prev.open. An
// earlier variant of this pattern (two unwindowed reversal-polarity scans,
// no explicit safe zone) exists as prior art only and is intentionally not
// reimplemented — this fixed-width band is the one version the spec
// selects.
func MalaysianStrategy(h []store.AggregatedCandle, m15 []store.AggregatedCandle, symbol string, p Params) []store.Signal {
	var out []store.Signal
	sizer := newSigner()
	sizer.PipValue = p.PipValue

	for i := 1; i < len(h); i++ {
		prev, curr := h[i-1], h[i]

		kind, ok := classifyMalaysian(prev, curr)
		if !ok {
			continue
		}

		safeTop := prev.Open + 2*p.PipValue
		safeBottom := prev.Open - 2*p.PipValue

		if !confirmMalaysian(m15, curr.TS, kind, safeTop, safeBottom) {
			continue
		}

		entry := curr.Close
		sl, err := sizer.StopLoss(entry, kindOf(string(kind)), p.DefaultBufferPips)
		if err != nil {
			continue
		}
		tp, err := sizer.TakeProfit(entry, sl, kindOf(string(kind)), p.LowRiskRatio)
		if err != nil {
			continue
		}

		sl, tp = tightenMalaysian(m15, curr.TS, kind, entry, sl, tp, p.HighRiskRatio)

		if rewardToRisk(entry, sl, tp) < 2 {
			continue
		}

		out = append(out, buildSignal(symbol, kindOf(string(kind)), entry, sl, tp, Malaysian))
	}
	return out
}

type malaysianKind string

const (
	malaysianBuy  malaysianKind = "Buy"
	malaysianSell malaysianKind = "Sell"
)

// classifyMalaysian implements spec §4.5.1 step 1.
func classifyMalaysian(prev, curr store.AggregatedCandle) (malaysianKind, bool) {
	if prev.Low < curr.Low && prev.Close < curr.Close {
		return malaysianBuy, true
	}
	if prev.High > curr.High && prev.Close > curr.Close {
		return malaysianSell, true
	}
	return "", false
}

// confirmMalaysian implements spec §4.5.1 step 3: among the 15m candles
// whose ts is at or after curr.ts-4h (no upper bound), require at least one whose
// low (Buy) or high (Sell) sits inside the safe zone and whose open/close
// polarity matches the signal direction.
func confirmMalaysian(m15 []store.AggregatedCandle, currTS time.Time, kind malaysianKind, safeTop, safeBottom float64) bool {
	since := currTS.Add(-4 * time.Hour)
	for _, c := range m15 {
		if c.TS.Before(since) {
			continue
		}
		switch kind {
		case malaysianBuy:
			if c.Low >= safeBottom && c.Low <= safeTop && c.Close > c.Open {
				return true
			}
		case malaysianSell:
			if c.High >= safeBottom && c.High <= safeTop && c.Close < c.Open {
				return true
			}
		}
	}
	return false
}

// tightenMalaysian implements spec §4.5.1 step 5: widen SL/TP against the
// 15m candles from curr.ts up to the next 4h boundary, then enforce the
// minimum reward/risk by extending TP if the tightened window undercut it.
func tightenMalaysian(m15 []store.AggregatedCandle, currTS time.Time, kind malaysianKind, entry, sl, tp, minRR float64) (float64, float64) {
	until := currTS.Add(4 * time.Hour)
	for _, c := range m15 {
		if c.TS.Before(currTS) || !c.TS.Before(until) {
			continue
		}
		switch kind {
		case malaysianBuy:
			if c.Low < sl {
				sl = c.Low
			}
			if c.High > tp {
				tp = c.High
			}
		case malaysianSell:
			if c.High > sl {
				sl = c.High
			}
			if c.Low < tp {
				tp = c.Low
			}
		}
	}

	distance := abs(entry - sl)
	minTP := entry + minRR*distance
	maxTP := entry - minRR*distance
	switch kind {
	case malaysianBuy:
		if tp < minTP {
			tp = minTP
		}
	case malaysianSell:
		if tp > maxTP {
			tp = maxTP
		}
	}
	return round4(sl), round4(tp)
}

func round4(v float64) float64 {
	return float64(int64(v*10000+sign(v)*0.5)) / 10000
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
