package strategy

import (
	"forex-engine/internal/indicators"
	"forex-engine/pkg/store"
)

// MovingAverageStrategy implements spec §4.5.2: a 7/14/89/200 SMA crossover
// on 4h candles, confirmed by the same crossover on the latest two 30m
// bars, sized off ATR. Refuses to run with fewer than 200 candles of
// history.
func MovingAverageStrategy(h, m30 []store.AggregatedCandle, symbol string, p Params) []store.Signal {
	if len(h) < 200 {
		return nil
	}

	closes := closesOf(h)
	var out []store.Signal

	for i := 200; i < len(h); i++ {
		kindCurr, ok := maTrend(closes[:i+1], p.MAPeriods)
		if !ok {
			continue
		}
		kindPrev, ok := maTrend(closes[:i], p.MAPeriods)
		if !ok || kindPrev == kindCurr {
			continue
		}
		// kindPrev holding the opposite trend at i-1 and kindCurr holding at
		// i is exactly the same-step crossover spec §4.5.2 step 2 requires.

		if !confirmM30Crossover(m30, kindCurr, p.MAPeriods) {
			continue
		}

		bars := indicators.BarsFromAggregated(h[:i+1])
		atr := indicators.ATR(bars, p.ATRPeriod)
		if atr == 0 {
			continue
		}
		if p.ADXThreshold > 0 && indicators.ADX(bars, p.ATRPeriod) < p.ADXThreshold {
			continue
		}

		entry := h[i].Close
		var sl, tp float64
		if kindCurr == malaysianBuy {
			sl = entry - atr*1.5
			tp = entry + p.RewardToRiskRatio*abs(entry-sl)
		} else {
			sl = entry + atr*1.5
			tp = entry - p.RewardToRiskRatio*abs(entry-sl)
		}

		if abs(sl-entry) < p.PipValue || abs(tp-entry) < p.PipValue {
			continue
		}

		out = append(out, buildSignal(symbol, kindOf(string(kindCurr)), entry, round4(sl), round4(tp), MovingAverage))
	}
	return out
}

// maTrend computes the four SMAs over the trailing closes and returns the
// trend direction from the short/mid pair crossing the same way as the
// long/long-term pair (spec §4.5.2 step 2), not full four-way alignment.
func maTrend(closes []float64, periods [4]int) (malaysianKind, bool) {
	short := indicators.SMA(closes, periods[0])
	mid := indicators.SMA(closes, periods[1])
	long := indicators.SMA(closes, periods[2])
	longTerm := indicators.SMA(closes, periods[3])

	shortAboveMid := short > mid
	longAboveLongTerm := long > longTerm

	switch {
	case short == mid || long == longTerm:
		return "", false
	case shortAboveMid && longAboveLongTerm:
		return malaysianBuy, true
	case !shortAboveMid && !longAboveLongTerm:
		return malaysianSell, true
	default:
		return "", false
	}
}

// confirmM30Crossover requires the same crossover, computed on the latest
// two 30-minute bars, to agree with kind (spec §4.5.2 step 3).
func confirmM30Crossover(m30 []store.AggregatedCandle, kind malaysianKind, periods [4]int) bool {
	if len(m30) < periods[3]+1 {
		return false
	}
	closes := closesOf(m30)
	last := len(closes)
	currKind, ok := maTrend(closes[:last], periods)
	if !ok || currKind != kind {
		return false
	}
	prevKind, ok := maTrend(closes[:last-1], periods)
	return ok && prevKind != currKind
}

func closesOf(candles []store.AggregatedCandle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
