// Package aggregate rolls up one-minute candles into higher timeframe
// buckets. It is a pure function package: same input always produces the
// same output, with no store or broker dependency (spec §4.4, §8).
package aggregate

import (
	"time"

	"forex-engine/pkg/store"
)

// Rollup buckets minute candles into timeframe-aligned bars. Candles must
// already be ordered by ts; any candle whose ts is earlier than the running
// bucket's is out of order and skipped rather than reordered, per §4.4's
// "ties and edge cases" rule. The final (possibly partial) bucket is always
// emitted — callers treat the last element as potentially in-progress.
func Rollup(candles []store.Candle, timeframe time.Duration) []store.AggregatedCandle {
	if len(candles) == 0 || timeframe <= 0 {
		return nil
	}

	var out []store.AggregatedCandle
	var current store.AggregatedCandle
	have := false
	lastTS := time.Time{}

	for _, c := range candles {
		if have && c.TS.Before(lastTS) {
			continue // out of order, skip
		}
		lastTS = c.TS

		bucket := floorTo(c.TS, timeframe)
		if !have || !bucket.Equal(current.TS) {
			if have {
				out = append(out, current)
			}
			current = store.AggregatedCandle{
				Symbol:    c.Symbol,
				Timeframe: timeframe,
				TS:        bucket,
				Open:      c.Open,
				High:      c.High,
				Low:       c.Low,
				Close:     c.Close,
			}
			have = true
			continue
		}

		if c.High > current.High {
			current.High = c.High
		}
		if c.Low < current.Low {
			current.Low = c.Low
		}
		current.Close = c.Close
	}

	if have {
		out = append(out, current)
	}
	return out
}

// floorTo rounds t down to the nearest multiple of timeframe since the Unix
// epoch, keeping buckets aligned to clock boundaries regardless of t's
// location.
func floorTo(t time.Time, timeframe time.Duration) time.Time {
	secs := t.Unix()
	step := int64(timeframe.Seconds())
	if step <= 0 {
		return t
	}
	floored := (secs / step) * step
	return time.Unix(floored, 0).UTC()
}
