package aggregate

import (
	"testing"
	"time"

	"forex-engine/pkg/store"
)

func minuteCandle(minute int, o, h, l, c float64) store.Candle {
	return store.Candle{
		Symbol: "frxEURUSD",
		TS:     time.Unix(int64(minute)*60, 0).UTC(),
		Open:   o, High: h, Low: l, Close: c,
	}
}

func TestRollupEmptyInput(t *testing.T) {
	if got := Rollup(nil, 15*time.Minute); got != nil {
		t.Fatalf("Rollup(nil) = %v, want nil", got)
	}
}

func TestRollupEmitsBucketOnChange(t *testing.T) {
	candles := []store.Candle{
		minuteCandle(0, 1.0, 1.05, 0.95, 1.02),
		minuteCandle(1, 1.02, 1.10, 1.00, 1.08),
		minuteCandle(14, 1.08, 1.09, 1.07, 1.07), // still bucket 0 (0-14 -> floor 0 under 15m)
		minuteCandle(15, 1.07, 1.20, 1.06, 1.15), // new bucket
	}
	got := Rollup(candles, 15*time.Minute)
	if len(got) != 2 {
		t.Fatalf("len(Rollup) = %d, want 2", len(got))
	}
	first := got[0]
	if first.Open != 1.0 || first.Close != 1.07 || first.High != 1.10 || first.Low != 0.95 {
		t.Fatalf("first bucket = %+v", first)
	}
	second := got[1]
	if second.Open != 1.07 || second.Close != 1.15 {
		t.Fatalf("second bucket = %+v", second)
	}
}

func TestRollupSkipsOutOfOrderCandle(t *testing.T) {
	candles := []store.Candle{
		minuteCandle(10, 1.0, 1.1, 0.9, 1.0),
		minuteCandle(5, 99, 99, 99, 99), // out of order, must be skipped
		minuteCandle(11, 1.0, 1.2, 0.9, 1.05),
	}
	got := Rollup(candles, 15*time.Minute)
	if len(got) != 1 {
		t.Fatalf("len(Rollup) = %d, want 1", len(got))
	}
	if got[0].High == 99 {
		t.Fatalf("out-of-order candle was not skipped: %+v", got[0])
	}
}

func TestRollupLengthBound(t *testing.T) {
	var candles []store.Candle
	for i := 0; i < 120; i++ {
		candles = append(candles, minuteCandle(i, 1, 1, 1, 1))
	}
	got := Rollup(candles, 15*time.Minute)
	first, last := candles[0].TS, candles[len(candles)-1].TS
	maxLen := int(last.Sub(first)/(15*time.Minute)) + 1
	if len(got) > maxLen {
		t.Fatalf("len(Rollup) = %d, exceeds bound %d", len(got), maxLen)
	}
}
