package indicators

import (
	"testing"
)

func candlesFrom(ohlc [][4]float64) []Bar {
	out := make([]Bar, len(ohlc))
	for i, v := range ohlc {
		out[i] = Bar{High: v[1], Low: v[2], Close: v[3]}
	}
	return out
}

func TestATRNeedsPeriodPlusOneCandles(t *testing.T) {
	c := candlesFrom([][4]float64{{1, 1.1, 0.9, 1.0}})
	if got := ATR(c, 14); got != 0 {
		t.Fatalf("ATR with 1 candle = %v, want 0", got)
	}
}

func TestATRConstantRange(t *testing.T) {
	// constant high-low range of 0.1, closes rising 0.05 a bar so no gap
	// exceeds the range: TR is 0.1 every bar.
	c := candlesFrom([][4]float64{
		{1.0, 1.1, 1.0, 1.05},
		{1.05, 1.15, 1.05, 1.1},
		{1.1, 1.2, 1.1, 1.15},
	})
	got := ATR(c, 2)
	want := 0.1
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("ATR = %v, want %v", got, want)
	}
}

func TestADXZeroWhenTrueRangeIsZero(t *testing.T) {
	c := candlesFrom([][4]float64{
		{1, 1, 1, 1},
		{1, 1, 1, 1},
		{1, 1, 1, 1},
	})
	if got := ADX(c, 2); got != 0 {
		t.Fatalf("ADX on flat candles = %v, want 0", got)
	}
}

func TestSMAInsufficientHistoryReturnsZero(t *testing.T) {
	if got := SMA([]float64{1, 2}, 7); got != 0 {
		t.Fatalf("SMA with short history = %v, want 0", got)
	}
}

func TestSMAAverages(t *testing.T) {
	got := SMA([]float64{1, 2, 3, 4}, 2)
	if want := 3.5; got != want {
		t.Fatalf("SMA = %v, want %v", got, want)
	}
}
