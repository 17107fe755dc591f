package strategy

import (
	"testing"
	"time"

	"forex-engine/pkg/store"
)

func h4(hour int, open, high, low, close float64) store.AggregatedCandle {
	return store.AggregatedCandle{
		Symbol: "frxEURUSD",
		TS:     time.Unix(int64(hour)*3600, 0).UTC(),
		Open:   open, High: high, Low: low, Close: close,
	}
}

func m15At(minute int, open, high, low, close float64) store.AggregatedCandle {
	return store.AggregatedCandle{
		Symbol: "frxEURUSD",
		TS:     time.Unix(int64(minute)*60, 0).UTC(),
		Open:   open, High: high, Low: low, Close: close,
	}
}

func defaultParams() Params {
	return Params{
		PipValue:          0.0001,
		DefaultBufferPips: 10,
		LowRiskRatio:      2,
		HighRiskRatio:     3,
		RewardToRiskRatio: 2,
		ATRPeriod:         14,
		ADXThreshold:      20,
		MAPeriods:         [4]int{7, 14, 89, 200},
	}
}

// S1 (spec §8): four 4h candles with closes rising, last two satisfying
// Buy criteria, confirmed by a bullish 15m candle inside the safe zone.
func TestMalaysianHappyPath(t *testing.T) {
	h := []store.AggregatedCandle{
		h4(0, 1.0990, 1.1005, 1.0985, 1.1000),
		h4(4, 1.1000, 1.1015, 1.0995, 1.1010),
		h4(8, 1.1010, 1.1025, 1.1005, 1.1020),
		h4(12, 1.1020, 1.1040, 1.1015, 1.1035),
	}
	// prev.open for the final pair (index 3) is h[2].Open = 1.1010.
	// Safe zone: [1.1008, 1.1012]. Confirm with a bullish 15m candle whose
	// low sits in that band, timestamped within 4h of h[3].ts (=43200).
	m15 := []store.AggregatedCandle{
		m15At(12*60-5, 1.1009, 1.1015, 1.1009, 1.1013), // bullish, low in zone
	}

	signals := MalaysianStrategy(h, m15, "frxEURUSD", defaultParams())
	if len(signals) == 0 {
		t.Fatalf("expected at least one signal, got none")
	}
	last := signals[len(signals)-1]
	if last.Kind != "Buy" {
		t.Fatalf("Kind = %v, want Buy", last.Kind)
	}
	if last.Entry != 1.1035 {
		t.Fatalf("Entry = %v, want 1.1035", last.Entry)
	}
	if !(last.TP > last.Entry && last.Entry > last.SL) {
		t.Fatalf("signal sanity violated: SL=%v entry=%v TP=%v", last.SL, last.Entry, last.TP)
	}
}

func TestMalaysianNoConfirmationYieldsNoSignal(t *testing.T) {
	h := []store.AggregatedCandle{
		h4(0, 1.0990, 1.1005, 1.0985, 1.1000),
		h4(4, 1.1000, 1.1015, 1.0995, 1.1010),
	}
	signals := MalaysianStrategy(h, nil, "frxEURUSD", defaultParams())
	if len(signals) != 0 {
		t.Fatalf("expected no signals without 15m confirmation, got %d", len(signals))
	}
}

func TestMalaysianRewardRiskFilter(t *testing.T) {
	h := []store.AggregatedCandle{
		h4(0, 1.0990, 1.1005, 1.0985, 1.1000),
		h4(4, 1.1000, 1.1015, 1.0995, 1.1010),
	}
	m15 := []store.AggregatedCandle{
		m15At(4*60-5, 1.0999, 1.1005, 1.0999, 1.1003),
	}
	for _, sig := range MalaysianStrategy(h, m15, "frxEURUSD", defaultParams()) {
		rr := rewardToRisk(sig.Entry, sig.SL, sig.TP)
		if rr < 2 {
			t.Fatalf("emitted signal with reward/risk %v < 2", rr)
		}
	}
}
