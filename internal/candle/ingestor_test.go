package candle

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"forex-engine/internal/broker"
	"forex-engine/internal/events"
	"forex-engine/pkg/store"
)

type fakeCandleBroker struct {
	authCalls int32
	calls     int32
	failUntil int32
	authErr   error
}

func (f *fakeCandleBroker) Authorize(ctx context.Context, token string) error {
	atomic.AddInt32(&f.authCalls, 1)
	return f.authErr
}

func (f *fakeCandleBroker) TicksHistory(ctx context.Context, symbol string, start, end time.Time, count int) ([]store.Candle, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.failUntil {
		return nil, &broker.NetError{Err: context.DeadlineExceeded}
	}
	return []store.Candle{{Symbol: symbol, TS: start, Open: 1, High: 1.1, Low: 0.9, Close: 1.05}}, nil
}

func openCandleStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFetchOnePersistsCandleOnSuccess(t *testing.T) {
	s := openCandleStore(t)
	fb := &fakeCandleBroker{}
	bus := events.NewBus()
	sv := New(s, fb, bus, "tok", []Target{{Symbol: "frxEURUSD", Table: "candles_eurusd"}}, 3, time.Millisecond)

	aligned := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	sv.fetchOne(context.Background(), Target{Symbol: "frxEURUSD", Table: "candles_eurusd"}, aligned)

	got, err := s.ReadCandles(context.Background(), "candles_eurusd", aligned.Add(-2*time.Minute))
	if err != nil {
		t.Fatalf("read candles: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 candle persisted, got %d", len(got))
	}
}

func TestFetchOneRetriesOnTransientError(t *testing.T) {
	s := openCandleStore(t)
	fb := &fakeCandleBroker{failUntil: 2} // fails twice, succeeds on 3rd
	sv := New(s, fb, events.NewBus(), "tok", nil, 3, time.Millisecond)

	aligned := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	sv.fetchOne(context.Background(), Target{Symbol: "frxEURUSD", Table: "candles_retry"}, aligned)

	got, err := s.ReadCandles(context.Background(), "candles_retry", aligned.Add(-2*time.Minute))
	if err != nil {
		t.Fatalf("read candles: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected candle to persist after retries succeeded, got %d rows", len(got))
	}
	if atomic.LoadInt32(&fb.calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", fb.calls)
	}
}

func TestFetchOneHaltsOnPersistentAuthFailure(t *testing.T) {
	s := openCandleStore(t)
	authFailBroker := &authFailingBroker{}
	sv := New(s, authFailBroker, events.NewBus(), "tok", nil, 3, time.Millisecond)

	aligned := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	sv.fetchOne(context.Background(), Target{Symbol: "frxEURUSD", Table: "candles_halt"}, aligned)

	if !sv.isHalted("frxEURUSD") {
		t.Fatalf("expected symbol halted after persistent auth failure")
	}
	halted := sv.HaltedSymbols()
	if len(halted) != 1 || halted[0] != "frxEURUSD" {
		t.Fatalf("HaltedSymbols = %v, want [frxEURUSD]", halted)
	}
}

type authFailingBroker struct{}

func (authFailingBroker) Authorize(ctx context.Context, token string) error { return nil }
func (authFailingBroker) TicksHistory(ctx context.Context, symbol string, start, end time.Time, count int) ([]store.Candle, error) {
	return nil, &broker.AuthError{Code: "InvalidToken", Message: "token expired"}
}

func TestNextMinuteBoundaryIsAfterNow(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 30, 15, 0, time.UTC)
	next := nextMinuteBoundary(now)
	want := time.Date(2026, 1, 1, 10, 31, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("nextMinuteBoundary(%v) = %v, want %v", now, next, want)
	}
}
