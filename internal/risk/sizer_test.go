package risk

import (
	"context"
	"errors"
	"testing"
)

func TestStopLossBuyBelowEntry(t *testing.T) {
	s := &Sizer{PipValue: 0.0001}
	sl, err := s.StopLoss(1.1035, Buy, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := 1.1025; sl != want {
		t.Fatalf("StopLoss = %v, want %v", sl, want)
	}
}

func TestStopLossRejectsZeroBuffer(t *testing.T) {
	s := &Sizer{PipValue: 0.0001}
	if _, err := s.StopLoss(1.1, Buy, 0); !errors.Is(err, ErrInvalidBufferPip) {
		t.Fatalf("err = %v, want ErrInvalidBufferPip", err)
	}
}

func TestTakeProfitSellAboveRR(t *testing.T) {
	s := &Sizer{PipValue: 0.0001}
	tp, err := s.TakeProfit(1.1000, 1.1010, Sell, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := 1.0980; tp != want {
		t.Fatalf("TakeProfit = %v, want %v", tp, want)
	}
}

func TestPositionSize(t *testing.T) {
	s := &Sizer{PipValue: 0.0001}
	size, err := s.PositionSize(10, 1.1035, 1.1025)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := 1.0; size != want {
		t.Fatalf("PositionSize = %v, want %v", size, want)
	}
}

type stubBroker struct {
	balance float64
	err     error
}

func (b stubBroker) Balance(ctx context.Context, token string) (float64, error) {
	return b.balance, b.err
}

func TestRiskAmountZeroOnBrokerError(t *testing.T) {
	s := NewSizer(stubBroker{err: errors.New("boom")}, 0.0001, 1)
	if got := s.RiskAmount(context.Background(), "tok", 1.1, 1.0); got != 0 {
		t.Fatalf("RiskAmount = %v, want 0", got)
	}
}

func TestRiskAmountPercentOfBalance(t *testing.T) {
	s := NewSizer(stubBroker{balance: 500}, 0.0001, 1)
	if got := s.RiskAmount(context.Background(), "tok", 1.1, 1.0); got != 5 {
		t.Fatalf("RiskAmount = %v, want 5", got)
	}
}

func TestRiskAmountZeroWhenEntryEqualsSL(t *testing.T) {
	s := NewSizer(stubBroker{balance: 500}, 0.0001, 1)
	if got := s.RiskAmount(context.Background(), "tok", 1.1, 1.1); got != 0 {
		t.Fatalf("RiskAmount = %v, want 0", got)
	}
}
