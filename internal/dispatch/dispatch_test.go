package dispatch

import (
	"context"
	"testing"
	"time"

	"forex-engine/internal/broker"
	"forex-engine/internal/eligibility"
	"forex-engine/internal/events"
	"forex-engine/internal/risk"
	"forex-engine/pkg/store"
)

type fakeBroker struct {
	authorized   []string
	proposals    int
	buys         int
	balance      float64
	proposalFail bool
}

func (f *fakeBroker) Authorize(ctx context.Context, token string) error {
	f.authorized = append(f.authorized, token)
	return nil
}

func (f *fakeBroker) Balance(ctx context.Context, token string) (float64, error) {
	return f.balance, nil
}

func (f *fakeBroker) Proposal(ctx context.Context, spec broker.ProposalSpec) (broker.ProposalResult, error) {
	f.proposals++
	if f.proposalFail {
		return broker.ProposalResult{}, &broker.ProposalError{Code: "InvalidOffer", Message: "rejected"}
	}
	return broker.ProposalResult{ProposalID: "prop-1", Price: spec.Amount}, nil
}

func (f *fakeBroker) Buy(ctx context.Context, proposalID string, price float64) (string, error) {
	f.buys++
	return "contract-1", nil
}

func seedDispatchUser(t *testing.T, s *store.Store, email, symbol string) {
	t.Helper()
	ctx := context.Background()
	if _, err := s.DB.ExecContext(ctx, `
		INSERT INTO userdetails (email, token, strategy, trading, trading_today, balance, balance_today)
		VALUES (?, 'tok', 'Malaysian', 1, 1, 1000, 1000)
	`, email); err != nil {
		t.Fatalf("seed userdetails: %v", err)
	}
	if _, err := s.DB.ExecContext(ctx, `INSERT INTO risk_table (email, per_trade, per_day) VALUES (?, 1, 100)`, email); err != nil {
		t.Fatalf("seed risk_table: %v", err)
	}
	if _, err := s.DB.ExecContext(ctx, `
		INSERT INTO start_stop_table (email, start_date, stop_date, loss_per_day, overall_loss, win_per_day, overall_win)
		VALUES (?, '2020-01-01', '2999-01-01', 100, 100, 100, 100)
	`, email); err != nil {
		t.Fatalf("seed start_stop_table: %v", err)
	}
	if _, err := s.DB.ExecContext(ctx, `INSERT INTO user_symbols (email, token, symbol) VALUES (?, 'tok', ?)`, email, symbol); err != nil {
		t.Fatalf("seed user_symbols: %v", err)
	}
}

func newTestDispatcher(t *testing.T, fb *fakeBroker) (*Dispatcher, *store.Store) {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	sizer := risk.NewSizer(fb, 0.0001, 1)
	d := New(s, fb, eligibility.New(s), sizer, events.NewBus(), 30, 3.0, 2.49)
	d.Clock = func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }
	return d, s
}

func TestProcessDispatchesEligibleSubscribedUser(t *testing.T) {
	fb := &fakeBroker{balance: 1000}
	d, s := newTestDispatcher(t, fb)
	seedDispatchUser(t, s, "trader@example.com", "frxEURUSD")

	sig := store.Signal{Pair: "frxEURUSD", Kind: "Buy", Entry: 1.1000, SL: 1.0980, TP: 1.1040, Strategy: "Malaysian"}
	if err := d.Process(context.Background(), []store.Signal{sig}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if fb.proposals != 1 || fb.buys != 1 {
		t.Fatalf("expected exactly one proposal+buy, got proposals=%d buys=%d", fb.proposals, fb.buys)
	}

	trades, err := s.ActiveTrades(context.Background())
	if err != nil {
		t.Fatalf("active trades: %v", err)
	}
	if len(trades) != 1 || trades[0].Email != "trader@example.com" {
		t.Fatalf("expected one active trade for trader@example.com, got %+v", trades)
	}
}

// S3 (spec §8): a user not subscribed to the signal's pair never gets a proposal.
func TestProcessSkipsUnsubscribedSymbol(t *testing.T) {
	fb := &fakeBroker{balance: 1000}
	d, s := newTestDispatcher(t, fb)
	seedDispatchUser(t, s, "trader@example.com", "frxGBPUSD")

	sig := store.Signal{Pair: "frxEURUSD", Kind: "Buy", Entry: 1.1000, SL: 1.0980, TP: 1.1040, Strategy: "Malaysian"}
	if err := d.Process(context.Background(), []store.Signal{sig}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if fb.proposals != 0 || fb.buys != 0 {
		t.Fatalf("expected no dispatch for unsubscribed symbol, got proposals=%d buys=%d", fb.proposals, fb.buys)
	}
}

func TestProcessSkipsWhenRiskAmountIsZero(t *testing.T) {
	fb := &fakeBroker{balance: 0} // RiskAmount returns 0 on non-positive balance
	d, s := newTestDispatcher(t, fb)
	seedDispatchUser(t, s, "trader@example.com", "frxEURUSD")

	sig := store.Signal{Pair: "frxEURUSD", Kind: "Buy", Entry: 1.1000, SL: 1.0980, TP: 1.1040, Strategy: "Malaysian"}
	if err := d.Process(context.Background(), []store.Signal{sig}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if fb.proposals != 0 || fb.buys != 0 {
		t.Fatalf("expected no dispatch when risk_amount <= 0, got proposals=%d buys=%d", fb.proposals, fb.buys)
	}
}

func TestProcessDedupesWithinOneBatch(t *testing.T) {
	fb := &fakeBroker{balance: 1000}
	d, s := newTestDispatcher(t, fb)
	seedDispatchUser(t, s, "trader@example.com", "frxEURUSD")

	sig := store.Signal{Pair: "frxEURUSD", Kind: "Buy", Entry: 1.1000, SL: 1.0980, TP: 1.1040, Strategy: "Malaysian"}
	// Same signal appearing twice in one batch (e.g. both strategies fired
	// identically) must still only place one order.
	if err := d.Process(context.Background(), []store.Signal{sig, sig}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if fb.proposals != 1 || fb.buys != 1 {
		t.Fatalf("expected dedupe to collapse to one order, got proposals=%d buys=%d", fb.proposals, fb.buys)
	}
}
