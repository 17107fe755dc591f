// Package dispatch implements the TradeDispatcher (C8): turns a batch of
// persisted strategy signals into priced, bought contracts for every
// eligible, subscribed user, grounded on spec §4.8 and on the original
// buyAndSell.py proposal/buy pairing.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"time"

	"forex-engine/internal/broker"
	"forex-engine/internal/eligibility"
	"forex-engine/internal/events"
	"forex-engine/internal/risk"
	"forex-engine/pkg/store"
)

// Broker is the subset of broker.Client the dispatcher drives.
type Broker interface {
	Authorize(ctx context.Context, token string) error
	Proposal(ctx context.Context, spec broker.ProposalSpec) (broker.ProposalResult, error)
	Buy(ctx context.Context, proposalID string, price float64) (string, error)
}

// Dispatcher wires a signal batch to brokered contracts and the trades table.
type Dispatcher struct {
	Store       *store.Store
	Broker      Broker
	Eligibility *eligibility.Evaluator
	Sizer       *risk.Sizer
	Bus         *events.Bus

	Currency     string  // defaults to USD
	Multiplier   float64 // DISPATCH_MULTIPLIER
	TPMultiplier float64 // DISPATCH_TP_MULTIPLIER
	SLOffset     float64 // DISPATCH_SL_OFFSET

	Clock func() time.Time // overridable for tests; defaults to time.Now
}

// New builds a Dispatcher from the engine's shared components and config.
func New(s *store.Store, b Broker, elig *eligibility.Evaluator, sizer *risk.Sizer, bus *events.Bus, multiplier, tpMult, slOffset float64) *Dispatcher {
	return &Dispatcher{
		Store:        s,
		Broker:       b,
		Eligibility:  elig,
		Sizer:        sizer,
		Bus:          bus,
		Currency:     "USD",
		Multiplier:   multiplier,
		TPMultiplier: tpMult,
		SLOffset:     slOffset,
		Clock:        time.Now,
	}
}

func (d *Dispatcher) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now()
}

// dedupeKey scopes one signal to one user for the duration of a single
// Process call, preventing a symbol whose strategies both fire from buying
// the same signal twice for the same account (spec §4.8).
type dedupeKey struct {
	email  string
	symbol string
	kind   string
	entry  float64
}

// Process dispatches every signal in the batch against every configured
// user, skipping users who aren't subscribed to the pair or who fail
// eligibility. Each user is processed independently; one user's broker
// error does not abort the batch.
func (d *Dispatcher) Process(ctx context.Context, signals []store.Signal) error {
	if len(signals) == 0 {
		return nil
	}

	users, err := d.Store.UsersTrading(ctx)
	if err != nil {
		return fmt.Errorf("dispatch: load users: %w", err)
	}

	seen := make(map[dedupeKey]bool)

	for _, sig := range signals {
		for _, u := range users {
			if !u.TradingToday {
				continue
			}
			symbols, err := d.Store.SymbolsForUser(ctx, u.Email)
			if err != nil {
				log.Printf("[dispatch] %s: load symbols: %v", u.Email, err)
				continue
			}
			if !contains(symbols, sig.Pair) {
				continue
			}

			key := dedupeKey{email: u.Email, symbol: sig.Pair, kind: sig.Kind, entry: sig.Entry}
			if seen[key] {
				continue
			}
			seen[key] = true

			d.dispatchOne(ctx, u, sig)
		}
	}
	return nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, u store.User, sig store.Signal) {
	eligible, err := d.Eligibility.Evaluate(ctx, u, d.now())
	if err != nil {
		log.Printf("[dispatch] %s: eligibility check failed: %v", u.Email, err)
		return
	}
	if !eligible {
		return
	}

	riskAmount := d.Sizer.RiskAmount(ctx, u.Token, sig.Entry, sig.SL)
	if riskAmount <= 0 {
		log.Printf("[dispatch] %s %s: risk_amount <= 0, skipping", u.Email, sig.Pair)
		return
	}

	contractType := "MULTDOWN"
	if sig.Kind == "Buy" {
		contractType = "MULTUP"
	}

	multiplier := d.Multiplier
	if multiplier <= 0 {
		multiplier = 30
	}

	spec := broker.ProposalSpec{
		ContractType: contractType,
		Symbol:       sig.Pair,
		Currency:     d.currency(),
		Amount:       riskAmount,
		Multiplier:   multiplier,
		TakeProfit:   adjustedTakeProfit(sig, d.TPMultiplier),
		StopLoss:     adjustedStopLoss(sig, d.SLOffset),
	}

	if err := d.Broker.Authorize(ctx, u.Token); err != nil {
		log.Printf("[dispatch] %s: authorize failed: %v", u.Email, err)
		return
	}

	result, err := d.Broker.Proposal(ctx, spec)
	if err != nil {
		log.Printf("[dispatch] %s %s: proposal failed: %v", u.Email, sig.Pair, err)
		return
	}

	contractID, err := d.Broker.Buy(ctx, result.ProposalID, riskAmount)
	if err != nil {
		log.Printf("[dispatch] %s %s: buy failed: %v", u.Email, sig.Pair, err)
		return
	}

	trade := store.Trade{
		ContractID:   contractID,
		Email:        u.Email,
		Token:        u.Token,
		Symbol:       sig.Pair,
		Timestamp:    d.now(),
		Amount:       riskAmount,
		Multiplier:   multiplier,
		ContractType: contractType,
		Currency:     d.currency(),
		TakeProfit:   spec.TakeProfit,
		StopLoss:     spec.StopLoss,
		BuyPrice:     result.Price,
	}
	if err := d.Store.InsertTrade(ctx, trade); err != nil {
		log.Printf("[dispatch] %s %s: insert trade %s failed: %v", u.Email, sig.Pair, contractID, err)
		return
	}

	if d.Bus != nil {
		d.Bus.Publish(events.EventContractOpened, events.ContractOpenedPayload{ContractID: contractID, Email: u.Email})
	}
	log.Printf("[dispatch] %s: opened %s %s contract=%s amount=%.2f", u.Email, sig.Pair, contractType, contractID, riskAmount)
}

func (d *Dispatcher) currency() string {
	if d.Currency == "" {
		return "USD"
	}
	return d.Currency
}

// adjustedTakeProfit applies DISPATCH_TP_MULTIPLIER directly to the signal's
// absolute take-profit price, matching buyAndSell.py's `take_profit * 3`
// adapter transform (an absolute-price rescale, not a distance-from-entry
// one) so the configured multiplier preserves the original's numeric
// behavior.
func adjustedTakeProfit(sig store.Signal, multiplier float64) float64 {
	if multiplier <= 0 {
		multiplier = 1
	}
	return sig.TP * multiplier
}

// adjustedStopLoss adds DISPATCH_SL_OFFSET to the signal's absolute
// stop-loss price, matching buyAndSell.py's `stop_loss + 2.49` adapter
// transform.
func adjustedStopLoss(sig store.Signal, offset float64) float64 {
	return sig.SL + offset
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
