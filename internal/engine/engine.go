// Package engine wires the shared runtime context (spec §9's design note:
// one object carrying the broker session, store handle, config and event
// bus, passed by reference to every component) and the OrchestratorLoop
// (C11): per-symbol aggregate -> strategy -> dispatch pipeline.
package engine

import (
	"context"
	"log"
	"time"

	"forex-engine/internal/aggregate"
	"forex-engine/internal/dispatch"
	"forex-engine/internal/events"
	"forex-engine/internal/strategy"
	"forex-engine/pkg/config"
	"forex-engine/pkg/store"
)

// Context bundles the shared collaborators every component reads from,
// mirroring the teacher's pattern of passing one long-lived struct instead
// of threading each dependency through every constructor individually.
type Context struct {
	Store  *store.Store
	Config *config.Config
	Bus    *events.Bus
	Clock  func() time.Time
}

func (c *Context) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}

// Orchestrator runs the top-level loop from spec §4.11: for each configured
// symbol, aggregate its minute candles into 4h/15m/30m bars, run every
// enabled strategy, persist any signals and hand them to the Dispatcher.
type Orchestrator struct {
	Ctx        *Context
	Dispatcher *dispatch.Dispatcher
	Params     strategy.Params

	// Overrides holds per-symbol strategy constant tuning loaded from
	// config.SymbolOverride (STRATEGY_PARAMS_FILE); a symbol absent from
	// this map uses Params unmodified.
	Overrides map[string]strategy.Params

	SleepInterval time.Duration // default 4h
	HistoryWindow time.Duration // how far back to read minute candles, default 30 days

	stopCh chan struct{}
	done   chan struct{}
}

// NewOrchestrator builds an Orchestrator from the shared context.
func NewOrchestrator(ctx *Context, d *dispatch.Dispatcher, params strategy.Params, sleepInterval time.Duration) *Orchestrator {
	if sleepInterval <= 0 {
		sleepInterval = 4 * time.Hour
	}
	return &Orchestrator{
		Ctx:           ctx,
		Dispatcher:    d,
		Params:        params,
		SleepInterval: sleepInterval,
		HistoryWindow: 30 * 24 * time.Hour,
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Run loops forever until Stop is called or ctx is cancelled. Each iteration
// runs RunOnce and then sleeps SleepInterval (spec §4.11: "sleep 4 hours").
func (o *Orchestrator) Run(ctx context.Context) {
	defer close(o.done)
	for {
		o.RunOnce(ctx)
		select {
		case <-o.stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(o.SleepInterval):
		}
	}
}

// Stop signals Run to exit and waits for it to do so. A pending sleep is cut
// short; a pass already in progress finishes first.
func (o *Orchestrator) Stop() {
	close(o.stopCh)
	<-o.done
}

// RunOnce executes exactly one pass over every configured symbol. Each
// symbol's failure is isolated — logged and skipped — so one bad table or
// one broker hiccup never aborts the others (spec §4.11).
func (o *Orchestrator) RunOnce(ctx context.Context) {
	for _, st := range o.Ctx.Config.SymbolsToTables {
		if err := o.processSymbol(ctx, st.Symbol, st.Table); err != nil {
			log.Printf("[engine] %s: orchestrator pass failed: %v", st.Symbol, err)
		}
	}
}

func (o *Orchestrator) processSymbol(ctx context.Context, symbol, table string) error {
	since := o.Ctx.now().Add(-o.HistoryWindow)
	minuteCandles, err := o.Ctx.Store.ReadCandles(ctx, table, since)
	if err != nil {
		return err
	}
	if len(minuteCandles) == 0 {
		return nil
	}

	h4 := aggregate.Rollup(minuteCandles, 4*time.Hour)
	m15 := aggregate.Rollup(minuteCandles, 15*time.Minute)
	m30 := aggregate.Rollup(minuteCandles, 30*time.Minute)

	params := o.paramsFor(symbol)

	var signals []store.Signal
	if o.Ctx.Config.HasStrategy(strategy.Malaysian) {
		signals = append(signals, strategy.MalaysianStrategy(h4, m15, symbol, params)...)
	}
	if o.Ctx.Config.HasStrategy(strategy.MovingAverage) {
		signals = append(signals, strategy.MovingAverageStrategy(h4, m30, symbol, params)...)
	}
	if len(signals) == 0 {
		return nil
	}

	for _, sig := range signals {
		if err := o.Ctx.Store.InsertSignal(ctx, sig); err != nil {
			log.Printf("[engine] %s: persist signal: %v", symbol, err)
		}
		if o.Ctx.Bus != nil {
			o.Ctx.Bus.Publish(events.EventSignalFound, events.SignalFoundPayload{Symbol: symbol, Strategy: sig.Strategy})
		}
	}

	return o.Dispatcher.Process(ctx, signals)
}

// paramsFor returns o.Params with any per-symbol override applied.
func (o *Orchestrator) paramsFor(symbol string) strategy.Params {
	if o.Overrides == nil {
		return o.Params
	}
	override, ok := o.Overrides[symbol]
	if !ok {
		return o.Params
	}
	return override
}

// BuildOverrides merges each config.SymbolOverride onto a copy of base,
// leaving nil fields at the base value (STRATEGY_PARAMS_FILE is meant for
// partial tuning, not a full Params replacement per symbol).
func BuildOverrides(base strategy.Params, overrides []config.SymbolOverride) map[string]strategy.Params {
	if len(overrides) == 0 {
		return nil
	}
	out := make(map[string]strategy.Params, len(overrides))
	for _, ov := range overrides {
		p := base
		if ov.PipValue != nil {
			p.PipValue = *ov.PipValue
		}
		if ov.DefaultBufferPips != nil {
			p.DefaultBufferPips = *ov.DefaultBufferPips
		}
		if ov.RewardToRiskRatio != nil {
			p.RewardToRiskRatio = *ov.RewardToRiskRatio
		}
		if ov.ATRPeriod != nil {
			p.ATRPeriod = *ov.ATRPeriod
		}
		if ov.ADXThreshold != nil {
			p.ADXThreshold = *ov.ADXThreshold
		}
		if len(ov.MovingAveragePeriods) > 0 {
			p.MAPeriods = periodsArray(ov.MovingAveragePeriods)
		}
		out[ov.Symbol] = p
	}
	return out
}

func periodsArray(periods []int) [4]int {
	var out [4]int
	for i := 0; i < 4 && i < len(periods); i++ {
		out[i] = periods[i]
	}
	return out
}
