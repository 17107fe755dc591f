package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"forex-engine/internal/broker"
	"forex-engine/internal/candle"
	"forex-engine/internal/dispatch"
	"forex-engine/internal/eligibility"
	"forex-engine/internal/engine"
	"forex-engine/internal/events"
	"forex-engine/internal/monitor"
	"forex-engine/internal/risk"
	"forex-engine/internal/scheduler"
	"forex-engine/internal/strategy"
	"forex-engine/pkg/config"
	"forex-engine/pkg/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	st, err := store.Open(cfg.StoreDSN)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.Close()

	for _, symTable := range cfg.SymbolsToTables {
		if err := st.EnsureCandleTable(symTable.Symbol, symTable.Table); err != nil {
			log.Fatalf("store: ensure candle table %s: %v", symTable.Symbol, err)
		}
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Printf("config: unknown TIMEZONE %q, falling back to UTC: %v", cfg.Timezone, err)
		loc = time.UTC
	}

	bus := events.NewBus()

	bc := broker.New(broker.Config{
		WSURL:            cfg.BrokerWSURL,
		AppID:            cfg.BrokerAppID,
		RequestTimeout:   time.Duration(cfg.BrokerRequestTimeoutSeconds) * time.Second,
		ConnectTimeout:   time.Duration(cfg.BrokerConnectTimeoutSeconds) * time.Second,
		MaxReconnectWait: 30 * time.Second,
	})

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := bc.Connect(rootCtx); err != nil {
		log.Fatalf("broker: connect: %v", err)
	}

	sizer := risk.NewSizer(bc, cfg.PipValue, cfg.RiskPercentage)
	elig := eligibility.New(st)
	disp := dispatch.New(st, bc, elig, sizer, bus, cfg.DispatchMultiplier, cfg.DispatchTPMultiplier, cfg.DispatchSLOffset)

	params := strategy.Params{
		PipValue:          cfg.PipValue,
		DefaultBufferPips: cfg.DefaultBufferPips,
		LowRiskRatio:      cfg.LowRiskRatio,
		HighRiskRatio:     cfg.HighRiskRatio,
		RewardToRiskRatio: cfg.RewardToRiskRatio,
		ATRPeriod:         cfg.ATRPeriod,
		ADXThreshold:      cfg.ADXThreshold,
		MAPeriods:         periodsArray(cfg.MovingAveragePeriods),
	}

	engCtx := &engine.Context{Store: st, Config: cfg, Bus: bus, Clock: time.Now}
	orchestrator := engine.NewOrchestrator(engCtx, disp, params, time.Duration(cfg.SleepIntervalSeconds)*time.Second)

	if overrides, err := config.LoadSymbolOverrides(cfg.StrategyParamsFile); err != nil {
		log.Fatalf("config: load %s: %v", cfg.StrategyParamsFile, err)
	} else if len(overrides) > 0 {
		orchestrator.Overrides = engine.BuildOverrides(params, overrides)
		log.Printf("engine: loaded %d per-symbol strategy overrides from %s", len(overrides), cfg.StrategyParamsFile)
	}

	// Candle ingestion runs under whichever account token the broker
	// session is authorized with; the per-symbol tasks share that single
	// connection (spec §4.3).
	var targets []candle.Target
	for _, symTable := range cfg.SymbolsToTables {
		targets = append(targets, candle.Target{Symbol: symTable.Symbol, Table: symTable.Table})
	}
	ingestToken := firstUserToken(rootCtx, st)
	ingestor := candle.New(st, bc, bus, ingestToken, targets, cfg.CandleFetchRetries, time.Duration(cfg.CandleFetchRetryDelaySeconds)*time.Second)

	mon := monitor.New(st, bc, bus,
		time.Duration(cfg.MonitorPollSeconds)*time.Second,
		time.Duration(cfg.MonitorRetrySeconds)*time.Second,
		10*time.Second,
	)

	sched := scheduler.New(st, bc, elig, loc,
		time.Duration(cfg.BalanceIntervalSeconds)*time.Second,
		time.Duration(cfg.MonitorIntervalSeconds)*time.Second,
	)

	if err := ingestor.Start(rootCtx); err != nil {
		log.Fatalf("candle: start ingestor: %v", err)
	}
	if err := mon.Start(rootCtx); err != nil {
		log.Fatalf("monitor: start: %v", err)
	}
	sched.Start(rootCtx)
	go orchestrator.Run(rootCtx)

	log.Printf("engine started: session=%s symbols=%d strategies=%v", uuid.NewString(), len(cfg.SymbolsToTables), cfg.Strategies)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Println("shutdown signal received, draining")

	cancel()
	orchestrator.Stop()
	mon.Stop()
	sched.Stop()
	ingestor.Stop()

	time.Sleep(time.Duration(cfg.ShutdownDrainSeconds) * time.Second)
	if err := bc.Close(); err != nil {
		log.Printf("broker: close: %v", err)
	}
	log.Println("shutdown complete")
}

// firstUserToken picks the token CandleIngestor authorizes its shared
// session with. Candle data is account-agnostic (the same ticks history is
// visible regardless of which user's token authorizes it), so any
// configured trading user's token serves this role.
func firstUserToken(ctx context.Context, st *store.Store) string {
	users, err := st.UsersTrading(ctx)
	if err != nil || len(users) == 0 {
		log.Println("no trading users configured yet; candle ingestion will authorize with an empty token")
		return ""
	}
	return users[0].Token
}

func periodsArray(periods []int) [4]int {
	var out [4]int
	for i := 0; i < 4 && i < len(periods); i++ {
		out[i] = periods[i]
	}
	if out == ([4]int{}) {
		out = [4]int{7, 14, 89, 200}
	}
	return out
}
