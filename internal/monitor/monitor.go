// Package monitor implements the TradeMonitor (C9): one watcher goroutine
// per open contract_id that polls the broker until settlement, grounded on
// continuousTradeMonitor.py's watch_contract loop and on the teacher's
// gateway.Manager pool-of-goroutines-with-stop-channel shape (spec §4.9).
package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	"forex-engine/internal/broker"
	"forex-engine/internal/events"
	"forex-engine/pkg/store"
)

// Broker is the subset of broker.Client a watcher needs.
type Broker interface {
	Authorize(ctx context.Context, token string) error
	OpenContract(ctx context.Context, contractID string) (broker.ContractState, error)
}

// Monitor owns one watcher goroutine per active contract_id.
type Monitor struct {
	Store  *store.Store
	Broker Broker
	Bus    *events.Bus

	PollInterval   time.Duration // default 2s
	RetryInterval  time.Duration // default 5s
	ReconcileEvery time.Duration // default 10s

	mu       sync.Mutex
	watching map[string]bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Monitor. pollInterval/retryInterval/reconcileEvery of zero
// fall back to spec §4.9's defaults.
func New(s *store.Store, b Broker, bus *events.Bus, pollInterval, retryInterval, reconcileEvery time.Duration) *Monitor {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if retryInterval <= 0 {
		retryInterval = 5 * time.Second
	}
	if reconcileEvery <= 0 {
		reconcileEvery = 10 * time.Second
	}
	return &Monitor{
		Store:          s,
		Broker:         b,
		Bus:            bus,
		PollInterval:   pollInterval,
		RetryInterval:  retryInterval,
		ReconcileEvery: reconcileEvery,
		watching:       make(map[string]bool),
		stopCh:         make(chan struct{}),
	}
}

// Start loads every active trade from Store and begins a watcher for each
// (spec §4.9 startup), then begins listening for EventContractOpened and
// running the periodic reconcile loop.
func (m *Monitor) Start(ctx context.Context) error {
	active, err := m.Store.ActiveTrades(ctx)
	if err != nil {
		return err
	}
	for _, t := range active {
		m.watch(ctx, t.ContractID, t.Email, t.Token)
	}

	opened, unsub := m.Bus.Subscribe(events.EventContractOpened, 32)
	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		defer unsub()
		for {
			select {
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			case payload := <-opened:
				p, ok := payload.(events.ContractOpenedPayload)
				if !ok {
					continue
				}
				m.onContractOpened(ctx, p)
			}
		}
	}()
	go func() {
		defer m.wg.Done()
		m.reconcileLoop(ctx)
	}()
	return nil
}

// Stop signals every watcher and the background loops to exit and waits for
// them to drain.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *Monitor) onContractOpened(ctx context.Context, p events.ContractOpenedPayload) {
	trades, err := m.Store.ActiveTrades(ctx)
	if err != nil {
		log.Printf("[monitor] reload after contract.opened: %v", err)
		return
	}
	for _, t := range trades {
		if t.ContractID == p.ContractID {
			m.watch(ctx, t.ContractID, t.Email, t.Token)
			return
		}
	}
}

// reconcileLoop re-scans the active trades table on a fixed interval so a
// missed EventContractOpened notification does not orphan a contract
// indefinitely (spec §4.9).
func (m *Monitor) reconcileLoop(ctx context.Context) {
	ticker := time.NewTicker(m.ReconcileEvery)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			active, err := m.Store.ActiveTrades(ctx)
			if err != nil {
				log.Printf("[monitor] reconcile: %v", err)
				continue
			}
			for _, t := range active {
				m.watch(ctx, t.ContractID, t.Email, t.Token)
			}
		}
	}
}

// watch starts a watcher goroutine for contractID unless one is already
// running; the watching map is the dedupe guard across boot-load,
// rendezvous events and reconcile passes.
func (m *Monitor) watch(ctx context.Context, contractID, email, token string) {
	m.mu.Lock()
	if m.watching[contractID] {
		m.mu.Unlock()
		return
	}
	m.watching[contractID] = true
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.watching, contractID)
			m.mu.Unlock()
		}()
		m.runWatcher(ctx, contractID, email, token)
	}()
}

// runWatcher implements the per-contract loop from spec §4.9 steps 1-5.
func (m *Monitor) runWatcher(ctx context.Context, contractID, email, token string) {
	if err := m.Broker.Authorize(ctx, token); err != nil {
		log.Printf("[monitor] %s: authorize failed, abandoning watcher: %v", contractID, err)
		return
	}

	isComplete := false
	for !isComplete {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		state, err := m.Broker.OpenContract(ctx, contractID)
		if err != nil {
			if _, ok := err.(*broker.AuthError); ok {
				log.Printf("[monitor] %s: auth error, abandoning watcher: %v", contractID, err)
				return
			}
			select {
			case <-time.After(m.RetryInterval):
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			}
			continue
		}

		if state.BuyPrice > 0 {
			if err := m.Store.UpdateTradeBuyPrice(ctx, contractID, state.BuyPrice); err != nil {
				log.Printf("[monitor] %s: update buy_price: %v", contractID, err)
			}
		}

		if state.IsSold || state.Status == "sold" {
			if err := m.Store.SettleTrade(ctx, contractID, state.BuyPrice, state.SellPrice, state.Profit, state.SellTime); err != nil {
				log.Printf("[monitor] %s: settle: %v", contractID, err)
				continue
			}
			isComplete = true
			if m.Bus != nil {
				m.Bus.Publish(events.EventContractSettled, events.ContractSettledPayload{
					ContractID: contractID, Email: email, ProfitLoss: state.Profit,
				})
			}
			log.Printf("[monitor] %s: settled profit_loss=%.2f", contractID, state.Profit)
			break
		}

		select {
		case <-time.After(m.PollInterval):
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}
