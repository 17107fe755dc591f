package events

// Event enumerates the topics carried on the engine's internal bus.
type Event string

const (
	// EventCandleClosed fires once per symbol per minute after C3 upserts a
	// fresh one-minute candle. Nothing in the engine subscribes to it; the
	// orchestrator (C11) reads candles from the store on each pass.
	EventCandleClosed Event = "candle.closed"

	// EventSignalFound fires when a strategy (C5) produces a Buy or Sell
	// classification, before sizing or dispatch.
	EventSignalFound Event = "signal.found"

	// EventContractOpened is the Dispatcher -> Monitor rendezvous signal: a
	// contract has been bought and needs a watcher (spec §5).
	EventContractOpened Event = "contract.opened"

	// EventContractSettled fires once a TradeMonitor watcher observes a
	// contract go from open to sold, after the settlement write lands.
	EventContractSettled Event = "contract.settled"

	// EventTradingPaused is the topic for a user's trading_today flag being
	// switched off mid-day. EligibilityEvaluator holds no bus and does not
	// publish it; nothing in the engine publishes on this topic.
	EventTradingPaused Event = "trading.paused"
)

// CandleClosedPayload is published on EventCandleClosed.
type CandleClosedPayload struct {
	Symbol string
}

// SignalFoundPayload is published on EventSignalFound.
type SignalFoundPayload struct {
	Symbol   string
	Strategy string
}

// ContractOpenedPayload is published on EventContractOpened.
type ContractOpenedPayload struct {
	ContractID string
	Email      string
}

// ContractSettledPayload is published on EventContractSettled.
type ContractSettledPayload struct {
	ContractID string
	Email      string
	ProfitLoss float64
}

// TradingPausedPayload is published on EventTradingPaused.
type TradingPausedPayload struct {
	Email  string
	Reason string
}
