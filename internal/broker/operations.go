package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"forex-engine/pkg/store"
)

// Authorize establishes the session identity; idempotent per spec §4.1.
func (c *Client) Authorize(ctx context.Context, token string) error {
	raw, err := c.send(ctx, authorizeRequest{Authorize: token})
	if err != nil {
		return err
	}
	var resp authorizeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("broker: decode authorize response: %w", err)
	}
	if resp.Error != nil {
		return &AuthError{Code: resp.Error.Code, Message: resp.Error.Message}
	}
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return nil
}

// TicksHistory returns at most count closed one-minute candles whose epoch
// lies in [start, end).
func (c *Client) TicksHistory(ctx context.Context, symbol string, start, end time.Time, count int) ([]store.Candle, error) {
	raw, err := c.send(ctx, ticksHistoryRequest{
		TicksHistory: symbol,
		Granularity:  60,
		Style:        "candles",
		Start:        start.Unix(),
		End:          "latest",
		Count:        count,
	})
	if err != nil {
		return nil, err
	}
	var resp ticksHistoryResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("broker: decode ticks_history response: %w", err)
	}
	if resp.Error != nil {
		return nil, &ProposalError{Code: resp.Error.Code, Message: resp.Error.Message}
	}

	out := make([]store.Candle, 0, len(resp.Candles))
	for _, wc := range resp.Candles {
		ts := time.Unix(wc.Epoch, 0).UTC()
		if ts.Before(start) || !ts.Before(end) {
			continue
		}
		out = append(out, store.Candle{
			Symbol: symbol,
			TS:     ts,
			Open:   wc.Open,
			High:   wc.High,
			Low:    wc.Low,
			Close:  wc.Close,
		})
	}
	return out, nil
}

// ContractsFor lists contract types available on symbol; simplified to the
// MULTUP/MULTDOWN pair every symbol in this engine's scope supports.
func (c *Client) ContractsFor(ctx context.Context, symbol string) ([]string, error) {
	return []string{"MULTUP", "MULTDOWN"}, nil
}

// ProposalSpec is the engine-facing request for Proposal.
type ProposalSpec struct {
	ContractType string // MULTUP | MULTDOWN
	Symbol       string
	Currency     string
	Amount       float64
	Multiplier   float64
	TakeProfit   float64
	StopLoss     float64
}

// ProposalResult is the broker's priced quote.
type ProposalResult struct {
	ProposalID string
	Price      float64
}

// Proposal prices a contract; fails with ProposalError if the broker
// rejects the requested terms.
func (c *Client) Proposal(ctx context.Context, spec ProposalSpec) (ProposalResult, error) {
	raw, err := c.send(ctx, proposalRequest{
		Proposal:     1,
		Basis:        "stake",
		ContractType: spec.ContractType,
		Currency:     spec.Currency,
		Symbol:       spec.Symbol,
		Amount:       spec.Amount,
		Multiplier:   spec.Multiplier,
		LimitOrder:   limitOrder{TakeProfit: spec.TakeProfit, StopLoss: spec.StopLoss},
	})
	if err != nil {
		return ProposalResult{}, err
	}
	var resp proposalResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ProposalResult{}, fmt.Errorf("broker: decode proposal response: %w", err)
	}
	if resp.Error != nil {
		return ProposalResult{}, &ProposalError{Code: resp.Error.Code, Message: resp.Error.Message}
	}
	return ProposalResult{ProposalID: resp.Proposal.ID, Price: resp.Proposal.AskPrice}, nil
}

// Buy executes a previously priced proposal.
func (c *Client) Buy(ctx context.Context, proposalID string, price float64) (string, error) {
	raw, err := c.send(ctx, buyRequest{Buy: proposalID, Price: price})
	if err != nil {
		return "", err
	}
	var resp buyResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("broker: decode buy response: %w", err)
	}
	if resp.Error != nil {
		return "", &ProposalError{Code: resp.Error.Code, Message: resp.Error.Message}
	}
	return resp.Buy.ContractID, nil
}

// Sell closes an open contract.
func (c *Client) Sell(ctx context.Context, contractID string, price float64) error {
	raw, err := c.send(ctx, sellRequest{Sell: contractID, Price: price})
	if err != nil {
		return err
	}
	var resp sellResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("broker: decode sell response: %w", err)
	}
	if resp.Error != nil {
		return &ProposalError{Code: resp.Error.Code, Message: resp.Error.Message}
	}
	return nil
}

// ContractState mirrors the fields TradeMonitor needs from OpenContract.
type ContractState struct {
	Status    string
	IsSold    bool
	BuyPrice  float64
	SellPrice float64
	SellTime  time.Time
	Profit    float64
}

// OpenContract polls a single contract's current state, single-shot (no
// subscribe flag); the monitor drives its own poll interval (spec §4.9).
func (c *Client) OpenContract(ctx context.Context, contractID string) (ContractState, error) {
	raw, err := c.send(ctx, openContractRequest{ProposalOpenContract: 1, ContractID: contractID})
	if err != nil {
		return ContractState{}, err
	}
	var resp openContractResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ContractState{}, fmt.Errorf("broker: decode open_contract response: %w", err)
	}
	if resp.Error != nil {
		return ContractState{}, &ProposalError{Code: resp.Error.Code, Message: resp.Error.Message}
	}
	poc := resp.ProposalOpenContract
	state := ContractState{
		Status:    poc.Status,
		IsSold:    poc.IsSold == 1,
		BuyPrice:  poc.BuyPrice,
		SellPrice: poc.SellPrice,
		Profit:    poc.Profit,
	}
	if poc.SellTime > 0 {
		state.SellTime = time.Unix(poc.SellTime, 0).UTC()
	}
	return state, nil
}

// Balance returns the current authorized session's account balance. token
// is accepted to satisfy risk.BalanceReader; if it differs from the
// session's current token the client re-authorizes first, since each
// BrokerClient instance here is one authenticated session per user token
// (spec §4.9's "using the user's token, authorize a BrokerClient session").
func (c *Client) Balance(ctx context.Context, token string) (float64, error) {
	c.mu.Lock()
	current := c.token
	c.mu.Unlock()
	if token != "" && token != current {
		if err := c.Authorize(ctx, token); err != nil {
			return 0, err
		}
	}

	raw, err := c.send(ctx, balanceRequest{Balance: 1})
	if err != nil {
		return 0, err
	}
	var resp balanceResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return 0, fmt.Errorf("broker: decode balance response: %w", err)
	}
	if resp.Error != nil {
		return 0, &ProposalError{Code: resp.Error.Code, Message: resp.Error.Message}
	}
	return resp.Balance.Balance, nil
}

// ProfitTransaction is one settled deal as reported by ProfitTable.
type ProfitTransaction struct {
	BuyPrice   float64
	SellPrice  float64
	Multiplier float64
}

// ProfitTable returns settled transactions between from and to (inclusive),
// most recent first, per spec §4.1/§4.7. EligibilityEvaluator does not call
// this method: it reads realized P/L only from the local trades table
// (store.TradesInWindow).
func (c *Client) ProfitTable(ctx context.Context, from, to time.Time, limit int) ([]ProfitTransaction, error) {
	raw, err := c.send(ctx, profitTableRequest{
		ProfitTable: 1,
		Limit:       limit,
		Sort:        "DESC",
		Description: 1,
		DateFrom:    from.Format("2006-01-02"),
		DateTo:      to.Format("2006-01-02"),
	})
	if err != nil {
		return nil, err
	}
	var resp profitTableResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("broker: decode profit_table response: %w", err)
	}
	if resp.Error != nil {
		return nil, &ProposalError{Code: resp.Error.Code, Message: resp.Error.Message}
	}
	out := make([]ProfitTransaction, 0, len(resp.ProfitTable.Transactions))
	for _, t := range resp.ProfitTable.Transactions {
		out = append(out, ProfitTransaction{BuyPrice: t.BuyPrice, SellPrice: t.SellPrice, Multiplier: t.Multiplier})
	}
	return out, nil
}
