package broker

import "encoding/json"

// Wire message shapes, grounded on the documented broker protocol (spec
// §6). Loose maps are reserved for this file only — everywhere else in the
// engine uses typed records.

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type authorizeRequest struct {
	ReqID     string `json:"req_id"`
	Authorize string `json:"authorize"`
}

type authorizeResponse struct {
	ReqID     string          `json:"req_id"`
	Authorize json.RawMessage `json:"authorize"`
	Error     *wireError      `json:"error"`
}

type ticksHistoryRequest struct {
	ReqID        string `json:"req_id"`
	TicksHistory string `json:"ticks_history"`
	Granularity  int    `json:"granularity"`
	Style        string `json:"style"`
	Start        int64  `json:"start"`
	End          string `json:"end"`
	Count        int    `json:"count"`
}

type wireCandle struct {
	Epoch int64   `json:"epoch"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

type ticksHistoryResponse struct {
	ReqID   string       `json:"req_id"`
	Candles []wireCandle `json:"candles"`
	Error   *wireError   `json:"error"`
}

type limitOrder struct {
	TakeProfit float64 `json:"take_profit,omitempty"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
}

type proposalRequest struct {
	ReqID        string     `json:"req_id"`
	Proposal     int        `json:"proposal"`
	Basis        string     `json:"basis"`
	ContractType string     `json:"contract_type"`
	Currency     string     `json:"currency"`
	Symbol       string     `json:"symbol"`
	Amount       float64    `json:"amount"`
	Multiplier   float64    `json:"multiplier"`
	LimitOrder   limitOrder `json:"limit_order"`
}

type wireProposal struct {
	ID       string  `json:"id"`
	AskPrice float64 `json:"ask_price"`
}

type proposalResponse struct {
	ReqID    string        `json:"req_id"`
	Proposal *wireProposal `json:"proposal"`
	Error    *wireError    `json:"error"`
}

type buyRequest struct {
	ReqID string  `json:"req_id"`
	Buy   string  `json:"buy"`
	Price float64 `json:"price"`
}

type wireBuy struct {
	ContractID string  `json:"contract_id"`
	BuyPrice   float64 `json:"buy_price"`
}

type buyResponse struct {
	ReqID string     `json:"req_id"`
	Buy   *wireBuy   `json:"buy"`
	Error *wireError `json:"error"`
}

type sellRequest struct {
	ReqID string  `json:"req_id"`
	Sell  string  `json:"sell"`
	Price float64 `json:"price"`
}

type wireSell struct {
	SoldFor float64 `json:"sold_for"`
}

type sellResponse struct {
	ReqID string     `json:"req_id"`
	Sell  *wireSell  `json:"sell"`
	Error *wireError `json:"error"`
}

type openContractRequest struct {
	ReqID                string `json:"req_id"`
	ProposalOpenContract int    `json:"proposal_open_contract"`
	ContractID           string `json:"contract_id"`
	Subscribe            int    `json:"subscribe,omitempty"`
}

type wireOpenContract struct {
	Status      string  `json:"status"`
	IsSold      int     `json:"is_sold"`
	BuyPrice    float64 `json:"buy_price"`
	SellPrice   float64 `json:"sell_price"`
	SellTime    int64   `json:"sell_time"`
	Profit      float64 `json:"profit"`
	EntrySpot   float64 `json:"entry_spot"`
	CurrentSpot float64 `json:"current_spot"`
}

type openContractResponse struct {
	ReqID                string            `json:"req_id"`
	ProposalOpenContract *wireOpenContract `json:"proposal_open_contract"`
	Error                *wireError        `json:"error"`
}

type balanceRequest struct {
	ReqID   string `json:"req_id"`
	Balance int    `json:"balance"`
}

type wireBalance struct {
	Balance float64 `json:"balance"`
}

type balanceResponse struct {
	ReqID   string       `json:"req_id"`
	Balance *wireBalance `json:"balance"`
	Error   *wireError   `json:"error"`
}

type profitTableRequest struct {
	ReqID       string `json:"req_id"`
	ProfitTable int    `json:"profit_table"`
	Limit       int    `json:"limit"`
	Sort        string `json:"sort"`
	Description int    `json:"description"`
	DateFrom    string `json:"date_from"`
	DateTo      string `json:"date_to"`
}

type wireProfitTransaction struct {
	BuyPrice   float64 `json:"buy_price"`
	SellPrice  float64 `json:"sell_price"`
	Multiplier float64 `json:"multiplier"`
}

type wireProfitTable struct {
	Count        int                     `json:"count"`
	Transactions []wireProfitTransaction `json:"transactions"`
}

type profitTableResponse struct {
	ReqID       string           `json:"req_id"`
	ProfitTable *wireProfitTable `json:"profit_table"`
	Error       *wireError       `json:"error"`
}
