package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string      `json:"request_id"`
	Timestamp time.Time   `json:"timestamp"`
	Command   string      `json:"command"`
	Wallet    string      `json:"wallet,omitempty"`
	Cache     CacheStatus `json:"cache"`
}

type CacheStatus struct {
	Status string `json:"status"`
	AgeMS  int64  `json:"age_ms"`
	Stale  bool   `json:"stale"`
}

type AmountInfo struct {
	AmountBaseUnits string `json:"amount_base_units"`
	AmountDecimal   string `json:"amount_decimal"`
	Decimals        int    `json:"decimals"`
}

type NativeBalance struct {
	Address   string     `json:"address"`
	Balance   AmountInfo `json:"balance"`
	FetchedAt string     `json:"fetched_at"`
}

type TokenInfo struct {
	Address    string `json:"address"`
	Name       string `json:"name"`
	Symbol     string `json:"symbol"`
	Decimals   int    `json:"decimals"`
	Balance    string `json:"balance"`
	BalanceRaw string `json:"balance_raw"`
}

type Allowance struct {
	Token   string     `json:"token"`
	Owner   string     `json:"owner"`
	Spender string     `json:"spender"`
	Amount  AmountInfo `json:"amount"`
}

type TransferResult struct {
	Hash   string `json:"hash"`
	From   string `json:"from"`
	To     string `json:"to"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

type ApprovalResult struct {
	Hash    string `json:"hash"`
	Token   string `json:"token"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type QuoteSide struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
	Amount   string `json:"amount"`
}

type SwapQuote struct {
	TokenIn          QuoteSide `json:"token_in"`
	TokenOut         QuoteSide `json:"token_out"`
	ExecutionPrice   string    `json:"execution_price"`
	MinimumAmountOut string    `json:"minimum_amount_out"`
	PriceImpact      string    `json:"price_impact"`
	FetchedAt        string    `json:"fetched_at"`
}

type SwapResult struct {
	Hash              string `json:"hash"`
	TokenIn           string `json:"token_in"`
	TokenOut          string `json:"token_out"`
	AmountIn          string `json:"amount_in"`
	ExpectedAmountOut string `json:"expected_amount_out"`
}

type TokenPair struct {
	Name         string  `json:"name"`
	Symbol       string  `json:"symbol"`
	Address      string  `json:"address"`
	PairAddress  string  `json:"pair_address"`
	DexID        string  `json:"dex_id,omitempty"`
	PriceUSD     string  `json:"price_usd"`
	Volume24hUSD float64 `json:"volume_24h_usd"`
	LiquidityUSD float64 `json:"liquidity_usd"`
	SourceURL    string  `json:"source_url,omitempty"`
	FetchedAt    string  `json:"fetched_at"`
}
