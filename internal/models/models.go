package models

import "time"

// Exchange is read-only reference data describing one trading venue.
type Exchange struct {
	Name   string  `json:"name"`
	Fee    float64 `json:"fee"` // fractional taker fee, e.g. 0.001 = 0.1%
	Active bool    `json:"active"`
}

// TradingPair is read-only reference data for one base/quote combination.
// Symbol is the canonical spelling (e.g. BTC_USD); connectors are responsible
// for mapping their exchange-native spellings onto it.
type TradingPair struct {
	Symbol string `json:"symbol"`
	Base   string `json:"base"`
	Quote  string `json:"quote"`
	Active bool   `json:"active"`
}

// Quote is one exchange's current observation for one trading pair. The quote
// store keeps at most one per (exchange, pair) key; newer observations
// overwrite older ones.
type Quote struct {
	Exchange   string    `json:"exchange"`
	Pair       string    `json:"pair"`
	LastPrice  float64   `json:"last_price"`
	Bid        float64   `json:"bid"`
	Ask        float64   `json:"ask"`
	Volume24h  float64   `json:"volume_24h"`
	ObservedAt time.Time `json:"observed_at"` // receipt time, not the exchange's own timestamp
}

// Opportunity is one fee-adjusted cross-exchange arbitrage candidate. Derived
// output, recomputed on every match pass, never persisted.
type Opportunity struct {
	Pair         string        `json:"pair"`
	BuyExchange  string        `json:"buy_exchange"`
	SellExchange string        `json:"sell_exchange"`
	BuyPrice     float64       `json:"buy_price"`  // best ask
	SellPrice    float64       `json:"sell_price"` // best bid
	SpreadPct    float64       `json:"spread_pct"`
	ProfitPct    float64       `json:"profit_pct"` // after both exchanges' fees
	MaxQuoteAge  time.Duration `json:"max_quote_age"`
}
