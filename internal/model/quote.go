package model

import "time"

// DepthItem is one level of the order book depth in a full quote.
type DepthItem struct {
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
	Orders   int64   `json:"orders"`
}

// Depth holds the five-level buy/sell book of a full quote.
type Depth struct {
	Buy  []DepthItem `json:"buy"`
	Sell []DepthItem `json:"sell"`
}

// OHLC is the day open/high/low/previous-close block of a quote.
type OHLC struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Quote is a full market quote for one instrument. Index quotes carry only
// price fields; Volume/Depth/OI and friends stay nil for them.
type Quote struct {
	Symbol          string     `json:"symbol"`
	InstrumentToken int64      `json:"instrument_token"`
	Timestamp       *time.Time `json:"timestamp,omitempty"`
	LastPrice       float64    `json:"last_price"`
	NetChange       float64    `json:"net_change"`
	OHLC            OHLC       `json:"ohlc"`

	Volume            *int64     `json:"volume"`
	BuyQuantity       *int64     `json:"buy_quantity"`
	SellQuantity      *int64     `json:"sell_quantity"`
	LastQuantity      *int64     `json:"last_quantity"`
	AveragePrice      *float64   `json:"average_price"`
	LastTradeTime     *time.Time `json:"last_trade_time"`
	OI                *int64     `json:"oi"`
	OIDayHigh         *int64     `json:"oi_day_high"`
	OIDayLow          *int64     `json:"oi_day_low"`
	LowerCircuitLimit *float64   `json:"lower_circuit_limit"`
	UpperCircuitLimit *float64   `json:"upper_circuit_limit"`
	Depth             *Depth     `json:"depth"`
}
