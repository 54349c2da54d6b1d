package model

import "time"

// Candle represents one OHLCV bar from the Kite historical API.
// Prices are in rupees as returned by the broker. Candle slices are
// ordered by ascending timestamp and treated as immutable once fetched.
type Candle struct {
	TS     time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}
