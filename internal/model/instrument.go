package model

import "strconv"

// Instrument represents a tradeable instrument from the Kite instrument master.
type Instrument struct {
	Token          int64   `json:"instrument_token"`
	Exchange       string  `json:"exchange"` // NSE, BSE, NFO, INDICES, ...
	TradingSymbol  string  `json:"tradingsymbol"`
	Name           string  `json:"name"`
	InstrumentType string  `json:"instrument_type"` // EQ, FUT, CE, PE
	Segment        string  `json:"segment"`
	LotSize        int     `json:"lot_size"`
	TickSize       float64 `json:"tick_size"`
}

// Key returns the cache key for this instrument: "EXCHANGE:TRADINGSYMBOL".
func (i *Instrument) Key() string {
	return i.Exchange + ":" + i.TradingSymbol
}

// TokenString returns the instrument token in string form, as used in
// quote/LTP request paths.
func (i *Instrument) TokenString() string {
	return strconv.FormatInt(i.Token, 10)
}
