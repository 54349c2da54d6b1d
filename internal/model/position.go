package model

// Position represents one net position from the broker position book,
// reduced to the fields the gateway exposes.
type Position struct {
	TradingSymbol string  `json:"symbol"`
	Exchange      string  `json:"exchange"`
	Product       string  `json:"product"`
	Qty           int64   `json:"quantity"`
	AvgPrice      float64 `json:"average_price"`
	LastPrice     float64 `json:"last_price"`
	PnL           float64 `json:"pnl"`
}
