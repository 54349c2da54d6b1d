package model

import "time"

// Order statuses as reported by the broker. PENDING is the local status
// assigned on placement before the first poll observes the broker's view.
const (
	StatusPending   = "PENDING"
	StatusOpen      = "OPEN"
	StatusComplete  = "COMPLETE"
	StatusCancelled = "CANCELLED"
	StatusRejected  = "REJECTED"
)

// TerminalStatus reports whether an order status is terminal. Terminal
// orders are never deleted from the local store, only stop changing.
func TerminalStatus(s string) bool {
	return s == StatusComplete || s == StatusCancelled || s == StatusRejected
}

// Order represents a broker order tracked by the gateway.
type Order struct {
	OrderID         string    `json:"order_id"`
	Exchange        string    `json:"exchange"`
	TradingSymbol   string    `json:"tradingsymbol"`
	TransactionType string    `json:"transaction_type"` // BUY, SELL
	OrderType       string    `json:"order_type"`       // MARKET, LIMIT, SL, SL-M
	Product         string    `json:"product"`          // CNC, MIS, NRML, BO
	Variety         string    `json:"variety"`          // regular, bo, amo
	Qty             int64     `json:"quantity"`
	Price           float64   `json:"price"`
	TriggerPrice    float64   `json:"trigger_price"`
	Status          string    `json:"status"`
	StatusMessage   string    `json:"status_message,omitempty"`
	FilledQty       int64     `json:"filled_quantity"`
	AvgPrice        float64   `json:"average_price"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// OrderRequest is a normalized place/modify request, validated by the
// order manager before any broker call.
type OrderRequest struct {
	Exchange        string  `json:"exchange"`
	TradingSymbol   string  `json:"tradingsymbol"`
	TransactionType string  `json:"transaction_type"`
	OrderType       string  `json:"order_type"`
	Product         string  `json:"product"`
	Variety         string  `json:"variety"`
	Qty             int64   `json:"quantity"`
	Price           float64 `json:"price"`
	TriggerPrice    float64 `json:"trigger_price"`

	// Bracket order legs: absolute stop-loss and squareoff (target) prices.
	// Only meaningful when Product is BO.
	Stoploss  float64 `json:"stoploss,omitempty"`
	Squareoff float64 `json:"squareoff,omitempty"`
}
