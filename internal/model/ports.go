package model

import (
	"context"
	"time"
)

// ── Broker Port Interface ──
// BrokerClient decouples the gateway core from the concrete broker adapter
// (pkg/kiteconnect in production, fakes in tests). Every method takes a
// context and is expected to respect its deadline.

// BrokerClient is the upstream order/market-data API the gateway mediates.
type BrokerClient interface {
	// Instruments returns the full instrument master for one exchange.
	Instruments(ctx context.Context, exchange string) ([]Instrument, error)

	// Quote fetches full quotes keyed by "EXCHANGE:TRADINGSYMBOL".
	Quote(ctx context.Context, symbols []string) (map[string]Quote, error)

	// LTP fetches last traded prices keyed by "EXCHANGE:TRADINGSYMBOL".
	LTP(ctx context.Context, symbols []string) (map[string]float64, error)

	// HistoricalCandles fetches candles for an instrument token at a
	// canonical broker interval ("minute", "5minute", "day", ...).
	HistoricalCandles(ctx context.Context, token int64, interval string, from, to time.Time) ([]Candle, error)

	// PlaceOrder submits a new order and returns the broker order ID.
	PlaceOrder(ctx context.Context, req OrderRequest) (string, error)

	// ModifyOrder amends an open order.
	ModifyOrder(ctx context.Context, variety, orderID string, req OrderRequest) error

	// CancelOrder cancels an open order.
	CancelOrder(ctx context.Context, variety, orderID string) error

	// Orders returns the full order book for the day.
	Orders(ctx context.Context) ([]Order, error)

	// Positions returns the net position book.
	Positions(ctx context.Context) ([]Position, error)
}
