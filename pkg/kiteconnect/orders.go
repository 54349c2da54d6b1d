package kiteconnect

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"kite-gateway/internal/model"
)

// orderFormData flattens an order request into the form fields the Kite
// order endpoints expect. Zero-valued optional prices are omitted.
func orderFormData(req model.OrderRequest) map[string]string {
	form := map[string]string{
		"exchange":         req.Exchange,
		"tradingsymbol":    req.TradingSymbol,
		"transaction_type": req.TransactionType,
		"order_type":       req.OrderType,
		"product":          req.Product,
		"quantity":         strconv.FormatInt(req.Qty, 10),
		"validity":         "DAY",
	}
	if req.Price > 0 {
		form["price"] = strconv.FormatFloat(req.Price, 'f', -1, 64)
	}
	if req.TriggerPrice > 0 {
		form["trigger_price"] = strconv.FormatFloat(req.TriggerPrice, 'f', -1, 64)
	}
	if req.Stoploss > 0 {
		form["stoploss"] = strconv.FormatFloat(req.Stoploss, 'f', -1, 64)
	}
	if req.Squareoff > 0 {
		form["squareoff"] = strconv.FormatFloat(req.Squareoff, 'f', -1, 64)
	}
	return form
}

// PlaceOrder submits a new order on the request's variety and returns the
// broker order ID.
func (c *Client) PlaceOrder(ctx context.Context, req model.OrderRequest) (string, error) {
	r, err := c.authedRequest(ctx)
	if err != nil {
		return "", err
	}

	var out struct {
		Data struct {
			OrderID string `json:"order_id"`
		} `json:"data"`
	}
	start := time.Now()
	resp, err := r.
		SetFormData(orderFormData(req)).
		SetResult(&out).
		Post("/orders/" + url.PathEscape(req.Variety))
	cerr := c.checkResponse(resp, err)
	c.observe("place_order", start, cerr)
	if cerr != nil {
		return "", cerr
	}
	return out.Data.OrderID, nil
}

// ModifyOrder amends an open order.
func (c *Client) ModifyOrder(ctx context.Context, variety, orderID string, req model.OrderRequest) error {
	r, err := c.authedRequest(ctx)
	if err != nil {
		return err
	}
	start := time.Now()
	resp, err := r.
		SetFormData(orderFormData(req)).
		Put("/orders/" + url.PathEscape(variety) + "/" + url.PathEscape(orderID))
	cerr := c.checkResponse(resp, err)
	c.observe("modify_order", start, cerr)
	return cerr
}

// CancelOrder cancels an open order.
func (c *Client) CancelOrder(ctx context.Context, variety, orderID string) error {
	r, err := c.authedRequest(ctx)
	if err != nil {
		return err
	}
	start := time.Now()
	resp, err := r.Delete("/orders/" + url.PathEscape(variety) + "/" + url.PathEscape(orderID))
	cerr := c.checkResponse(resp, err)
	c.observe("cancel_order", start, cerr)
	return cerr
}

// wireOrder mirrors one entry of the Kite order book.
type wireOrder struct {
	OrderID         string   `json:"order_id"`
	Exchange        string   `json:"exchange"`
	TradingSymbol   string   `json:"tradingsymbol"`
	TransactionType string   `json:"transaction_type"`
	OrderType       string   `json:"order_type"`
	Product         string   `json:"product"`
	Variety         string   `json:"variety"`
	Status          string   `json:"status"`
	StatusMessage   string   `json:"status_message"`
	Qty             int64    `json:"quantity"`
	FilledQty       int64    `json:"filled_quantity"`
	Price           float64  `json:"price"`
	TriggerPrice    float64  `json:"trigger_price"`
	AvgPrice        float64  `json:"average_price"`
	OrderTimestamp  kiteTime `json:"order_timestamp"`
}

// Orders returns the order book for the day.
func (c *Client) Orders(ctx context.Context) ([]model.Order, error) {
	r, err := c.authedRequest(ctx)
	if err != nil {
		return nil, err
	}

	var out struct {
		Data []wireOrder `json:"data"`
	}
	start := time.Now()
	resp, err := r.SetResult(&out).Get("/orders")
	cerr := c.checkResponse(resp, err)
	c.observe("orders", start, cerr)
	if cerr != nil {
		return nil, cerr
	}

	orders := make([]model.Order, 0, len(out.Data))
	for _, w := range out.Data {
		orders = append(orders, model.Order{
			OrderID:         w.OrderID,
			Exchange:        w.Exchange,
			TradingSymbol:   w.TradingSymbol,
			TransactionType: w.TransactionType,
			OrderType:       w.OrderType,
			Product:         w.Product,
			Variety:         w.Variety,
			Status:          w.Status,
			StatusMessage:   w.StatusMessage,
			Qty:             w.Qty,
			FilledQty:       w.FilledQty,
			Price:           w.Price,
			TriggerPrice:    w.TriggerPrice,
			AvgPrice:        w.AvgPrice,
			UpdatedAt:       w.OrderTimestamp.Time,
		})
	}
	return orders, nil
}

// Positions returns the net position book mapped to the gateway's view.
func (c *Client) Positions(ctx context.Context) ([]model.Position, error) {
	r, err := c.authedRequest(ctx)
	if err != nil {
		return nil, err
	}

	var out struct {
		Data struct {
			Net []struct {
				TradingSymbol string  `json:"tradingsymbol"`
				Exchange      string  `json:"exchange"`
				Product       string  `json:"product"`
				Qty           int64   `json:"quantity"`
				AvgPrice      float64 `json:"average_price"`
				LastPrice     float64 `json:"last_price"`
				PnL           float64 `json:"pnl"`
			} `json:"net"`
		} `json:"data"`
	}
	start := time.Now()
	resp, err := r.SetResult(&out).Get("/portfolio/positions")
	cerr := c.checkResponse(resp, err)
	c.observe("positions", start, cerr)
	if cerr != nil {
		return nil, cerr
	}

	positions := make([]model.Position, 0, len(out.Data.Net))
	for _, w := range out.Data.Net {
		positions = append(positions, model.Position{
			TradingSymbol: w.TradingSymbol,
			Exchange:      w.Exchange,
			Product:       w.Product,
			Qty:           w.Qty,
			AvgPrice:      w.AvgPrice,
			LastPrice:     w.LastPrice,
			PnL:           w.PnL,
		})
	}
	return positions, nil
}
