package api

import "kite-gateway/internal/model"

// targetCalcRequest computes ATR stop/target levels for an entry.
// Optional fields fall back to the configured engine defaults.
type targetCalcRequest struct {
	Symbol           string  `json:"symbol" binding:"required"`
	EntryPrice       float64 `json:"entry_price" binding:"required"`
	Direction        string  `json:"direction"`
	Period           int     `json:"period"`
	Interval         string  `json:"interval"`
	StopMultiplier   float64 `json:"stop_multiplier"`
	TargetMultiplier float64 `json:"target_multiplier"`
}

type riskCheckRequest struct {
	Entry    float64 `json:"entry" binding:"required"`
	StopLoss float64 `json:"stop_loss" binding:"required"`
	Quantity int64   `json:"quantity" binding:"required"`
}

type modifyOrderRequest struct {
	OrderID string `json:"order_id" binding:"required"`
	model.OrderRequest
}

type cancelOrderRequest struct {
	OrderID string `json:"order_id" binding:"required"`
}

type ltpRequest struct {
	Symbols []string `json:"symbols" binding:"required"`
}

type webhookSubscribeRequest struct {
	URL    string `json:"url" binding:"required"`
	Filter string `json:"filter"`
}
