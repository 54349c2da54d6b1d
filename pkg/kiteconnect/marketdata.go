package kiteconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"kite-gateway/internal/model"
)

// wireQuote mirrors one entry of the Kite /quote response. Optional fields
// are pointers so index quotes (which omit volume/depth/OI) survive the
// round trip as nulls instead of zeroes.
type wireQuote struct {
	InstrumentToken   int64      `json:"instrument_token"`
	Timestamp         kiteTime   `json:"timestamp"`
	LastPrice         float64    `json:"last_price"`
	NetChange         float64    `json:"net_change"`
	OHLC              model.OHLC `json:"ohlc"`
	Volume            *int64     `json:"volume"`
	BuyQuantity       *int64     `json:"buy_quantity"`
	SellQuantity      *int64     `json:"sell_quantity"`
	LastQuantity      *int64     `json:"last_quantity"`
	AveragePrice      *float64   `json:"average_price"`
	LastTradeTime     *kiteTime  `json:"last_trade_time"`
	OI                *int64     `json:"oi"`
	OIDayHigh         *int64     `json:"oi_day_high"`
	OIDayLow          *int64     `json:"oi_day_low"`
	LowerCircuitLimit *float64   `json:"lower_circuit_limit"`
	UpperCircuitLimit *float64   `json:"upper_circuit_limit"`
	Depth             *model.Depth `json:"depth"`
}

// kiteTime parses the "2006-01-02 15:04:05" timestamps the API emits.
type kiteTime struct {
	time.Time
}

func (t *kiteTime) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == `""` {
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := time.Parse(kiteTimeLayout, s)
	if err != nil {
		// Some feeds emit RFC3339; accept either.
		parsed, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return nil // tolerate unknown formats rather than failing a quote
		}
	}
	t.Time = parsed
	return nil
}

// Quote fetches full quotes for up to 500 "EXCHANGE:TRADINGSYMBOL" keys.
func (c *Client) Quote(ctx context.Context, symbols []string) (map[string]model.Quote, error) {
	req, err := c.authedRequest(ctx)
	if err != nil {
		return nil, err
	}

	var out struct {
		Data map[string]wireQuote `json:"data"`
	}
	start := time.Now()
	resp, err := req.
		SetQueryParamsFromValues(url.Values{"i": symbols}).
		SetResult(&out).
		Get("/quote")
	cerr := c.checkResponse(resp, err)
	c.observe("quote", start, cerr)
	if cerr != nil {
		return nil, cerr
	}

	quotes := make(map[string]model.Quote, len(out.Data))
	for sym, w := range out.Data {
		q := model.Quote{
			Symbol:            sym,
			InstrumentToken:   w.InstrumentToken,
			LastPrice:         w.LastPrice,
			NetChange:         w.NetChange,
			OHLC:              w.OHLC,
			Volume:            w.Volume,
			BuyQuantity:       w.BuyQuantity,
			SellQuantity:      w.SellQuantity,
			LastQuantity:      w.LastQuantity,
			AveragePrice:      w.AveragePrice,
			OI:                w.OI,
			OIDayHigh:         w.OIDayHigh,
			OIDayLow:          w.OIDayLow,
			LowerCircuitLimit: w.LowerCircuitLimit,
			UpperCircuitLimit: w.UpperCircuitLimit,
			Depth:             w.Depth,
		}
		if !w.Timestamp.IsZero() {
			ts := w.Timestamp.Time
			q.Timestamp = &ts
		}
		if w.LastTradeTime != nil && !w.LastTradeTime.IsZero() {
			ltt := w.LastTradeTime.Time
			q.LastTradeTime = &ltt
		}
		quotes[sym] = q
	}
	return quotes, nil
}

// LTP fetches last traded prices for "EXCHANGE:TRADINGSYMBOL" keys.
func (c *Client) LTP(ctx context.Context, symbols []string) (map[string]float64, error) {
	req, err := c.authedRequest(ctx)
	if err != nil {
		return nil, err
	}

	var out struct {
		Data map[string]struct {
			LastPrice float64 `json:"last_price"`
		} `json:"data"`
	}
	start := time.Now()
	resp, err := req.
		SetQueryParamsFromValues(url.Values{"i": symbols}).
		SetResult(&out).
		Get("/quote/ltp")
	cerr := c.checkResponse(resp, err)
	c.observe("ltp", start, cerr)
	if cerr != nil {
		return nil, cerr
	}

	prices := make(map[string]float64, len(out.Data))
	for sym, v := range out.Data {
		prices[sym] = v.LastPrice
	}
	return prices, nil
}

// HistoricalCandles fetches OHLCV bars for an instrument token. interval
// must already be canonical ("minute", "5minute", "day", ...). Candles
// come back as mixed-type arrays [ts, o, h, l, c, v].
func (c *Client) HistoricalCandles(ctx context.Context, token int64, interval string, from, to time.Time) ([]model.Candle, error) {
	req, err := c.authedRequest(ctx)
	if err != nil {
		return nil, err
	}

	var out struct {
		Data struct {
			Candles [][]any `json:"candles"`
		} `json:"data"`
	}
	path := fmt.Sprintf("/instruments/historical/%d/%s", token, url.PathEscape(interval))
	start := time.Now()
	resp, err := req.
		SetQueryParams(map[string]string{
			"from": from.Format(kiteQueryLayout),
			"to":   to.Format(kiteQueryLayout),
		}).
		SetResult(&out).
		Get(path)
	cerr := c.checkResponse(resp, err)
	c.observe("historical", start, cerr)
	if cerr != nil {
		return nil, cerr
	}

	candles := make([]model.Candle, 0, len(out.Data.Candles))
	for _, row := range out.Data.Candles {
		candle, err := parseCandleRow(row)
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func parseCandleRow(row []any) (model.Candle, error) {
	if len(row) < 6 {
		return model.Candle{}, fmt.Errorf("malformed candle row: %v", row)
	}
	ts, err := parseCandleTime(row[0])
	if err != nil {
		return model.Candle{}, err
	}
	nums := make([]float64, 5)
	for i := 0; i < 5; i++ {
		f, ok := toFloat(row[i+1])
		if !ok {
			return model.Candle{}, fmt.Errorf("malformed candle field %d: %v", i+1, row[i+1])
		}
		nums[i] = f
	}
	return model.Candle{
		TS:     ts,
		Open:   nums[0],
		High:   nums[1],
		Low:    nums[2],
		Close:  nums[3],
		Volume: int64(nums[4]),
	}, nil
}

func parseCandleTime(v any) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("malformed candle timestamp: %v", v)
	}
	// Historical candles carry zone offsets without a colon, e.g.
	// "2024-01-15T09:15:00+0530", which RFC3339 rejects.
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05-0700", kiteTimeLayout} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("malformed candle timestamp %q", s)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
