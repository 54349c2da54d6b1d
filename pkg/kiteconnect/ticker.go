package kiteconnect

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	tickerRootURI = "wss://ws.kite.trade"

	// Reconnect policy for the ticker stream.
	tickerMaxRetries   = 10
	tickerBaseDelay    = 2 * time.Second
	tickerMaxDelay     = 60 * time.Second
	tickerWriteTimeout = 5 * time.Second
	tickerReadTimeout  = 30 * time.Second
)

// Tick is one LTP-mode tick from the stream.
type Tick struct {
	Token     int64
	LastPrice float64
	Received  time.Time
}

// Ticker consumes the Kite websocket stream in LTP mode and maintains a
// last-price cache. It reconnects with exponential backoff and
// resubscribes to every previously subscribed token.
type Ticker struct {
	client *Client
	uri    string

	mu     sync.Mutex
	conn   *websocket.Conn
	tokens map[int64]bool // desired subscriptions, survive reconnects

	cacheMu sync.RWMutex
	cache   map[int64]Tick

	// OnReconnect is called before each reconnect attempt (metrics hook).
	OnReconnect func()
}

// NewTicker creates a ticker bound to the client's session. The stream
// connects when Run is called.
func NewTicker(client *Client) *Ticker {
	return &Ticker{
		client: client,
		uri:    tickerRootURI,
		tokens: make(map[int64]bool),
		cache:  make(map[int64]Tick),
	}
}

// Subscribe adds instrument tokens to the LTP stream. Safe before or
// after Run; tokens are (re)subscribed on every connect.
func (t *Ticker) Subscribe(tokens ...int64) error {
	t.mu.Lock()
	for _, tok := range tokens {
		t.tokens[tok] = true
	}
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return nil // subscribed on next connect
	}
	return t.sendSubscribe(conn, tokens)
}

// Unsubscribe removes tokens from the stream.
func (t *Ticker) Unsubscribe(tokens ...int64) error {
	t.mu.Lock()
	for _, tok := range tokens {
		delete(t.tokens, tok)
	}
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	msg := map[string]any{"a": "unsubscribe", "v": tokens}
	return t.writeJSON(conn, msg)
}

// LastPrice returns the cached LTP for a token.
func (t *Ticker) LastPrice(token int64) (Tick, bool) {
	t.cacheMu.RLock()
	tick, ok := t.cache[token]
	t.cacheMu.RUnlock()
	return tick, ok
}

// Run connects and consumes the stream until ctx is cancelled,
// reconnecting on failures up to the retry cap.
func (t *Ticker) Run(ctx context.Context) error {
	retries := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := t.connectAndConsume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		retries++
		if retries > tickerMaxRetries {
			return fmt.Errorf("ticker: giving up after %d reconnect attempts: %w", tickerMaxRetries, err)
		}
		if t.OnReconnect != nil {
			t.OnReconnect()
		}

		delay := tickerBaseDelay << (retries - 1)
		if delay > tickerMaxDelay || delay <= 0 {
			delay = tickerMaxDelay
		}
		log.Printf("[ticker] connection lost (%v), reconnecting in %s (attempt %d/%d)",
			err, delay, retries, tickerMaxRetries)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (t *Ticker) connectAndConsume(ctx context.Context) error {
	apiKey, accessToken := t.client.Credentials()
	if accessToken == "" {
		return fmt.Errorf("ticker: no access token, login first")
	}

	uri := fmt.Sprintf("%s?api_key=%s&access_token=%s", t.uri, apiKey, accessToken)
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, uri, nil)
	if err != nil {
		return fmt.Errorf("ticker dial: %w", err)
	}
	defer conn.Close()

	t.mu.Lock()
	t.conn = conn
	resubscribe := make([]int64, 0, len(t.tokens))
	for tok := range t.tokens {
		resubscribe = append(resubscribe, tok)
	}
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.conn = nil
		t.mu.Unlock()
	}()

	if len(resubscribe) > 0 {
		if err := t.sendSubscribe(conn, resubscribe); err != nil {
			return err
		}
		log.Printf("[ticker] subscribed %d tokens", len(resubscribe))
	}

	// Close the connection when ctx is cancelled so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(tickerReadTimeout))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("ticker read: %w", err)
		}
		if msgType != websocket.BinaryMessage || len(data) < 2 {
			continue // text frames are order postbacks/errors, heartbeats are 1 byte
		}
		t.parseBinary(data)
	}
}

func (t *Ticker) sendSubscribe(conn *websocket.Conn, tokens []int64) error {
	if err := t.writeJSON(conn, map[string]any{"a": "subscribe", "v": tokens}); err != nil {
		return err
	}
	return t.writeJSON(conn, map[string]any{"a": "mode", "v": []any{"ltp", tokens}})
}

func (t *Ticker) writeJSON(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(tickerWriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("ticker write: %w", err)
	}
	return nil
}

// parseBinary splits a binary frame into packets and folds LTP ticks into
// the cache. Frame layout: [count:2][len:2][packet]...; an LTP packet is
// [token:4][ltp_paise:4], all big endian.
func (t *Ticker) parseBinary(data []byte) {
	count := int(binary.BigEndian.Uint16(data[0:2]))
	offset := 2
	now := time.Now()

	for i := 0; i < count; i++ {
		if offset+2 > len(data) {
			return
		}
		pktLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
		offset += 2
		if offset+pktLen > len(data) {
			return
		}
		pkt := data[offset : offset+pktLen]
		offset += pktLen

		if pktLen < 8 {
			continue
		}
		token := int64(binary.BigEndian.Uint32(pkt[0:4]))
		ltpPaise := int32(binary.BigEndian.Uint32(pkt[4:8]))

		t.cacheMu.Lock()
		t.cache[token] = Tick{
			Token:     token,
			LastPrice: float64(ltpPaise) / 100.0,
			Received:  now,
		}
		t.cacheMu.Unlock()
	}
}
