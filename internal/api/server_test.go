package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kite-gateway/config"
	"kite-gateway/internal/apierr"
	"kite-gateway/internal/instruments"
	"kite-gateway/internal/metrics"
	"kite-gateway/internal/model"
	"kite-gateway/internal/orders"
	"kite-gateway/internal/webhook"
	"kite-gateway/pkg/kiteconnect"
)

const testAPIKey = "internal-test-key"

// ---- fakes ----

type fakeBroker struct {
	instruments []model.Instrument
	quotes      map[string]model.Quote
	ltp         map[string]float64
	candles     []model.Candle
	orders      []model.Order
	positions   []model.Position

	placeID  string
	placeErr error

	lastQuoteSymbols []string
	lastLTPSymbols   []string
	placeCalls       int
}

func (f *fakeBroker) Instruments(ctx context.Context, exchange string) ([]model.Instrument, error) {
	return f.instruments, nil
}

func (f *fakeBroker) Quote(ctx context.Context, symbols []string) (map[string]model.Quote, error) {
	f.lastQuoteSymbols = symbols
	out := map[string]model.Quote{}
	for _, s := range symbols {
		if q, ok := f.quotes[s]; ok {
			out[s] = q
		}
	}
	return out, nil
}

func (f *fakeBroker) LTP(ctx context.Context, symbols []string) (map[string]float64, error) {
	f.lastLTPSymbols = symbols
	return f.ltp, nil
}

func (f *fakeBroker) HistoricalCandles(ctx context.Context, token int64, interval string, from, to time.Time) ([]model.Candle, error) {
	return f.candles, nil
}

func (f *fakeBroker) PlaceOrder(ctx context.Context, req model.OrderRequest) (string, error) {
	f.placeCalls++
	if f.placeErr != nil {
		return "", f.placeErr
	}
	return f.placeID, nil
}

func (f *fakeBroker) ModifyOrder(ctx context.Context, variety, orderID string, req model.OrderRequest) error {
	return nil
}

func (f *fakeBroker) CancelOrder(ctx context.Context, variety, orderID string) error {
	return nil
}

func (f *fakeBroker) Orders(ctx context.Context) ([]model.Order, error) {
	return f.orders, nil
}

func (f *fakeBroker) Positions(ctx context.Context) ([]model.Position, error) {
	return f.positions, nil
}

type fakeAuth struct {
	connected bool
	session   kiteconnect.Session
	genErr    error
	gotToken  string
}

func (f *fakeAuth) LoginURL() string { return "https://kite.zerodha.com/connect/login?v=3&api_key=x" }

func (f *fakeAuth) GenerateSession(ctx context.Context, requestToken string) (kiteconnect.Session, error) {
	f.gotToken = requestToken
	if f.genErr != nil {
		return kiteconnect.Session{}, f.genErr
	}
	f.connected = true
	return f.session, nil
}

func (f *fakeAuth) CurrentSession() (kiteconnect.Session, bool) {
	return f.session, f.connected
}

// fakeTicker is an in-memory tick cache standing in for the websocket
// stream.
type fakeTicker struct {
	ticks      map[int64]kiteconnect.Tick
	subscribed []int64
}

func (f *fakeTicker) Subscribe(tokens ...int64) error {
	f.subscribed = append(f.subscribed, tokens...)
	return nil
}

func (f *fakeTicker) LastPrice(token int64) (kiteconnect.Tick, bool) {
	tick, ok := f.ticks[token]
	return tick, ok
}

// ---- harness ----

func testInstruments() []model.Instrument {
	return []model.Instrument{
		{Token: 408065, Exchange: "NSE", TradingSymbol: "INFY", Name: "INFOSYS", InstrumentType: "EQ", Segment: "NSE"},
		{Token: 738561, Exchange: "NSE", TradingSymbol: "RELIANCE", Name: "RELIANCE INDUSTRIES", InstrumentType: "EQ", Segment: "NSE"},
	}
}

func newTestServer(t *testing.T, broker *fakeBroker, auth *fakeAuth) (*Server, http.Handler) {
	t.Helper()
	return newTestServerWithTicker(t, broker, auth, nil)
}

func newTestServerWithTicker(t *testing.T, broker *fakeBroker, auth *fakeAuth, ticker TickStream) (*Server, http.Handler) {
	t.Helper()
	cfg := config.Config{
		InternalAPIKey:   testAPIKey,
		DefaultExchange:  "NSE",
		ATRPeriod:        3,
		ATRInterval:      "5m",
		StopMultiplier:   1.5,
		TargetMultiplier: 3.0,
	}
	registry := webhook.NewRegistry()
	dispatcher := webhook.NewDispatcher(registry, webhook.Config{Workers: 1}, nil)
	srv := New(
		cfg,
		auth,
		broker,
		instruments.NewResolver(broker, "NSE", nil),
		orders.NewManager(broker, orders.NewStore()),
		registry,
		dispatcher,
		ticker,
		metrics.NewHealthStatus(),
	)
	return srv, srv.Router()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, withKey bool) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if withKey {
		req.Header.Set("x-api-key", testAPIKey)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	out := map[string]any{}
	if strings.Contains(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("unmarshal response %q: %v", w.Body.String(), err)
		}
	}
	return w, out
}

// ---- auth & middleware ----

func TestAPIKeyMissing(t *testing.T) {
	_, h := newTestServer(t, &fakeBroker{}, &fakeAuth{})
	w, body := doJSON(t, h, http.MethodGet, "/auth/status", nil, false)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if body["detail"] != "Not authenticated" {
		t.Errorf("detail = %v", body["detail"])
	}
}

func TestAPIKeyWrong(t *testing.T) {
	_, h := newTestServer(t, &fakeBroker{}, &fakeAuth{})
	req := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
	req.Header.Set("x-api-key", "wrong")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Invalid or missing API Key") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestHealthIsPublic(t *testing.T) {
	_, h := newTestServer(t, &fakeBroker{}, &fakeAuth{})
	w, body := doJSON(t, h, http.MethodGet, "/health", nil, false)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body["ok"] != true {
		t.Errorf("ok = %v", body["ok"])
	}
	if _, present := body["uptime"]; !present {
		t.Error("uptime missing")
	}
}

func TestAuthStatus(t *testing.T) {
	auth := &fakeAuth{}
	_, h := newTestServer(t, &fakeBroker{}, auth)

	_, body := doJSON(t, h, http.MethodGet, "/auth/status", nil, true)
	if body["connected"] != false || body["expires_at"] != nil {
		t.Errorf("disconnected status = %v", body)
	}

	auth.connected = true
	auth.session = kiteconnect.Session{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)}
	_, body = doJSON(t, h, http.MethodGet, "/auth/status", nil, true)
	if body["connected"] != true || body["expires_at"] == nil {
		t.Errorf("connected status = %v", body)
	}
}

func TestAuthCallback(t *testing.T) {
	auth := &fakeAuth{session: kiteconnect.Session{UserID: "AB1234", ExpiresAt: time.Now().Add(time.Hour)}}
	_, h := newTestServer(t, &fakeBroker{}, auth)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?request_token=rt123&status=success", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Login successful") {
		t.Errorf("body = %s", w.Body.String())
	}
	if auth.gotToken != "rt123" {
		t.Errorf("request token = %q", auth.gotToken)
	}

	// Missing request token still renders a page with status 200.
	req = httptest.NewRequest(http.MethodGet, "/auth/callback", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Login failed") {
		t.Errorf("code = %d body = %s", w.Code, w.Body.String())
	}
}

func TestAuthCallbackBrokerFailure(t *testing.T) {
	auth := &fakeAuth{genErr: apierr.E(apierr.KindBroker, "token exchange failed")}
	_, h := newTestServer(t, &fakeBroker{}, auth)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?request_token=bad", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 even on failure", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Login failed") {
		t.Errorf("body = %s", w.Body.String())
	}
}

// ---- target & risk ----

func TestTargetCalcWithDefaults(t *testing.T) {
	broker := &fakeBroker{
		instruments: testInstruments(),
		candles: []model.Candle{
			{High: 110, Low: 100, Close: 105},
			{High: 112, Low: 104, Close: 108},
			{High: 115, Low: 107, Close: 110},
			{High: 113, Low: 106, Close: 109},
		},
	}
	_, h := newTestServer(t, broker, &fakeAuth{})

	w, body := doJSON(t, h, http.MethodPost, "/target/calc",
		map[string]any{"symbol": "infy", "entry_price": 109.0}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %v", w.Code, body)
	}
	if body["direction"] != "LONG" || body["method"] != "sma" {
		t.Errorf("defaults not applied: %v", body)
	}
	if body["symbol"] != "NSE:INFY" {
		t.Errorf("symbol = %v", body["symbol"])
	}
	atr := body["atr_value"].(float64)
	stop := body["stop_loss"].(float64)
	target := body["target"].(float64)
	if atr <= 0 || stop >= 109.0 || target <= 109.0 {
		t.Errorf("levels wrong: atr=%v stop=%v target=%v", atr, stop, target)
	}
}

func TestTargetCalcUnknownSymbol(t *testing.T) {
	broker := &fakeBroker{instruments: testInstruments()}
	_, h := newTestServer(t, broker, &fakeAuth{})

	w, body := doJSON(t, h, http.MethodPost, "/target/calc",
		map[string]any{"symbol": "NOSUCH", "entry_price": 100.0}, true)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d body = %v", w.Code, body)
	}
}

func TestTargetCalcBadInterval(t *testing.T) {
	_, h := newTestServer(t, &fakeBroker{instruments: testInstruments()}, &fakeAuth{})
	w, _ := doJSON(t, h, http.MethodPost, "/target/calc",
		map[string]any{"symbol": "INFY", "entry_price": 100.0, "interval": "7m"}, true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestRiskCheck(t *testing.T) {
	_, h := newTestServer(t, &fakeBroker{}, &fakeAuth{})
	w, body := doJSON(t, h, http.MethodPost, "/risk/check",
		map[string]any{"entry": 100.0, "stop_loss": 98.0, "quantity": 50}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %v", w.Code, body)
	}
	if body["cash_risk"] != 100.0 {
		t.Errorf("cash_risk = %v, want 100", body["cash_risk"])
	}
}

func TestRiskCheckRejectsBadQuantity(t *testing.T) {
	_, h := newTestServer(t, &fakeBroker{}, &fakeAuth{})
	w, _ := doJSON(t, h, http.MethodPost, "/risk/check",
		map[string]any{"entry": 100.0, "stop_loss": 98.0, "quantity": -5}, true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// ---- orders ----

func TestPlaceOrder(t *testing.T) {
	broker := &fakeBroker{placeID: "ORD-1"}
	srv, h := newTestServer(t, broker, &fakeAuth{})

	w, body := doJSON(t, h, http.MethodPost, "/place_order", map[string]any{
		"exchange":         "NSE",
		"tradingsymbol":    "INFY",
		"transaction_type": "BUY",
		"order_type":       "MARKET",
		"product":          "MIS",
		"quantity":         10,
	}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %v", w.Code, body)
	}
	if body["order_id"] != "ORD-1" {
		t.Errorf("order_id = %v", body["order_id"])
	}
	if _, ok := srv.manager.Store().Get("ORD-1"); !ok {
		t.Error("placed order not tracked in store")
	}
}

func TestPlaceOrderValidationSkipsBroker(t *testing.T) {
	broker := &fakeBroker{placeID: "ORD-1"}
	_, h := newTestServer(t, broker, &fakeAuth{})

	w, _ := doJSON(t, h, http.MethodPost, "/place_order", map[string]any{
		"exchange":         "NSE",
		"tradingsymbol":    "INFY",
		"transaction_type": "BUY",
		"order_type":       "TELEPATHY",
		"product":          "MIS",
		"quantity":         10,
	}, true)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if broker.placeCalls != 0 {
		t.Errorf("broker called %d times on invalid order", broker.placeCalls)
	}
}

func TestPlaceOrderBrokerFailure(t *testing.T) {
	broker := &fakeBroker{placeErr: apierr.E(apierr.KindBroker, "margin exceeded")}
	_, h := newTestServer(t, broker, &fakeAuth{})

	w, body := doJSON(t, h, http.MethodPost, "/place_order", map[string]any{
		"exchange":         "NSE",
		"tradingsymbol":    "INFY",
		"transaction_type": "BUY",
		"order_type":       "MARKET",
		"product":          "MIS",
		"quantity":         10,
	}, true)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	if body["detail"] != "margin exceeded" {
		t.Errorf("detail = %v", body["detail"])
	}
}

func TestOrdersMergesLocalAndBroker(t *testing.T) {
	broker := &fakeBroker{
		placeID: "LOCAL-1",
		orders: []model.Order{
			{OrderID: "BROKER-1", Status: model.StatusComplete},
		},
	}
	_, h := newTestServer(t, broker, &fakeAuth{})

	doJSON(t, h, http.MethodPost, "/place_order", map[string]any{
		"exchange":         "NSE",
		"tradingsymbol":    "INFY",
		"transaction_type": "BUY",
		"order_type":       "MARKET",
		"product":          "MIS",
		"quantity":         1,
	}, true)

	w, body := doJSON(t, h, http.MethodGet, "/orders", nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	list := body["orders"].([]any)
	if len(list) != 2 {
		t.Fatalf("got %d orders, want broker row plus local row", len(list))
	}
}

// ---- market data ----

func TestQuoteSmartSymbol(t *testing.T) {
	broker := &fakeBroker{quotes: map[string]model.Quote{
		"NSE:INFY": {Symbol: "NSE:INFY", LastPrice: 1500.5},
	}}
	_, h := newTestServer(t, broker, &fakeAuth{})

	w, body := doJSON(t, h, http.MethodGet, "/quote?symbol=infy", nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %v", w.Code, body)
	}
	if body["last_price"] != 1500.5 {
		t.Errorf("last_price = %v", body["last_price"])
	}
	if len(broker.lastQuoteSymbols) != 1 || broker.lastQuoteSymbols[0] != "NSE:INFY" {
		t.Errorf("broker asked for %v", broker.lastQuoteSymbols)
	}
}

func TestQuoteIndexSymbol(t *testing.T) {
	broker := &fakeBroker{quotes: map[string]model.Quote{}}
	_, h := newTestServer(t, broker, &fakeAuth{})

	doJSON(t, h, http.MethodGet, "/quote?symbol=nifty+50", nil, true)
	if len(broker.lastQuoteSymbols) != 1 || broker.lastQuoteSymbols[0] != "INDICES:NIFTY 50" {
		t.Errorf("broker asked for %v", broker.lastQuoteSymbols)
	}
}

func TestQuoteNotFound(t *testing.T) {
	_, h := newTestServer(t, &fakeBroker{quotes: map[string]model.Quote{}}, &fakeAuth{})
	w, _ := doJSON(t, h, http.MethodGet, "/quote?symbol=GHOST", nil, true)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestLTPServedFromTickCache(t *testing.T) {
	broker := &fakeBroker{
		instruments: testInstruments(),
		ltp:         map[string]float64{"INDICES:NIFTY 50": 21500.0},
	}
	ticker := &fakeTicker{ticks: map[int64]kiteconnect.Tick{
		408065: {Token: 408065, LastPrice: 1500.5, Received: time.Now()},
	}}
	_, h := newTestServerWithTicker(t, broker, &fakeAuth{}, ticker)

	w, body := doJSON(t, h, http.MethodPost, "/ltp",
		map[string]any{"symbols": []string{"infy", "nifty 50"}}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %v", w.Code, body)
	}
	prices := body["ltp"].(map[string]any)
	if prices["NSE:INFY"] != 1500.5 {
		t.Errorf("NSE:INFY = %v, want streamed 1500.5", prices["NSE:INFY"])
	}
	if prices["INDICES:NIFTY 50"] != 21500.0 {
		t.Errorf("INDICES:NIFTY 50 = %v", prices["INDICES:NIFTY 50"])
	}
	// Only the index should have gone over REST.
	if len(broker.lastLTPSymbols) != 1 || broker.lastLTPSymbols[0] != "INDICES:NIFTY 50" {
		t.Errorf("REST asked for %v, want only the index", broker.lastLTPSymbols)
	}
}

func TestLTPCacheMissSubscribesAndFallsBack(t *testing.T) {
	broker := &fakeBroker{
		instruments: testInstruments(),
		ltp:         map[string]float64{"NSE:INFY": 1499.0},
	}
	ticker := &fakeTicker{ticks: map[int64]kiteconnect.Tick{}}
	_, h := newTestServerWithTicker(t, broker, &fakeAuth{}, ticker)

	w, body := doJSON(t, h, http.MethodPost, "/ltp",
		map[string]any{"symbols": []string{"infy"}}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %v", w.Code, body)
	}
	prices := body["ltp"].(map[string]any)
	if prices["NSE:INFY"] != 1499.0 {
		t.Errorf("NSE:INFY = %v, want REST 1499.0", prices["NSE:INFY"])
	}
	if len(ticker.subscribed) != 1 || ticker.subscribed[0] != 408065 {
		t.Errorf("subscribed = %v, want [408065]", ticker.subscribed)
	}
}

func TestLTPStaleTickFallsBackToREST(t *testing.T) {
	broker := &fakeBroker{
		instruments: testInstruments(),
		ltp:         map[string]float64{"NSE:INFY": 1501.0},
	}
	ticker := &fakeTicker{ticks: map[int64]kiteconnect.Tick{
		408065: {Token: 408065, LastPrice: 1490.0, Received: time.Now().Add(-time.Minute)},
	}}
	_, h := newTestServerWithTicker(t, broker, &fakeAuth{}, ticker)

	_, body := doJSON(t, h, http.MethodPost, "/ltp",
		map[string]any{"symbols": []string{"infy"}}, true)
	prices := body["ltp"].(map[string]any)
	if prices["NSE:INFY"] != 1501.0 {
		t.Errorf("NSE:INFY = %v, stale tick should not be served", prices["NSE:INFY"])
	}
}

func TestHistoricalDateValidation(t *testing.T) {
	_, h := newTestServer(t, &fakeBroker{instruments: testInstruments()}, &fakeAuth{})
	w, _ := doJSON(t, h, http.MethodGet,
		"/historical?symbol=INFY&interval=5m&from_date=15-01-2024&to_date=2024-01-16", nil, true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHistorical(t *testing.T) {
	broker := &fakeBroker{
		instruments: testInstruments(),
		candles:     []model.Candle{{Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 1200}},
	}
	_, h := newTestServer(t, broker, &fakeAuth{})

	w, body := doJSON(t, h, http.MethodGet,
		"/historical?symbol=INFY&interval=5m&from_date=2024-01-15&to_date=2024-01-16", nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %v", w.Code, body)
	}
	if body["interval"] != "5minute" || body["symbol"] != "NSE:INFY" {
		t.Errorf("meta = %v", body)
	}
	if len(body["candles"].([]any)) != 1 {
		t.Errorf("candles = %v", body["candles"])
	}
}

func TestInstrumentSearch(t *testing.T) {
	_, h := newTestServer(t, &fakeBroker{instruments: testInstruments()}, &fakeAuth{})

	w, body := doJSON(t, h, http.MethodGet, "/instruments?query=reliance", nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %v", w.Code, body)
	}
	if body["tradingsymbol"] != "RELIANCE" {
		t.Errorf("tradingsymbol = %v", body["tradingsymbol"])
	}

	w, _ = doJSON(t, h, http.MethodGet, "/instruments?query=zzzz", nil, true)
	if w.Code != http.StatusNotFound {
		t.Errorf("miss status = %d, want 404", w.Code)
	}
}

// ---- webhooks ----

func TestWebhookSubscriptionLifecycle(t *testing.T) {
	_, h := newTestServer(t, &fakeBroker{}, &fakeAuth{})

	w, body := doJSON(t, h, http.MethodPost, "/webhook/subscribe",
		map[string]any{"url": "https://hooks.example.com/orders"}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("subscribe status = %d body = %v", w.Code, body)
	}
	id, _ := body["subscription_id"].(string)
	if id == "" {
		t.Fatalf("no subscription_id in %v", body)
	}
	if body["filter"] != "all" {
		t.Errorf("filter = %v, want all", body["filter"])
	}

	_, body = doJSON(t, h, http.MethodGet, "/webhook/subscriptions", nil, true)
	if len(body["subscriptions"].([]any)) != 1 {
		t.Errorf("subscriptions = %v", body["subscriptions"])
	}

	w, _ = doJSON(t, h, http.MethodDelete, "/webhook/subscriptions/"+id, nil, true)
	if w.Code != http.StatusOK {
		t.Errorf("unsubscribe status = %d", w.Code)
	}
	w, _ = doJSON(t, h, http.MethodDelete, "/webhook/subscriptions/"+id, nil, true)
	if w.Code != http.StatusNotFound {
		t.Errorf("second unsubscribe status = %d, want 404", w.Code)
	}
}

func TestWebhookSubscribeRejectsBadURL(t *testing.T) {
	_, h := newTestServer(t, &fakeBroker{}, &fakeAuth{})
	w, _ := doJSON(t, h, http.MethodPost, "/webhook/subscribe",
		map[string]any{"url": "not a url"}, true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestWebhookDeliveriesLimit(t *testing.T) {
	srv, h := newTestServer(t, &fakeBroker{}, &fakeAuth{})
	for i := 0; i < 3; i++ {
		srv.dispatcher.History().Add(webhook.Attempt{OrderID: "o1", Outcome: webhook.OutcomeDelivered})
	}

	_, body := doJSON(t, h, http.MethodGet, "/webhook/deliveries?limit=2", nil, true)
	if len(body["deliveries"].([]any)) != 2 {
		t.Errorf("deliveries = %v", body["deliveries"])
	}

	w, _ := doJSON(t, h, http.MethodGet, "/webhook/deliveries?limit=0", nil, true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
