package instruments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"kite-gateway/internal/apierr"
	"kite-gateway/internal/metrics"
	"kite-gateway/internal/model"
)

// fakeBroker serves a fixed instrument master and counts fetches.
type fakeBroker struct {
	masters map[string][]model.Instrument
	fetches int
	err     error
}

func (f *fakeBroker) Instruments(ctx context.Context, exchange string) ([]model.Instrument, error) {
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	return f.masters[exchange], nil
}

func (f *fakeBroker) Quote(ctx context.Context, symbols []string) (map[string]model.Quote, error) {
	return nil, nil
}
func (f *fakeBroker) LTP(ctx context.Context, symbols []string) (map[string]float64, error) {
	return nil, nil
}
func (f *fakeBroker) HistoricalCandles(ctx context.Context, token int64, interval string, from, to time.Time) ([]model.Candle, error) {
	return nil, nil
}
func (f *fakeBroker) PlaceOrder(ctx context.Context, req model.OrderRequest) (string, error) {
	return "", nil
}
func (f *fakeBroker) ModifyOrder(ctx context.Context, variety, orderID string, req model.OrderRequest) error {
	return nil
}
func (f *fakeBroker) CancelOrder(ctx context.Context, variety, orderID string) error { return nil }
func (f *fakeBroker) Orders(ctx context.Context) ([]model.Order, error)              { return nil, nil }
func (f *fakeBroker) Positions(ctx context.Context) ([]model.Position, error)        { return nil, nil }

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		masters: map[string][]model.Instrument{
			"NSE": {
				{Token: 408065, Exchange: "NSE", TradingSymbol: "INFY"},
				{Token: 738561, Exchange: "NSE", TradingSymbol: "RELIANCE"},
			},
			"BSE": {
				{Token: 128028, Exchange: "BSE", TradingSymbol: "INFY"},
			},
		},
	}
}

func TestResolve_PrefixedAndBareAgree(t *testing.T) {
	r := NewResolver(newFakeBroker(), "NSE", nil)
	ctx := context.Background()

	prefixed, err := r.Resolve(ctx, "NSE:INFY")
	if err != nil {
		t.Fatalf("prefixed resolve failed: %v", err)
	}
	bare, err := r.Resolve(ctx, "INFY")
	if err != nil {
		t.Fatalf("bare resolve failed: %v", err)
	}
	if prefixed.Token != bare.Token {
		t.Errorf("prefixed token %d != bare token %d", prefixed.Token, bare.Token)
	}
	if prefixed.Token != 408065 {
		t.Errorf("expected token 408065, got %d", prefixed.Token)
	}
}

func TestResolve_TokenPassthrough(t *testing.T) {
	fb := newFakeBroker()
	r := NewResolver(fb, "NSE", nil)

	inst, err := r.Resolve(context.Background(), "738561")
	if err != nil {
		t.Fatalf("token resolve failed: %v", err)
	}
	if inst.Token != 738561 {
		t.Errorf("expected token 738561, got %d", inst.Token)
	}
	if fb.fetches != 0 {
		t.Errorf("token passthrough should not fetch the master, got %d fetches", fb.fetches)
	}
}

func TestResolve_NotFound(t *testing.T) {
	r := NewResolver(newFakeBroker(), "NSE", nil)

	_, err := r.Resolve(context.Background(), "NSE:NOPE")
	if err == nil {
		t.Fatal("expected error for unknown symbol")
	}
	if apierr.KindOf(err) != apierr.KindNotFound {
		t.Errorf("expected not_found kind, got %v", apierr.KindOf(err))
	}
}

func TestResolve_CachesAcrossCalls(t *testing.T) {
	fb := newFakeBroker()
	r := NewResolver(fb, "NSE", nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := r.Resolve(ctx, "INFY"); err != nil {
			t.Fatalf("resolve %d failed: %v", i, err)
		}
	}
	if fb.fetches != 1 {
		t.Errorf("expected a single master fetch, got %d", fb.fetches)
	}
}

func TestResolve_ExchangePrefixSelectsMaster(t *testing.T) {
	r := NewResolver(newFakeBroker(), "NSE", nil)

	inst, err := r.Resolve(context.Background(), "BSE:INFY")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if inst.Token != 128028 {
		t.Errorf("expected BSE token 128028, got %d", inst.Token)
	}
}

func TestResolve_BrokerFailure(t *testing.T) {
	fb := newFakeBroker()
	fb.err = errors.New("connection refused")
	r := NewResolver(fb, "NSE", nil)

	_, err := r.Resolve(context.Background(), "INFY")
	if apierr.KindOf(err) != apierr.KindBroker {
		t.Errorf("expected broker kind, got %v", err)
	}
}

func TestNormalizeSymbol(t *testing.T) {
	r := NewResolver(newFakeBroker(), "NSE", nil)
	cases := map[string]string{
		"infy":      "NSE:INFY",
		"NSE:INFY":  "NSE:INFY",
		"bse:infy":  "BSE:INFY",
		"nifty 50":  "INDICES:NIFTY 50",
		"SENSEX":    "INDICES:SENSEX",
		" reliance": "NSE:RELIANCE",
	}
	for in, want := range cases {
		if got := r.NormalizeSymbol(in); got != want {
			t.Errorf("NormalizeSymbol(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeInterval(t *testing.T) {
	cases := map[string]string{
		"1m":       "minute",
		"5m":       "5minute",
		"1h":       "60minute",
		"1d":       "day",
		"15minute": "15minute",
		"day":      "day",
	}
	for in, want := range cases {
		got, err := NormalizeInterval(in)
		if err != nil {
			t.Errorf("NormalizeInterval(%q) unexpected error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("NormalizeInterval(%q) = %q, want %q", in, got, want)
		}
	}

	for _, bad := range []string{"2m", "weekly", ""} {
		if _, err := NormalizeInterval(bad); apierr.KindOf(err) != apierr.KindValidation {
			t.Errorf("NormalizeInterval(%q): expected validation error, got %v", bad, err)
		}
	}
}

func TestResolve_RecordsLookupMetrics(t *testing.T) {
	prom := metrics.New()
	r := NewResolver(newFakeBroker(), "NSE", prom)
	ctx := context.Background()

	// Cold cache: first lookup misses and loads the master.
	if _, err := r.Resolve(ctx, "INFY"); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	// Warm cache: second lookup hits.
	if _, err := r.Resolve(ctx, "INFY"); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	if v := testutil.ToFloat64(prom.InstrumentLookups.WithLabelValues("miss")); v != 1 {
		t.Errorf("miss count = %v, want 1", v)
	}
	if v := testutil.ToFloat64(prom.InstrumentLookups.WithLabelValues("hit")); v != 1 {
		t.Errorf("hit count = %v, want 1", v)
	}
	if v := testutil.ToFloat64(prom.InstrumentCacheSize); v != 2 {
		t.Errorf("cache size gauge = %v, want 2", v)
	}
}

func TestRefresh_ClearsAndRefetches(t *testing.T) {
	fb := newFakeBroker()
	r := NewResolver(fb, "NSE", nil)
	ctx := context.Background()

	if _, err := r.Resolve(ctx, "INFY"); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	// Swap the master under the resolver, then refresh.
	fb.masters["NSE"] = []model.Instrument{
		{Token: 999999, Exchange: "NSE", TradingSymbol: "INFY"},
	}
	if err := r.Refresh(ctx); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	inst, err := r.Resolve(ctx, "INFY")
	if err != nil {
		t.Fatalf("resolve after refresh failed: %v", err)
	}
	if inst.Token != 999999 {
		t.Errorf("expected refreshed token 999999, got %d", inst.Token)
	}
}
