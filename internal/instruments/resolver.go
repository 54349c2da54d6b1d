// Package instruments resolves user-supplied symbols to canonical
// instruments using the broker's instrument master, with an in-process
// cache that lives for the process lifetime (the master changes at most
// daily; callers needing freshness hit Refresh).
package instruments

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"kite-gateway/internal/apierr"
	"kite-gateway/internal/metrics"
	"kite-gateway/internal/model"
)

// intervalMap normalizes interval shorthand to the Kite historical API
// vocabulary. Canonical names pass through unchanged.
var intervalMap = map[string]string{
	"1m":  "minute",
	"3m":  "3minute",
	"5m":  "5minute",
	"10m": "10minute",
	"15m": "15minute",
	"30m": "30minute",
	"1h":  "60minute",
	"1d":  "day",
}

var canonicalIntervals = map[string]bool{
	"minute": true, "3minute": true, "5minute": true, "10minute": true,
	"15minute": true, "30minute": true, "60minute": true, "day": true,
}

// NormalizeInterval maps shorthand like "5m" to the broker's canonical
// interval string. Unknown values fail with a validation error.
func NormalizeInterval(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if v, ok := intervalMap[s]; ok {
		return v, nil
	}
	if canonicalIntervals[s] {
		return s, nil
	}
	return "", apierr.Ef(apierr.KindValidation, "invalid interval %q", s)
}

// indexSymbols are quoted on the INDICES pseudo-exchange rather than NSE/BSE.
var indexSymbols = map[string]bool{
	"NIFTY 50":          true,
	"NIFTY BANK":        true,
	"NIFTY FIN SERVICE": true,
	"NIFTY MIDCAP 100":  true,
	"INDIA VIX":         true,
	"SENSEX":            true,
}

// Resolver maps symbols to instruments via the broker instrument master.
type Resolver struct {
	broker          model.BrokerClient
	defaultExchange string
	prom            *metrics.Metrics // may be nil

	mu     sync.RWMutex
	cache  map[string]model.Instrument // "EXCHANGE:TRADINGSYMBOL"
	loaded map[string]bool             // exchanges already fetched
}

// NewResolver creates a resolver with an empty cache. prom may be nil.
func NewResolver(broker model.BrokerClient, defaultExchange string, prom *metrics.Metrics) *Resolver {
	return &Resolver{
		broker:          broker,
		defaultExchange: strings.ToUpper(defaultExchange),
		prom:            prom,
		cache:           make(map[string]model.Instrument),
		loaded:          make(map[string]bool),
	}
}

func (r *Resolver) countLookup(result string) {
	if r.prom != nil {
		r.prom.InstrumentLookups.WithLabelValues(result).Inc()
	}
}

// NormalizeSymbol canonicalizes a raw symbol: uppercases it, applies the
// default exchange when no prefix is given, and routes known index names
// to the INDICES pseudo-exchange ("nifty 50" -> "INDICES:NIFTY 50").
func (r *Resolver) NormalizeSymbol(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if strings.Contains(s, ":") {
		return s
	}
	if indexSymbols[s] {
		return "INDICES:" + s
	}
	return r.defaultExchange + ":" + s
}

// Resolve maps a raw symbol to an instrument. Accepted forms:
//   - a numeric instrument token, passed through unchanged;
//   - "EXCHANGE:SYMBOL";
//   - a bare symbol, resolved on the default exchange.
func (r *Resolver) Resolve(ctx context.Context, raw string) (model.Instrument, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return model.Instrument{}, apierr.E(apierr.KindValidation, "empty symbol")
	}

	// Already a token: nothing to look up.
	if token, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return model.Instrument{Token: token}, nil
	}

	key := r.NormalizeSymbol(raw)
	exchange, symbol, ok := strings.Cut(key, ":")
	if !ok || symbol == "" {
		return model.Instrument{}, apierr.Ef(apierr.KindValidation, "malformed symbol %q", raw)
	}

	r.mu.RLock()
	inst, hit := r.cache[key]
	r.mu.RUnlock()
	if hit {
		r.countLookup("hit")
		return inst, nil
	}
	r.countLookup("miss")

	if err := r.ensureLoaded(ctx, exchange); err != nil {
		return model.Instrument{}, err
	}

	r.mu.RLock()
	inst, hit = r.cache[key]
	r.mu.RUnlock()
	if !hit {
		return model.Instrument{}, apierr.Ef(apierr.KindNotFound, "instrument not found: %s", key)
	}
	return inst, nil
}

// Search returns the first cached instrument whose trading symbol or name
// contains the query, case-insensitive. The default exchange's master is
// loaded on first use.
func (r *Resolver) Search(ctx context.Context, query string) (model.Instrument, error) {
	query = strings.ToUpper(strings.TrimSpace(query))
	if query == "" {
		return model.Instrument{}, apierr.E(apierr.KindValidation, "empty query")
	}

	if err := r.ensureLoaded(ctx, r.defaultExchange); err != nil {
		return model.Instrument{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	// Exact match wins over substring match.
	if inst, ok := r.cache[r.defaultExchange+":"+query]; ok {
		return inst, nil
	}
	for _, inst := range r.cache {
		if strings.Contains(inst.TradingSymbol, query) ||
			strings.Contains(strings.ToUpper(inst.Name), query) {
			return inst, nil
		}
	}
	return model.Instrument{}, apierr.Ef(apierr.KindNotFound, "no instrument matching %q", query)
}

// Refresh clears the cache and refetches the masters of every exchange
// seen so far. Used when the daily instrument dump rolls over.
func (r *Resolver) Refresh(ctx context.Context) error {
	r.mu.Lock()
	exchanges := make([]string, 0, len(r.loaded))
	for ex := range r.loaded {
		exchanges = append(exchanges, ex)
	}
	r.cache = make(map[string]model.Instrument)
	r.loaded = make(map[string]bool)
	r.mu.Unlock()
	if r.prom != nil {
		r.prom.InstrumentCacheSize.Set(0)
	}

	for _, ex := range exchanges {
		if err := r.ensureLoaded(ctx, ex); err != nil {
			return fmt.Errorf("refresh %s: %w", ex, err)
		}
	}
	log.Printf("[instruments] refreshed %d exchanges", len(exchanges))
	return nil
}

// CacheSize returns the number of cached instruments.
func (r *Resolver) CacheSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

func (r *Resolver) ensureLoaded(ctx context.Context, exchange string) error {
	r.mu.RLock()
	done := r.loaded[exchange]
	r.mu.RUnlock()
	if done {
		return nil
	}

	list, err := r.broker.Instruments(ctx, exchange)
	if err != nil {
		return apierr.Wrap(apierr.KindBroker, "fetching instrument master", err)
	}

	r.mu.Lock()
	for _, inst := range list {
		r.cache[inst.Key()] = inst
	}
	r.loaded[exchange] = true
	size := len(r.cache)
	r.mu.Unlock()

	if r.prom != nil {
		r.prom.InstrumentCacheSize.Set(float64(size))
	}
	log.Printf("[instruments] loaded %s master: %d instruments cached total", exchange, size)
	return nil
}
