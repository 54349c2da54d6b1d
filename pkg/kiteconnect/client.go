// Package kiteconnect is a thin Kite Connect v3 adapter implementing the
// gateway's broker port. It mirrors the routes, headers and session
// handling of the official client: requests carry the X-Kite-Version
// header and a "token api_key:access_token" Authorization header, and a
// TokenException from the API invalidates the local session.
package kiteconnect

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"kite-gateway/internal/apierr"
	"kite-gateway/internal/metrics"
	"kite-gateway/internal/model"
)

const (
	defaultBaseURL  = "https://api.kite.trade"
	loginBaseURL    = "https://kite.zerodha.com/connect/login"
	kiteVersion     = "3"
	defaultTimeout  = 7 * time.Second
	requestsPerSec  = 3 // documented Kite connect rate limit
	kiteTimeLayout  = "2006-01-02 15:04:05"
	kiteQueryLayout = "2006-01-02 15:04:05"
)

// Config configures the Kite client.
type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string           // default https://api.kite.trade
	Timeout   time.Duration    // per-request, default 7s
	Metrics   *metrics.Metrics // optional call instrumentation
}

// Session holds the authenticated Kite session. Access tokens expire at
// 06:00 IST the following day.
type Session struct {
	UserID      string    `json:"user_id"`
	AccessToken string    `json:"access_token"`
	LoginTime   time.Time `json:"login_time"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Client is a Kite Connect v3 REST client. Safe for concurrent use.
type Client struct {
	apiKey    string
	apiSecret string
	rest      *resty.Client
	limiter   *rate.Limiter
	prom      *metrics.Metrics // may be nil

	mu      sync.RWMutex
	session Session

	// SessionExpiryHook is invoked when the API reports a TokenException.
	SessionExpiryHook func()
}

// New creates a Kite client. No network calls are made until a method is
// invoked.
func New(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	rest := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetHeader("X-Kite-Version", kiteVersion)

	return &Client{
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		rest:      rest,
		limiter:   rate.NewLimiter(rate.Limit(requestsPerSec), requestsPerSec),
		prom:      cfg.Metrics,
	}
}

// LoginURL returns the browser URL that starts the Kite login flow. The
// redirect lands on /auth/callback with a request_token.
func (c *Client) LoginURL() string {
	return fmt.Sprintf("%s?v=3&api_key=%s", loginBaseURL, url.QueryEscape(c.apiKey))
}

// GenerateSession exchanges a request token for an access token.
// Checksum is SHA-256 over api_key + request_token + api_secret.
func (c *Client) GenerateSession(ctx context.Context, requestToken string) (Session, error) {
	sum := sha256.Sum256([]byte(c.apiKey + requestToken + c.apiSecret))
	checksum := hex.EncodeToString(sum[:])

	var out struct {
		Data struct {
			UserID      string `json:"user_id"`
			AccessToken string `json:"access_token"`
			LoginTime   string `json:"login_time"`
		} `json:"data"`
	}
	start := time.Now()
	resp, err := c.request(ctx).
		SetFormData(map[string]string{
			"api_key":       c.apiKey,
			"request_token": requestToken,
			"checksum":      checksum,
		}).
		SetResult(&out).
		Post("/session/token")
	cerr := c.checkResponse(resp, err)
	c.observe("session", start, cerr)
	if cerr != nil {
		return Session{}, cerr
	}

	loginTime, _ := time.Parse(kiteTimeLayout, out.Data.LoginTime)
	sess := Session{
		UserID:      out.Data.UserID,
		AccessToken: out.Data.AccessToken,
		LoginTime:   loginTime,
		ExpiresAt:   nextTokenExpiry(time.Now()),
	}

	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()
	return sess, nil
}

// nextTokenExpiry returns 06:00 IST strictly after now, when Kite flushes
// access tokens.
func nextTokenExpiry(now time.Time) time.Time {
	ist := time.FixedZone("IST", 5*3600+1800)
	local := now.In(ist)
	expiry := time.Date(local.Year(), local.Month(), local.Day(), 6, 0, 0, 0, ist)
	if !expiry.After(local) {
		expiry = expiry.Add(24 * time.Hour)
	}
	return expiry
}

// SetAccessToken installs an access token obtained elsewhere.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.session = Session{AccessToken: token, ExpiresAt: nextTokenExpiry(time.Now())}
	c.mu.Unlock()
}

// CurrentSession returns the session and whether it is usable.
func (c *Client) CurrentSession() (Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ok := c.session.AccessToken != "" && time.Now().Before(c.session.ExpiresAt)
	return c.session, ok
}

// InvalidateSession drops the stored access token.
func (c *Client) InvalidateSession() {
	c.mu.Lock()
	c.session = Session{}
	c.mu.Unlock()
}

// Credentials returns api key and the current access token, for the
// websocket ticker.
func (c *Client) Credentials() (apiKey, accessToken string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey, c.session.AccessToken
}

func (c *Client) request(ctx context.Context) *resty.Request {
	r := c.rest.R().SetContext(ctx)
	c.mu.RLock()
	if c.session.AccessToken != "" {
		r.SetHeader("Authorization", "token "+c.apiKey+":"+c.session.AccessToken)
	}
	c.mu.RUnlock()
	return r
}

// authedRequest fails fast when no usable session exists, and applies the
// rate limiter before letting the request out.
func (c *Client) authedRequest(ctx context.Context) (*resty.Request, error) {
	if _, ok := c.CurrentSession(); !ok {
		return nil, apierr.E(apierr.KindUnauthorized, "not authenticated with broker, login first")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return c.request(ctx), nil
}

// observe records one broker API call on the op/status counter and the
// duration histogram.
func (c *Client) observe(op string, start time.Time, err error) {
	if c.prom == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.prom.BrokerCalls.WithLabelValues(op, status).Inc()
	c.prom.BrokerCallDur.Observe(time.Since(start).Seconds())
}

// kiteEnvelope is the common error envelope of the Kite API.
type kiteEnvelope struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	ErrorType string `json:"error_type"`
}

// checkResponse folds transport errors and API error envelopes into the
// gateway taxonomy.
func (c *Client) checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return apierr.Wrap(apierr.KindBroker, "broker request failed", err)
	}
	if resp.IsSuccess() {
		return nil
	}
	return c.apiError(resp.Body(), resp.Status())
}

// apiError maps a Kite error envelope onto the gateway taxonomy.
func (c *Client) apiError(body []byte, fallback string) error {
	var env kiteEnvelope
	_ = json.Unmarshal(body, &env)
	switch env.ErrorType {
	case "TokenException":
		c.InvalidateSession()
		if c.SessionExpiryHook != nil {
			c.SessionExpiryHook()
		}
		return apierr.Ef(apierr.KindUnauthorized, "broker session expired: %s", env.Message)
	case "InputException":
		return apierr.Ef(apierr.KindBroker, "broker rejected input: %s", env.Message)
	default:
		msg := env.Message
		if msg == "" {
			msg = fallback
		}
		return apierr.Ef(apierr.KindBroker, "broker error: %s", msg)
	}
}

// Profile fetches the logged-in user profile as raw fields.
func (c *Client) Profile(ctx context.Context) (map[string]any, error) {
	req, err := c.authedRequest(ctx)
	if err != nil {
		return nil, err
	}
	var out struct {
		Data map[string]any `json:"data"`
	}
	start := time.Now()
	resp, err := req.SetResult(&out).Get("/user/profile")
	cerr := c.checkResponse(resp, err)
	c.observe("profile", start, cerr)
	if cerr != nil {
		return nil, cerr
	}
	return out.Data, nil
}

// Instruments downloads and parses the CSV instrument master for one
// exchange. This is a large response; callers cache it.
func (c *Client) Instruments(ctx context.Context, exchange string) ([]model.Instrument, error) {
	req, err := c.authedRequest(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := req.SetDoNotParseResponse(true).Get("/instruments/" + url.PathEscape(exchange))
	if err != nil {
		c.observe("instruments", start, err)
		return nil, apierr.Wrap(apierr.KindBroker, "fetching instruments", err)
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		raw, _ := io.ReadAll(body)
		aerr := c.apiError(raw, resp.Status())
		c.observe("instruments", start, aerr)
		return nil, aerr
	}
	c.observe("instruments", start, nil)
	return parseInstrumentCSV(body)
}

func parseInstrumentCSV(r io.Reader) ([]model.Instrument, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading instrument csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}

	field := func(rec []string, name string) string {
		if i, ok := col[name]; ok && i < len(rec) {
			return rec[i]
		}
		return ""
	}

	var out []model.Instrument
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading instrument csv: %w", err)
		}
		token, _ := strconv.ParseInt(field(rec, "instrument_token"), 10, 64)
		lot, _ := strconv.Atoi(field(rec, "lot_size"))
		tick, _ := strconv.ParseFloat(field(rec, "tick_size"), 64)
		out = append(out, model.Instrument{
			Token:          token,
			Exchange:       field(rec, "exchange"),
			TradingSymbol:  field(rec, "tradingsymbol"),
			Name:           field(rec, "name"),
			InstrumentType: field(rec, "instrument_type"),
			Segment:        field(rec, "segment"),
			LotSize:        lot,
			TickSize:       tick,
		})
	}
	return out, nil
}
