package api

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"kite-gateway/internal/apierr"
	"kite-gateway/internal/instruments"
	"kite-gateway/internal/model"
	"kite-gateway/internal/risk"
)

const dateLayout = "2006-01-02"

// ---- health & auth ----

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":     true,
		"uptime": s.health.Uptime().Seconds(),
	})
}

func (s *Server) handleLoginURL(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"login_url": s.auth.LoginURL()})
}

// handleAuthCallback receives the browser redirect from the Kite login
// page. It always renders a small HTML page with status 200 so the user
// sees the outcome instead of a bare error body.
func (s *Server) handleAuthCallback(c *gin.Context) {
	requestToken := c.Query("request_token")
	if requestToken == "" {
		s.callbackPage(c, false, "login failed: no request token in callback")
		return
	}

	sess, err := s.auth.GenerateSession(c.Request.Context(), requestToken)
	if err != nil {
		s.callbackPage(c, false, "login failed: "+apierr.Detail(err))
		return
	}
	if s.health != nil {
		s.health.SetBrokerConnected(true)
	}
	s.callbackPage(c, true, fmt.Sprintf("logged in as %s, token valid until %s",
		sess.UserID, sess.ExpiresAt.Format(time.RFC3339)))
}

func (s *Server) callbackPage(c *gin.Context, ok bool, msg string) {
	heading := "Login successful"
	if !ok {
		heading = "Login failed"
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(fmt.Sprintf(
		"<html><body><h2>%s</h2><p>%s</p></body></html>", heading, msg)))
}

func (s *Server) handleAuthStatus(c *gin.Context) {
	sess, ok := s.auth.CurrentSession()
	var expiresAt any
	if ok {
		expiresAt = sess.ExpiresAt
	}
	c.JSON(http.StatusOK, gin.H{"connected": ok, "expires_at": expiresAt})
}

// ---- target & risk ----

func (s *Server) handleTargetCalc(c *gin.Context) {
	var req targetCalcRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	// Server-side defaults for everything the caller left out.
	if req.Direction == "" {
		req.Direction = risk.Long
	}
	req.Direction = strings.ToUpper(req.Direction)
	if req.Period == 0 {
		req.Period = s.cfg.ATRPeriod
	}
	if req.Interval == "" {
		req.Interval = s.cfg.ATRInterval
	}
	if req.StopMultiplier == 0 {
		req.StopMultiplier = s.cfg.StopMultiplier
	}
	if req.TargetMultiplier == 0 {
		req.TargetMultiplier = s.cfg.TargetMultiplier
	}

	interval, err := instruments.NormalizeInterval(req.Interval)
	if err != nil {
		s.fail(c, err)
		return
	}
	inst, err := s.resolver.Resolve(c.Request.Context(), req.Symbol)
	if err != nil {
		s.fail(c, err)
		return
	}

	from, to := candleWindow(interval, req.Period, time.Now())
	candles, err := s.broker.HistoricalCandles(c.Request.Context(), inst.Token, interval, from, to)
	if err != nil {
		s.fail(c, err)
		return
	}

	res, err := risk.ComputeTarget(candles, req.Period, req.EntryPrice, req.Direction,
		req.StopMultiplier, req.TargetMultiplier)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":            inst.Key(),
		"entry_price":       req.EntryPrice,
		"direction":         req.Direction,
		"atr_value":         res.ATRValue,
		"stop_loss":         res.StopLoss,
		"target":            res.Target,
		"stop_multiplier":   res.StopMultiplier,
		"target_multiplier": res.TargetMultiplier,
		"method":            res.Method,
	})
}

// candleWindow picks a fetch range wide enough to yield period+1 candles
// on the given broker interval, with slack for holidays and halts.
func candleWindow(interval string, period int, now time.Time) (from, to time.Time) {
	var daysBack int
	switch interval {
	case "day":
		daysBack = period*2 + 10
	case "60minute":
		daysBack = period/6 + 5
	default:
		daysBack = 5
	}
	return now.AddDate(0, 0, -daysBack), now
}

func (s *Server) handleRiskCheck(c *gin.Context) {
	var req riskCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cashRisk, err := risk.ComputeCashRisk(req.Entry, req.StopLoss, req.Quantity)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cash_risk": cashRisk})
}

// ---- orders ----

func (s *Server) handlePlaceOrder(c *gin.Context) {
	var req model.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	o, err := s.manager.Place(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": o.OrderID, "status": o.Status})
}

func (s *Server) handleModifyOrder(c *gin.Context) {
	var req modifyOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.manager.Modify(c.Request.Context(), req.OrderID, req.OrderRequest); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": req.OrderID, "ok": true})
}

func (s *Server) handleCancelOrder(c *gin.Context) {
	var req cancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.manager.Cancel(c.Request.Context(), req.OrderID); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": req.OrderID, "ok": true})
}

// handleOrders merges the broker order book with the local store. Broker
// rows win on status; orders placed so recently the broker has not yet
// listed them come from the store.
func (s *Server) handleOrders(c *gin.Context) {
	brokerOrders, err := s.broker.Orders(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	seen := make(map[string]bool, len(brokerOrders))
	for _, o := range brokerOrders {
		seen[o.OrderID] = true
	}
	merged := brokerOrders
	for _, o := range s.manager.Store().Snapshot() {
		if !seen[o.OrderID] {
			merged = append(merged, o)
		}
	}
	c.JSON(http.StatusOK, gin.H{"orders": merged})
}

func (s *Server) handlePositions(c *gin.Context) {
	positions, err := s.broker.Positions(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

// ---- market data ----

func (s *Server) handleQuote(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "symbol query parameter is required"})
		return
	}
	key := s.resolver.NormalizeSymbol(symbol)
	quotes, err := s.broker.Quote(c.Request.Context(), []string{key})
	if err != nil {
		s.fail(c, err)
		return
	}
	q, ok := quotes[key]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "no quote for symbol " + key})
		return
	}
	c.JSON(http.StatusOK, q)
}

// tickFreshness bounds how stale a streamed tick may be before the LTP
// endpoint falls back to the REST quote API.
const tickFreshness = 5 * time.Second

// handleLTP serves last traded prices, preferring the live tick stream:
// symbols with a fresh tick are answered from the in-process cache, the
// rest go to the REST API in one batched call. Cache misses get their
// tokens subscribed so subsequent requests hit the stream.
func (s *Server) handleLTP(c *gin.Context) {
	var req ltpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	prices := make(map[string]float64, len(req.Symbols))
	restKeys := make([]string, 0, len(req.Symbols))
	var subscribe []int64
	for _, sym := range req.Symbols {
		key := s.resolver.NormalizeSymbol(sym)
		// Indices are not in the instrument master; only the REST quote
		// API knows them.
		if s.ticker == nil || strings.HasPrefix(key, "INDICES:") {
			restKeys = append(restKeys, key)
			continue
		}
		inst, err := s.resolver.Resolve(c.Request.Context(), key)
		if err != nil {
			restKeys = append(restKeys, key)
			continue
		}
		if tick, ok := s.ticker.LastPrice(inst.Token); ok && time.Since(tick.Received) <= tickFreshness {
			prices[key] = tick.LastPrice
			continue
		}
		subscribe = append(subscribe, inst.Token)
		restKeys = append(restKeys, key)
	}

	if len(subscribe) > 0 {
		if err := s.ticker.Subscribe(subscribe...); err != nil {
			log.Printf("[api] ltp: ticker subscribe failed: %v", err)
		}
	}
	if len(restKeys) > 0 {
		rest, err := s.broker.LTP(c.Request.Context(), restKeys)
		if err != nil {
			s.fail(c, err)
			return
		}
		for key, price := range rest {
			prices[key] = price
		}
	}
	c.JSON(http.StatusOK, gin.H{"ltp": prices})
}

func (s *Server) handleHistorical(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "symbol query parameter is required"})
		return
	}
	interval, err := instruments.NormalizeInterval(c.DefaultQuery("interval", s.cfg.ATRInterval))
	if err != nil {
		s.fail(c, err)
		return
	}
	from, err := time.Parse(dateLayout, c.Query("from_date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "from_date must be YYYY-MM-DD"})
		return
	}
	to, err := time.Parse(dateLayout, c.Query("to_date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "to_date must be YYYY-MM-DD"})
		return
	}
	// to_date is inclusive.
	to = to.Add(24*time.Hour - time.Second)

	inst, err := s.resolver.Resolve(c.Request.Context(), symbol)
	if err != nil {
		s.fail(c, err)
		return
	}
	candles, err := s.broker.HistoricalCandles(c.Request.Context(), inst.Token, interval, from, to)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":   inst.Key(),
		"interval": interval,
		"candles":  candles,
	})
}

func (s *Server) handleInstrumentSearch(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "query parameter is required"})
		return
	}
	inst, err := s.resolver.Search(c.Request.Context(), query)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, inst)
}

func (s *Server) handleInstrumentRefresh(c *gin.Context) {
	if err := s.resolver.Refresh(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "cached": s.resolver.CacheSize()})
}

// ---- webhooks ----

func (s *Server) handleWebhookSubscribe(c *gin.Context) {
	var req webhookSubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sub, err := s.registry.Subscribe(req.URL, req.Filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (s *Server) handleWebhookList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"subscriptions": s.registry.List()})
}

func (s *Server) handleWebhookUnsubscribe(c *gin.Context) {
	id := c.Param("id")
	if !s.registry.Unsubscribe(id) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "subscription not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleWebhookDeliveries(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, gin.H{"deliveries": s.dispatcher.History().Recent(limit)})
}
