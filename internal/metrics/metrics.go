// Package metrics exposes Prometheus instrumentation and a health/metrics
// HTTP server for the gateway.
package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	// Watcher
	PollCycles       prometheus.Counter
	PollFailures     prometheus.Counter
	TransitionsTotal prometheus.Counter

	// Webhook delivery
	DeliveriesTotal  *prometheus.CounterVec // labels: outcome=delivered|failed_permanent|dropped
	DeliveryRetries  prometheus.Counter
	DeliveryDuration prometheus.Histogram
	QueueDepth       prometheus.Gauge

	// Broker adapter
	BrokerCalls      *prometheus.CounterVec // labels: op, status=ok|error
	BrokerCallDur    prometheus.Histogram
	TickerReconnects prometheus.Counter

	// Instrument resolver
	InstrumentCacheSize prometheus.Gauge
	InstrumentLookups   *prometheus.CounterVec // labels: result=hit|miss
}

// New registers and returns all gateway metrics.
func New() *Metrics {
	m := &Metrics{
		PollCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_poll_cycles_total",
			Help: "Order status poll cycles completed",
		}),
		PollFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_poll_failures_total",
			Help: "Poll cycles skipped due to broker errors",
		}),
		TransitionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_order_transitions_total",
			Help: "Order status transitions detected",
		}),
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_webhook_deliveries_total",
			Help: "Webhook delivery attempts reaching a terminal outcome",
		}, []string{"outcome"}),
		DeliveryRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_webhook_retries_total",
			Help: "Webhook delivery retries scheduled",
		}),
		DeliveryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gateway_webhook_delivery_seconds",
			Help:    "Webhook POST round-trip duration",
			Buckets: prometheus.DefBuckets,
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_webhook_queue_depth",
			Help: "Delivery attempts currently queued",
		}),
		BrokerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_broker_calls_total",
			Help: "Broker API calls by operation and status",
		}, []string{"op", "status"}),
		BrokerCallDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gateway_broker_call_seconds",
			Help:    "Broker API call duration",
			Buckets: prometheus.DefBuckets,
		}),
		TickerReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_ticker_reconnects_total",
			Help: "Kite ticker websocket reconnect attempts",
		}),
		InstrumentCacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_instrument_cache_size",
			Help: "Instruments currently cached",
		}),
		InstrumentLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_instrument_lookups_total",
			Help: "Instrument cache lookups by result",
		}, []string{"result"}),
	}

	prometheus.MustRegister(
		m.PollCycles,
		m.PollFailures,
		m.TransitionsTotal,
		m.DeliveriesTotal,
		m.DeliveryRetries,
		m.DeliveryDuration,
		m.QueueDepth,
		m.BrokerCalls,
		m.BrokerCallDur,
		m.TickerReconnects,
		m.InstrumentCacheSize,
		m.InstrumentLookups,
	)

	return m
}

// HealthStatus represents gateway health for the /healthz probe.
type HealthStatus struct {
	mu sync.RWMutex

	BrokerConnected bool      `json:"broker_connected"`
	WatcherRunning  bool      `json:"watcher_running"`
	LastPollAt      time.Time `json:"last_poll_at"`
	TrackedOrders   int       `json:"tracked_orders"`
	Subscriptions   int       `json:"subscriptions"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetBrokerConnected(v bool) {
	h.mu.Lock()
	h.BrokerConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetWatcherRunning(v bool) {
	h.mu.Lock()
	h.WatcherRunning = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastPollAt(t time.Time) {
	h.mu.Lock()
	h.LastPollAt = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetCounts(orders, subs int) {
	h.mu.Lock()
	h.TrackedOrders = orders
	h.Subscriptions = subs
	h.mu.Unlock()
}

// Uptime returns time since process start.
func (h *HealthStatus) Uptime() time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return time.Since(h.StartedAt)
}

// ServeHTTP implements the /healthz probe.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	status := struct {
		BrokerConnected bool   `json:"broker_connected"`
		WatcherRunning  bool   `json:"watcher_running"`
		LastPollAt      string `json:"last_poll_at"`
		TrackedOrders   int    `json:"tracked_orders"`
		Subscriptions   int    `json:"subscriptions"`
		UptimeSeconds   int64  `json:"uptime_seconds"`
	}{
		BrokerConnected: h.BrokerConnected,
		WatcherRunning:  h.WatcherRunning,
		LastPollAt:      h.LastPollAt.Format(time.RFC3339),
		TrackedOrders:   h.TrackedOrders,
		Subscriptions:   h.Subscriptions,
		UptimeSeconds:   int64(time.Since(h.StartedAt).Seconds()),
	}
	h.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
