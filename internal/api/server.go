// Package api exposes the gateway's HTTP surface: broker auth, market
// data, target/risk calculations, order lifecycle and webhook
// subscription management. Every protected route requires the internal
// x-api-key header; broker-backed routes additionally need a live Kite
// session.
package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"kite-gateway/config"
	"kite-gateway/internal/apierr"
	"kite-gateway/internal/instruments"
	"kite-gateway/internal/metrics"
	"kite-gateway/internal/model"
	"kite-gateway/internal/orders"
	"kite-gateway/internal/webhook"
	"kite-gateway/pkg/kiteconnect"
)

// authClient is the slice of the Kite client the auth endpoints need.
type authClient interface {
	LoginURL() string
	GenerateSession(ctx context.Context, requestToken string) (kiteconnect.Session, error)
	CurrentSession() (kiteconnect.Session, bool)
}

// TickStream is the slice of the websocket ticker the LTP endpoint uses
// to serve prices without a REST round trip.
type TickStream interface {
	Subscribe(tokens ...int64) error
	LastPrice(token int64) (kiteconnect.Tick, bool)
}

type Server struct {
	cfg        config.Config
	auth       authClient
	broker     model.BrokerClient
	resolver   *instruments.Resolver
	manager    *orders.Manager
	registry   *webhook.Registry
	dispatcher *webhook.Dispatcher
	ticker     TickStream // nil when the live stream is disabled
	health     *metrics.HealthStatus

	httpSrv *http.Server
}

func New(
	cfg config.Config,
	auth authClient,
	broker model.BrokerClient,
	resolver *instruments.Resolver,
	manager *orders.Manager,
	registry *webhook.Registry,
	dispatcher *webhook.Dispatcher,
	ticker TickStream,
	health *metrics.HealthStatus,
) *Server {
	return &Server{
		cfg:        cfg,
		auth:       auth,
		broker:     broker,
		resolver:   resolver,
		manager:    manager,
		registry:   registry,
		dispatcher: dispatcher,
		ticker:     ticker,
		health:     health,
	}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	// Public: health and the browser-driven login flow. The callback is
	// hit by a redirect from Kite, so it cannot carry the internal key.
	r.GET("/health", s.handleHealth)
	r.GET("/auth/login_url", s.handleLoginURL)
	r.GET("/auth/callback", s.handleAuthCallback)

	p := r.Group("/", s.apiKeyAuth())
	p.GET("/auth/status", s.handleAuthStatus)

	p.POST("/target/calc", s.handleTargetCalc)
	p.POST("/risk/check", s.handleRiskCheck)

	p.POST("/place_order", s.handlePlaceOrder)
	p.POST("/modify_order", s.handleModifyOrder)
	p.POST("/cancel_order", s.handleCancelOrder)
	p.GET("/orders", s.handleOrders)
	p.GET("/positions", s.handlePositions)

	p.GET("/quote", s.handleQuote)
	p.POST("/ltp", s.handleLTP)
	p.GET("/historical", s.handleHistorical)
	p.GET("/instruments", s.handleInstrumentSearch)
	p.POST("/instruments/refresh", s.handleInstrumentRefresh)

	p.POST("/webhook/subscribe", s.handleWebhookSubscribe)
	p.GET("/webhook/subscriptions", s.handleWebhookList)
	p.DELETE("/webhook/subscriptions/:id", s.handleWebhookUnsubscribe)
	p.GET("/webhook/deliveries", s.handleWebhookDeliveries)

	return r
}

// apiKeyAuth enforces the internal x-api-key header. A missing key and a
// wrong key deliberately return different statuses so clients can tell
// "forgot the header" apart from "rotated key".
func (s *Server) apiKeyAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("x-api-key")
		if key == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "Not authenticated"})
			return
		}
		if key != s.cfg.InternalAPIKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Invalid or missing API Key"})
			return
		}
		c.Next()
	}
}

// fail maps a taxonomy error onto the wire shape {"detail": "..."}.
func (s *Server) fail(c *gin.Context, err error) {
	c.JSON(apierr.KindOf(err).HTTPStatus(), gin.H{"detail": apierr.Detail(err)})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[api] listening on %s", s.cfg.HTTPAddr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Printf("[api] shutting down")
	return s.httpSrv.Shutdown(shutdownCtx)
}
