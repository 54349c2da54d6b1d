package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kite-gateway/config"
	"kite-gateway/internal/api"
	"kite-gateway/internal/instruments"
	"kite-gateway/internal/logger"
	"kite-gateway/internal/markethours"
	"kite-gateway/internal/metrics"
	"kite-gateway/internal/orders"
	"kite-gateway/internal/watcher"
	"kite-gateway/internal/webhook"
	"kite-gateway/pkg/kiteconnect"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[gateway] starting...")

	// ---- Load config from env ----
	cfg := config.Load()
	appLog := logger.Init("kite-gateway", logger.ParseLevel(cfg.LogLevel))
	appLog.Info("config loaded",
		"http_addr", cfg.HTTPAddr,
		"metrics_addr", cfg.MetricsAddr,
		"poll_interval", cfg.PollInterval.String(),
		"dispatch_workers", cfg.DispatchWorkers,
	)

	// ---- Metrics & health ----
	prom := metrics.New()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Broker client ----
	kite := kiteconnect.New(kiteconnect.Config{
		APIKey:    cfg.KiteAPIKey,
		APISecret: cfg.KiteAPISecret,
		Metrics:   prom,
	})
	kite.SessionExpiryHook = func() {
		log.Println("[gateway] broker session expired, login required")
		health.SetBrokerConnected(false)
	}

	// ---- Core components ----
	resolver := instruments.NewResolver(kite, cfg.DefaultExchange, prom)
	store := orders.NewStore()
	manager := orders.NewManager(kite, store)
	registry := webhook.NewRegistry()

	dispatcher := webhook.NewDispatcher(registry, webhook.Config{
		BackoffBase: cfg.BackoffBase,
		BackoffCap:  cfg.BackoffCap,
		MaxAttempts: cfg.MaxAttempts,
		Workers:     cfg.DispatchWorkers,
		Timeout:     cfg.WebhookTimeout,
	}, prom)
	go dispatcher.Run(ctx)

	w := watcher.New(kite, store, dispatcher, cfg.PollInterval, prom, health)
	go w.Run(ctx)

	// ---- Optional live tick stream, gated to NSE session hours ----
	var tickStream api.TickStream
	if cfg.TickerEnabled {
		ticker := kiteconnect.NewTicker(kite)
		ticker.OnReconnect = func() {
			prom.TickerReconnects.Inc()
		}
		tickStream = ticker
		go func() {
			for {
				now := time.Now()
				if !markethours.IsOpen(now) {
					wait := time.Until(markethours.NextOpen(now))
					log.Printf("[gateway] %s, ticker sleeping %v",
						markethours.Status(now), wait.Truncate(time.Second))
					select {
					case <-ctx.Done():
						return
					case <-time.After(wait):
					}
				}

				// Stream until the session close, then loop back to wait.
				sessCtx, sessCancel := context.WithDeadline(ctx, markethours.SessionClose(time.Now()))
				if err := ticker.Run(sessCtx); err != nil {
					log.Printf("[gateway] ticker session ended: %v", err)
				}
				sessCancel()
				if ctx.Err() != nil {
					return
				}
			}
		}()
	}

	// ---- HTTP surface ----
	srv := api.New(*cfg, kite, kite, resolver, manager, registry, dispatcher, tickStream, health)
	httpErr := make(chan error, 1)
	go func() {
		httpErr <- srv.Run(ctx)
	}()

	log.Printf("[gateway] ready: api=%s metrics=%s poll=%s workers=%d",
		cfg.HTTPAddr, cfg.MetricsAddr, cfg.PollInterval, cfg.DispatchWorkers)

	// ---- Wait for shutdown ----
	httpDone := false
	select {
	case sig := <-sigCh:
		log.Printf("[gateway] signal %v received, shutting down...", sig)
	case err := <-httpErr:
		httpDone = true
		log.Printf("[gateway] http server failed: %v", err)
	}
	cancel()

	// Dispatcher drains in-flight deliveries on cancel; give it and the
	// HTTP server a bounded window to finish.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	if !httpDone {
		select {
		case <-httpErr:
		case <-shutdownCtx.Done():
		}
	}

	log.Println("[gateway] shutdown complete.")
}
