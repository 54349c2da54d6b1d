// Package watcher polls the broker order book on a fixed interval, diffs
// reported statuses against the locally tracked orders, and hands every
// detected transition to the webhook dispatcher.
//
// Poll-then-diff is deliberate: the broker API is pull-only. If a push
// feed becomes available the loop body can be replaced by a stream
// consumer without touching the delivery contract.
package watcher

import (
	"context"
	"log"
	"time"

	"kite-gateway/internal/metrics"
	"kite-gateway/internal/model"
	"kite-gateway/internal/orders"
	"kite-gateway/internal/webhook"
)

// Watcher drives the poll loop. A single goroutine mutates order status,
// so readers of the store never observe partial updates.
type Watcher struct {
	broker     model.BrokerClient
	store      *orders.Store
	dispatcher *webhook.Dispatcher
	interval   time.Duration
	prom       *metrics.Metrics      // may be nil in tests
	health     *metrics.HealthStatus // may be nil in tests
}

// New creates a watcher polling at the given interval.
func New(broker model.BrokerClient, store *orders.Store, dispatcher *webhook.Dispatcher,
	interval time.Duration, prom *metrics.Metrics, health *metrics.HealthStatus) *Watcher {
	return &Watcher{
		broker:     broker,
		store:      store,
		dispatcher: dispatcher,
		interval:   interval,
		prom:       prom,
		health:     health,
	}
}

// Run blocks until ctx is cancelled. Each tick performs one poll cycle;
// a failed broker fetch skips the cycle without committing any state.
func (w *Watcher) Run(ctx context.Context) {
	log.Printf("[watcher] polling every %s", w.interval)
	if w.health != nil {
		w.health.SetWatcherRunning(true)
		defer w.health.SetWatcherRunning(false)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[watcher] stopping")
			return
		case <-ticker.C:
			w.PollOnce(ctx)
		}
	}
}

// PollOnce runs a single poll cycle: fetch the broker order book, commit
// every status change for tracked orders, and enqueue deliveries in the
// order the transitions were detected. Exported for tests and for a
// forced poll after order placement.
func (w *Watcher) PollOnce(ctx context.Context) {
	tracked := w.store.Tracked()
	if w.health != nil {
		w.health.SetCounts(w.store.Len(), w.dispatcher.Registry().Len())
	}
	if len(tracked) == 0 {
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, w.interval)
	brokerOrders, err := w.broker.Orders(fetchCtx)
	cancel()
	if err != nil {
		if w.prom != nil {
			w.prom.PollFailures.Inc()
		}
		log.Printf("[watcher] poll skipped, broker fetch failed: %v", err)
		return
	}

	byID := make(map[string]model.Order, len(brokerOrders))
	for _, o := range brokerOrders {
		byID[o.OrderID] = o
	}

	for _, local := range tracked {
		remote, ok := byID[local.OrderID]
		if !ok || remote.Status == local.Status {
			continue
		}

		prev, changed := w.store.CommitStatus(local.OrderID, remote.Status,
			remote.StatusMessage, remote.FilledQty, remote.AvgPrice)
		if !changed {
			continue
		}

		if w.prom != nil {
			w.prom.TransitionsTotal.Inc()
		}
		log.Printf("[watcher] order %s: %s -> %s", local.OrderID, prev, remote.Status)

		w.dispatcher.Enqueue(webhook.Event{
			OrderID:        local.OrderID,
			PreviousStatus: prev,
			NewStatus:      remote.Status,
			Timestamp:      time.Now().UTC(),
		})
	}

	if w.prom != nil {
		w.prom.PollCycles.Inc()
	}
	if w.health != nil {
		w.health.SetLastPollAt(time.Now())
	}
}
