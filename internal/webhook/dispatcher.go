package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"kite-gateway/internal/metrics"
)

// Delivery outcomes. An attempt stays PENDING while retries remain; every
// other outcome is terminal.
const (
	OutcomePending         = "PENDING"
	OutcomeDelivered       = "DELIVERED"
	OutcomeFailedPermanent = "FAILED_PERMANENT"
	OutcomeDropped         = "DROPPED" // never attempted: subscription removed or queue full
)

// Event is one detected order-status transition.
type Event struct {
	OrderID        string    `json:"order_id"`
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	Timestamp      time.Time `json:"timestamp"`
}

// Attempt tracks delivery of one event to one subscription. AttemptCount
// is monotonically non-decreasing until a terminal outcome.
type Attempt struct {
	SubscriptionID string    `json:"subscription_id"`
	URL            string    `json:"url"`
	OrderID        string    `json:"order_id"`
	Transition     string    `json:"transition"`
	Event          Event     `json:"event"`
	AttemptCount   int       `json:"attempt_count"`
	NextRetryAt    time.Time `json:"next_retry_at,omitempty"`
	Outcome        string    `json:"outcome"`
	Reason         string    `json:"reason,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Config holds the dispatcher's retry policy and worker shape. All of it
// comes from the configuration surface, none is hardcoded.
type Config struct {
	BackoffBase time.Duration // first retry delay
	BackoffCap  time.Duration // backoff ceiling
	MaxAttempts int           // total attempts before FAILED_PERMANENT
	Workers     int           // shard workers; same order always lands on the same shard
	Timeout     time.Duration // per-POST timeout
	QueueSize   int           // per-shard queue capacity
	HistorySize int           // delivery attempt ring size
}

func (c *Config) fillDefaults() {
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 60 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 512
	}
}

// Dispatcher performs at-least-once HTTP delivery of events to matching
// subscriptions. Attempts are sharded by order ID so transitions of a
// single order deliver in the order they were enqueued; across orders
// there is no ordering guarantee.
type Dispatcher struct {
	registry *Registry
	client   *http.Client
	cfg      Config
	prom     *metrics.Metrics // may be nil in tests

	queues  []chan *Attempt
	history *History

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher delivering to the given registry's
// subscribers. Call Run to start the workers.
func NewDispatcher(registry *Registry, cfg Config, prom *metrics.Metrics) *Dispatcher {
	cfg.fillDefaults()
	queues := make([]chan *Attempt, cfg.Workers)
	for i := range queues {
		queues[i] = make(chan *Attempt, cfg.QueueSize)
	}
	return &Dispatcher{
		registry: registry,
		client:   &http.Client{Timeout: cfg.Timeout},
		cfg:      cfg,
		prom:     prom,
		queues:   queues,
		history:  NewHistory(cfg.HistorySize),
	}
}

// History exposes the recent delivery attempts for the operator query.
func (d *Dispatcher) History() *History { return d.history }

// Registry returns the subscription registry this dispatcher delivers to.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Enqueue fans an event out to every matching subscription. Returns the
// number of delivery attempts created. Safe to call concurrently with
// Shutdown; events arriving after shutdown are discarded.
func (d *Dispatcher) Enqueue(ev Event) int {
	subs := d.registry.Matching(ev.OrderID)
	if len(subs) == 0 {
		return 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0
	}

	shard := d.shardFor(ev.OrderID)
	n := 0
	for _, sub := range subs {
		att := &Attempt{
			SubscriptionID: sub.ID,
			URL:            sub.URL,
			OrderID:        ev.OrderID,
			Transition:     ev.PreviousStatus + "->" + ev.NewStatus,
			Event:          ev,
			Outcome:        OutcomePending,
			UpdatedAt:      time.Now(),
		}
		select {
		case d.queues[shard] <- att:
			n++
			if d.prom != nil {
				d.prom.QueueDepth.Inc()
			}
		default:
			// Shard queue full: record the loss instead of blocking the
			// poller. No POST was ever tried, so this is DROPPED rather
			// than FAILED_PERMANENT.
			att.Outcome = OutcomeDropped
			att.Reason = "dispatch queue full"
			att.UpdatedAt = time.Now()
			d.history.Add(*att)
			log.Printf("[dispatcher] queue full, dropping delivery order_id=%s sub=%s", ev.OrderID, sub.ID)
		}
	}
	return n
}

// Run starts the shard workers and blocks until ctx is cancelled and all
// queued deliveries have finished or been abandoned.
func (d *Dispatcher) Run(ctx context.Context) {
	for i := range d.queues {
		d.wg.Add(1)
		go d.worker(ctx, d.queues[i])
	}
	<-ctx.Done()
	d.Shutdown()
	d.wg.Wait()
}

// Shutdown stops accepting new enqueues and closes the shard queues so
// workers drain and exit. Idempotent.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
}

func (d *Dispatcher) shardFor(orderID string) int {
	h := fnv.New32a()
	h.Write([]byte(orderID))
	return int(h.Sum32() % uint32(len(d.queues)))
}

func (d *Dispatcher) worker(ctx context.Context, queue <-chan *Attempt) {
	defer d.wg.Done()
	for att := range queue {
		if d.prom != nil {
			d.prom.QueueDepth.Dec()
		}
		d.deliver(ctx, att)
	}
}

// deliver runs one attempt through the retry policy until it reaches a
// terminal outcome. Retries happen in-worker; the shard therefore keeps
// per-order delivery order.
func (d *Dispatcher) deliver(ctx context.Context, att *Attempt) {
	for {
		// Subscription removed mid-flight: drop before the next try.
		if _, ok := d.registry.Get(att.SubscriptionID); !ok {
			d.finish(att, OutcomeDropped, "subscription removed")
			return
		}

		att.AttemptCount++
		err := d.post(ctx, att)
		if err == nil {
			d.finish(att, OutcomeDelivered, "")
			return
		}

		if att.AttemptCount >= d.cfg.MaxAttempts {
			d.finish(att, OutcomeFailedPermanent, err.Error())
			return
		}

		delay := d.backoff(att.AttemptCount)
		att.NextRetryAt = time.Now().Add(delay)
		att.UpdatedAt = time.Now()
		if d.prom != nil {
			d.prom.DeliveryRetries.Inc()
		}
		log.Printf("[dispatcher] delivery failed (attempt %d/%d) order_id=%s sub=%s: %v, retrying in %s",
			att.AttemptCount, d.cfg.MaxAttempts, att.OrderID, att.SubscriptionID, err, delay.Round(time.Millisecond))

		select {
		case <-ctx.Done():
			d.finish(att, OutcomeFailedPermanent, "shutdown before retry")
			return
		case <-time.After(delay):
		}
	}
}

func (d *Dispatcher) post(ctx context.Context, att *Attempt) error {
	body, err := json.Marshal(att.Event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, att.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := d.client.Do(req)
	if d.prom != nil {
		d.prom.DeliveryDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) finish(att *Attempt, outcome, reason string) {
	att.Outcome = outcome
	att.Reason = reason
	att.NextRetryAt = time.Time{}
	att.UpdatedAt = time.Now()
	d.history.Add(*att)

	if d.prom != nil {
		d.prom.DeliveriesTotal.WithLabelValues(outcomeLabel(outcome)).Inc()
	}
	if outcome != OutcomeDelivered {
		log.Printf("[dispatcher] delivery %s order_id=%s sub=%s after %d attempts: %s",
			outcome, att.OrderID, att.SubscriptionID, att.AttemptCount, reason)
	}
}

func outcomeLabel(outcome string) string {
	switch outcome {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeDropped:
		return "dropped"
	default:
		return "failed_permanent"
	}
}

// backoff returns the delay before retry n+1: base*2^(n-1) capped, with
// ±20% jitter so a herd of failing subscribers doesn't sync up.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := d.cfg.BackoffBase << (attempt - 1)
	if delay > d.cfg.BackoffCap || delay <= 0 {
		delay = d.cfg.BackoffCap
	}
	jitter := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(delay) * jitter)
}
