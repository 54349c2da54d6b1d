// Package webhook stores subscriber endpoints and delivers order-status
// transitions to them with at-least-once retry semantics.
package webhook

import (
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"kite-gateway/internal/apierr"
)

// FilterAll matches every order.
const FilterAll = "all"

// Subscription is one registered webhook endpoint.
type Subscription struct {
	ID        string    `json:"subscription_id"`
	URL       string    `json:"url"`
	Filter    string    `json:"filter"` // specific order_id or "all"
	CreatedAt time.Time `json:"created_at"`
}

// Registry is the process-wide subscription map. In-memory only; state
// does not survive a restart (explicit limitation, not a bug).
type Registry struct {
	mu   sync.RWMutex
	subs map[string]Subscription
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]Subscription)}
}

// Subscribe validates the URL and registers a subscription. An empty
// filter subscribes to all orders.
func (r *Registry) Subscribe(rawURL, filter string) (Subscription, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Subscription{}, apierr.Ef(apierr.KindValidation, "invalid webhook url %q", rawURL)
	}
	if filter == "" {
		filter = FilterAll
	}

	sub := Subscription{
		ID:        uuid.NewString(),
		URL:       rawURL,
		Filter:    filter,
		CreatedAt: time.Now(),
	}

	r.mu.Lock()
	r.subs[sub.ID] = sub
	r.mu.Unlock()
	return sub, nil
}

// Unsubscribe removes a subscription. Returns false if unknown.
func (r *Registry) Unsubscribe(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[id]; !ok {
		return false
	}
	delete(r.subs, id)
	return true
}

// Get returns a subscription by ID.
func (r *Registry) Get(id string) (Subscription, bool) {
	r.mu.RLock()
	sub, ok := r.subs[id]
	r.mu.RUnlock()
	return sub, ok
}

// List returns all subscriptions, oldest first.
func (r *Registry) List() []Subscription {
	r.mu.RLock()
	out := make([]Subscription, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Matching returns subscriptions whose filter covers the given order.
func (r *Registry) Matching(orderID string) []Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Subscription
	for _, s := range r.subs {
		if s.Filter == FilterAll || s.Filter == orderID {
			out = append(out, s)
		}
	}
	return out
}

// Len returns the number of live subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
