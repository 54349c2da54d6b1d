// Package orders validates and submits order requests to the broker and
// tracks locally known order state for the status watcher.
package orders

import (
	"sort"
	"sync"
	"time"

	"kite-gateway/internal/model"
)

// Store is the process-wide order map. All mutations go through the
// store's lock; readers always observe fully written records. Orders are
// never deleted, only reach terminal statuses.
type Store struct {
	mu     sync.RWMutex
	orders map[string]model.Order
}

// NewStore creates an empty order store.
func NewStore() *Store {
	return &Store{orders: make(map[string]model.Order)}
}

// Put inserts or replaces an order record.
func (s *Store) Put(o model.Order) {
	s.mu.Lock()
	s.orders[o.OrderID] = o
	s.mu.Unlock()
}

// Get returns a copy of an order record.
func (s *Store) Get(orderID string) (model.Order, bool) {
	s.mu.RLock()
	o, ok := s.orders[orderID]
	s.mu.RUnlock()
	return o, ok
}

// CommitStatus records a broker-observed status change and returns the
// previous status. Returns ok=false if the order is unknown or the
// status is unchanged, in which case nothing is written.
func (s *Store) CommitStatus(orderID, status, message string, filledQty int64, avgPrice float64) (prev string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, found := s.orders[orderID]
	if !found || o.Status == status {
		return "", false
	}
	prev = o.Status
	o.Status = status
	o.StatusMessage = message
	o.FilledQty = filledQty
	o.AvgPrice = avgPrice
	o.UpdatedAt = time.Now()
	s.orders[orderID] = o
	return prev, true
}

// Tracked returns copies of all orders not yet in a terminal status.
func (s *Store) Tracked() []model.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if !model.TerminalStatus(o.Status) {
			out = append(out, o)
		}
	}
	return out
}

// Snapshot returns copies of all known orders, newest first.
func (s *Store) Snapshot() []model.Order {
	s.mu.RLock()
	out := make([]model.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of known orders.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}
