package webhook

import "sync"

// History is a fixed-size circular buffer of finished delivery attempts,
// backing the operator-visible delivery status query. Oldest entries are
// overwritten once the buffer wraps. Multiple dispatcher workers write
// concurrently, so access is mutex-guarded.
type History struct {
	mu    sync.RWMutex
	buf   []Attempt
	next  int
	count int
}

// NewHistory creates a history ring holding up to capacity attempts.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{buf: make([]Attempt, capacity)}
}

// Add records a finished attempt, overwriting the oldest entry when full.
func (h *History) Add(a Attempt) {
	h.mu.Lock()
	h.buf[h.next] = a
	h.next = (h.next + 1) % len(h.buf)
	if h.count < len(h.buf) {
		h.count++
	}
	h.mu.Unlock()
}

// Recent returns up to n attempts, newest first. n <= 0 returns all held.
func (h *History) Recent(n int) []Attempt {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n <= 0 || n > h.count {
		n = h.count
	}
	out := make([]Attempt, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.next - 1 - i + len(h.buf)*2) % len(h.buf)
		out = append(out, h.buf[idx])
	}
	return out
}

// Len returns the number of attempts currently held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}
