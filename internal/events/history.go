package events

import "sync"

// History is an append-only log of records. Records are never mutated or
// removed once appended.
type History struct {
	mu      sync.RWMutex
	records []Record
}

// Append adds rec to the end of the history.
func (h *History) Append(rec Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
}

// Len returns the number of records.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

// Snapshot returns a copy of all records in append order.
func (h *History) Snapshot() []Record {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Record, len(h.records))
	copy(out, h.records)
	return out
}

// Count returns how many records of kind k have been appended.
func (h *History) Count(k Kind) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, r := range h.records {
		if r.Kind == k {
			n++
		}
	}
	return n
}
