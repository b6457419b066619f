package summary

import (
	"OFSpectra/internal/model"
	"sync"
)

// DefaultCapacity is the number of summaries kept when no capacity is configured.
const DefaultCapacity = 1000

// Ring is a thread-safe, fixed-capacity circular buffer of packet summaries.
// Once full, every insertion overwrites the oldest entry.
type Ring struct {
	mu    sync.RWMutex
	items []model.PacketSummary
	head  int
	count int
}

// NewRing creates a ring. capacity <= 0 falls back to DefaultCapacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{items: make([]model.PacketSummary, capacity)}
}

// Record appends s, evicting the oldest summary if the ring is full.
func (r *Ring) Record(s model.PacketSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[r.head] = s
	r.head = (r.head + 1) % len(r.items)
	if r.count < len(r.items) {
		r.count++
	}
}

// Recent returns up to limit of the newest summaries, oldest first.
// limit <= 0 returns an empty slice.
func (r *Ring) Recent(limit int) []model.PacketSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 {
		return []model.PacketSummary{}
	}
	if limit > r.count {
		limit = r.count
	}
	size := len(r.items)
	start := (r.head - limit + size) % size
	result := make([]model.PacketSummary, limit)
	for i := 0; i < limit; i++ {
		result[i] = r.items[(start+i)%size]
	}
	return result
}

// Clear drops every summary.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.items {
		r.items[i] = model.PacketSummary{}
	}
	r.head = 0
	r.count = 0
}

func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

func (r *Ring) Capacity() int {
	return len(r.items)
}
