package stats

import (
	"OFSpectra/internal/model"
	"sync"
	"time"
)

// DefaultHistoryInterval is the minimum spacing between two history samples.
const DefaultHistoryInterval = 10 * time.Second

// Aggregator keeps cumulative per-protocol counters and a sampled history of
// them. The history is a series of cumulative snapshots, not per-interval deltas.
type Aggregator struct {
	mu       sync.Mutex
	counters model.ProtocolStats
	history  []model.StatsHistorySample
	interval time.Duration
	now      func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock replaces the wall clock used for history sampling.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithHistoryInterval overrides DefaultHistoryInterval.
func WithHistoryInterval(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.interval = d
		}
	}
}

// NewAggregator creates an aggregator with every protocol tag seeded at zero.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		counters: model.NewProtocolStats(),
		interval: DefaultHistoryInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Record counts one packet of the given size under tag and appends a history
// sample when the history is empty or the last sample is at least one
// interval old. Tags outside the enumeration are counted as other.
func (a *Aggregator) Record(tag model.Tag, bytes int) {
	if !tag.Valid() {
		tag = model.TagOther
	}
	if bytes < 0 {
		bytes = 0
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	c := a.counters[tag]
	c.Packets++
	c.Bytes += uint64(bytes)
	a.counters[tag] = c

	now := a.now()
	if n := len(a.history); n == 0 || now.Sub(a.history[n-1].Timestamp) >= a.interval {
		a.history = append(a.history, model.StatsHistorySample{
			Timestamp: now,
			Protocols: a.counters.Clone(),
		})
	}
}

// Snapshot returns deep copies of the cumulative counters and the history.
func (a *Aggregator) Snapshot() (model.ProtocolStats, []model.StatsHistorySample) {
	a.mu.Lock()
	defer a.mu.Unlock()

	history := make([]model.StatsHistorySample, len(a.history))
	for i, s := range a.history {
		history[i] = model.StatsHistorySample{Timestamp: s.Timestamp, Protocols: s.Protocols.Clone()}
	}
	return a.counters.Clone(), history
}

// Counters returns a copy of the cumulative counters only.
func (a *Aggregator) Counters() model.ProtocolStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counters.Clone()
}

// Clear zeroes every counter and drops the history.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counters = model.NewProtocolStats()
	a.history = nil
}
