package learning

import (
	"net"
	"sync"

	"github.com/pkg/errors"

	lru "github.com/hashicorp/golang-lru"
)

// MACTable maps MAC addresses to the port they were last seen on for a
// single switch. Entries never expire. When a capacity is configured the
// least recently used entry is evicted once the table is full; otherwise
// the table grows with the number of distinct source MACs seen.
type MACTable struct {
	mu      sync.Mutex
	entries map[string]uint32
	bounded *lru.Cache
}

// NewMACTable creates a table. capacity <= 0 means unbounded.
func NewMACTable(capacity int) (*MACTable, error) {
	if capacity <= 0 {
		return &MACTable{entries: make(map[string]uint32)}, nil
	}
	c, err := lru.New(capacity)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create LRU MAC table")
	}
	return &MACTable{bounded: c}, nil
}

// Learn records that mac was seen on port, overwriting any previous entry.
func (t *MACTable) Learn(mac net.HardwareAddr, port uint32) {
	key := mac.String()
	if t.bounded != nil {
		t.bounded.Add(key, port)
		return
	}
	t.mu.Lock()
	t.entries[key] = port
	t.mu.Unlock()
}

// Lookup returns the port mac was last seen on.
func (t *MACTable) Lookup(mac net.HardwareAddr) (uint32, bool) {
	key := mac.String()
	if t.bounded != nil {
		v, ok := t.bounded.Get(key)
		if !ok {
			return 0, false
		}
		return v.(uint32), true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	port, ok := t.entries[key]
	return port, ok
}

// Len returns the number of learned addresses.
func (t *MACTable) Len() int {
	if t.bounded != nil {
		return t.bounded.Len()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Entries returns a copy of the table keyed by MAC string.
func (t *MACTable) Entries() map[string]uint32 {
	if t.bounded != nil {
		out := make(map[string]uint32, t.bounded.Len())
		for _, k := range t.bounded.Keys() {
			if v, ok := t.bounded.Peek(k); ok {
				out[k.(string)] = v.(uint32)
			}
		}
		return out
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]uint32, len(t.entries))
	for k, v := range t.entries {
		out[k] = v
	}
	return out
}
