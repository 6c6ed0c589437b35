// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics collector. Gauges live in a mutex-guarded map; counters
// are atomics so the publish and poll paths never take the map lock after
// first use of a key.

package control

import (
	"sync"
	"sync/atomic"
	"time"
)

// MetricsRegistry holds gauges and counters.
type MetricsRegistry struct {
	mu       sync.RWMutex
	metrics  map[string]any
	counters sync.Map // string -> *atomic.Int64
	updated  atomic.Int64
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		metrics: make(map[string]any),
	}
}

// Set sets or updates a gauge.
func (mr *MetricsRegistry) Set(key string, value any) {
	mr.mu.Lock()
	mr.metrics[key] = value
	mr.mu.Unlock()
	mr.touch()
}

// Add increments counter key by delta and returns the new value.
func (mr *MetricsRegistry) Add(key string, delta int64) int64 {
	c, ok := mr.counters.Load(key)
	if !ok {
		c, _ = mr.counters.LoadOrStore(key, new(atomic.Int64))
	}
	mr.touch()
	return c.(*atomic.Int64).Add(delta)
}

// Counter returns the current value of counter key.
func (mr *MetricsRegistry) Counter(key string) int64 {
	if c, ok := mr.counters.Load(key); ok {
		return c.(*atomic.Int64).Load()
	}
	return 0
}

// Updated returns when the registry last changed.
func (mr *MetricsRegistry) Updated() time.Time {
	ns := mr.updated.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (mr *MetricsRegistry) touch() {
	mr.updated.Store(time.Now().UnixNano())
}

// GetSnapshot returns gauges and counters merged into one map.
func (mr *MetricsRegistry) GetSnapshot() map[string]any {
	mr.mu.RLock()
	out := make(map[string]any, len(mr.metrics))
	for k, v := range mr.metrics {
		out[k] = v
	}
	mr.mu.RUnlock()
	mr.counters.Range(func(k, v any) bool {
		out[k.(string)] = v.(*atomic.Int64).Load()
		return true
	})
	return out
}
