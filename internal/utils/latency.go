package utils

import (
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps a bounded window of recent durations and computes
// percentiles over it. Used by the heal service to log p95 run latency
// without depending on the metrics backend.
type LatencyTracker struct {
	mu     sync.RWMutex
	window []time.Duration
	limit  int
}

// NewLatencyTracker creates a tracker storing up to limit samples.
func NewLatencyTracker(limit int) *LatencyTracker {
	if limit <= 0 {
		limit = 512
	}
	return &LatencyTracker{limit: limit}
}

// Observe records a new duration, evicting the oldest when full.
func (l *LatencyTracker) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.window = append(l.window, d)
	if len(l.window) > l.limit {
		copy(l.window, l.window[1:])
		l.window = l.window[:l.limit]
	}
}

// Percentile returns the requested percentile (0-100) over the window, or
// zero when no samples have been observed yet.
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.window) == 0 {
		return 0
	}

	sorted := append([]time.Duration(nil), l.window...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	index := int((p / 100.0) * float64(len(sorted)-1))
	return sorted[index]
}

// Count returns the number of samples currently held.
func (l *LatencyTracker) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.window)
}
