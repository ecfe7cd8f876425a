package history

import (
	"sync"

	"github.com/vigilstack/vigil-healer/internal/models"
)

// Ring is the append-only incident history. It is the only shared mutable
// state between concurrent heal runs, so appends are serialized here and
// reads hand out copies. Capacity 0 means unbounded; otherwise the oldest
// incidents are evicted once the cap is exceeded.
type Ring struct {
	mu        sync.RWMutex
	capacity  int
	incidents []models.IncidentReport
}

// NewRing creates a Ring with the given capacity (0 = unbounded).
func NewRing(capacity int) *Ring {
	if capacity < 0 {
		capacity = 0
	}
	return &Ring{capacity: capacity}
}

// Append records a completed incident.
func (r *Ring) Append(report models.IncidentReport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.incidents = append(r.incidents, report)
	if r.capacity > 0 && len(r.incidents) > r.capacity {
		// Shift rather than reslice so evicted reports can be collected.
		overflow := len(r.incidents) - r.capacity
		copy(r.incidents, r.incidents[overflow:])
		for i := r.capacity; i < len(r.incidents); i++ {
			r.incidents[i] = models.IncidentReport{}
		}
		r.incidents = r.incidents[:r.capacity]
	}
}

// Last returns a snapshot of up to n most recent incidents, oldest first.
// n <= 0 falls back to 10.
func (r *Ring) Last(n int) []models.IncidentReport {
	if n <= 0 {
		n = 10
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	start := 0
	if len(r.incidents) > n {
		start = len(r.incidents) - n
	}
	out := make([]models.IncidentReport, len(r.incidents)-start)
	copy(out, r.incidents[start:])
	return out
}

// Len reports the current number of stored incidents.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.incidents)
}

// Stats summarises the stored incidents for post-incident review.
func (r *Ring) Stats() models.HistoryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := models.HistoryStats{
		TotalIncidents: len(r.incidents),
		ByAction:       make(map[models.Action]models.ActionStats),
		ByService:      make(map[string]int),
	}
	for _, incident := range r.incidents {
		stats.ByService[incident.Service]++

		action := incident.Summary.ActionTaken
		entry := stats.ByAction[action]
		entry.Total++
		if incident.Summary.Success {
			entry.Succeeded++
			stats.Succeeded++
		}
		stats.ByAction[action] = entry
	}
	return stats
}
