package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels heal runs whose dispatched action succeeded
	// (or that short-circuited with no anomaly).
	OutcomeSuccess = "success"
	// OutcomeError labels heal runs whose healing stage reported failure.
	OutcomeError = "error"
)

var (
	healsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil_healer",
			Name:      "heals_total",
			Help:      "Total number of heal runs handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	healDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "vigil_healer",
			Name:      "heal_seconds",
			Help:      "End-to-end heal run latency in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 15, 30, 60, 90, 120},
		},
	)

	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil_healer",
			Name:      "actions_total",
			Help:      "Healing actions dispatched, partitioned by action and result.",
		},
		[]string{"action", "result"},
	)
)

// Register attaches the healer collectors to the supplied registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		healsTotal,
		healDurationSeconds,
		actionsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveHeal records a heal run duration and outcome label.
func ObserveHeal(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	healsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	healDurationSeconds.Observe(duration.Seconds())
}

// RecordAction counts one dispatched healing action.
func RecordAction(action string, success bool) {
	result := "failed"
	if success {
		result = "succeeded"
	}
	actionsTotal.WithLabelValues(action, result).Inc()
}
