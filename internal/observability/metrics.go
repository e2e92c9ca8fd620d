// Package observability holds the prometheus collectors shared across packages.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	sessionPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "swimrun",
		Subsystem: "persistence",
		Name:      "last_session_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent session persisted to Postgres.",
	})

	analyticsComputations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swimrun",
		Subsystem: "analytics",
		Name:      "computations_total",
		Help:      "Dashboard computations grouped by operation and whether the memoized result was served.",
	}, []string{"operation", "cached"})

	skippedSessions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swimrun",
		Subsystem: "analytics",
		Name:      "skipped_sessions_total",
		Help:      "Sessions left out of date-keyed aggregation because their date could not be parsed.",
	}, []string{"operation"})
)

func init() {
	prometheus.MustRegister(sessionPersistGauge, analyticsComputations, skippedSessions)
}

// RecordSessionPersisted updates the persistence watermark gauge.
func RecordSessionPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	sessionPersistGauge.Set(float64(ts.Unix()))
}

// RecordComputation counts one dashboard computation.
func RecordComputation(operation string, cached bool) {
	label := "false"
	if cached {
		label = "true"
	}
	analyticsComputations.WithLabelValues(operation, label).Inc()
}

// RecordSkippedSessions adds n undated sessions to the per-operation skip counter.
func RecordSkippedSessions(operation string, n int) {
	if n <= 0 {
		return
	}
	skippedSessions.WithLabelValues(operation).Add(float64(n))
}

// SkippedSessions exposes the skip counter of one operation, mainly for tests.
func SkippedSessions(operation string) prometheus.Counter {
	return skippedSessions.WithLabelValues(operation)
}
