// Package monitoring exposes Prometheus metrics for the queue worker.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	waitingParticipants = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tablehop_waiting_participants",
			Help: "Current number of waiting queue entries per role",
		},
		[]string{"role"},
	)

	matchCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tablehop_match_cycle_duration_seconds",
			Help:    "Duration of matchmaker cycles",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	sessionsFormed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tablehop_sessions_formed_total",
			Help: "Total table sessions formed by the matchmaker",
		},
	)

	matchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablehop_match_failures_total",
			Help: "Host attempts that did not form a table, by reason",
		},
		[]string{"reason"},
	)

	openTables = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tablehop_open_tables",
			Help: "Table sessions currently Loading or Active",
		},
	)
)

// SetWaiting records the current waiting-pool depth for both roles.
func SetWaiting(players, hosts int) {
	waitingParticipants.WithLabelValues("player").Set(float64(players))
	waitingParticipants.WithLabelValues("host").Set(float64(hosts))
}

// ObserveCycle records one matchmaker cycle duration in seconds.
func ObserveCycle(seconds float64) {
	matchCycleDuration.Observe(seconds)
}

// SessionFormed counts a formed table session.
func SessionFormed() {
	sessionsFormed.Inc()
	openTables.Inc()
}

// SessionClosed counts a closed table session.
func SessionClosed() {
	openTables.Dec()
}

// MatchFailed counts a failed host attempt by reason.
func MatchFailed(reason string) {
	matchFailures.WithLabelValues(reason).Inc()
}
