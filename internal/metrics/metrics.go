// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Update outcomes
const (
	OutcomeAccepted  = "accepted"
	OutcomeDuplicate = "duplicate"
	OutcomeInvalid   = "invalid"
	OutcomeFailed    = "failed"
)

// Classification sources
const (
	SourceOverride  = "override"
	SourceModel     = "model"
	SourceHeuristic = "heuristic"
)

var (
	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "racoon",
			Name:      "productivity_updates_total",
			Help:      "Productivity updates by outcome.",
		},
		[]string{"outcome"},
	)

	TxnConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "racoon",
			Name:      "aggregate_txn_conflicts_total",
			Help:      "Aggregate transactions aborted by a concurrent writer and retried.",
		},
	)

	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "racoon",
			Name:      "classifications_total",
			Help:      "Bucket classifications by decision source and category.",
		},
		[]string{"source", "category"},
	)

	ProfileLookupFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "racoon",
			Name:      "profile_lookup_failures_total",
			Help:      "Leaderboard profile lookups that fell back to a placeholder identity.",
		},
	)
)
