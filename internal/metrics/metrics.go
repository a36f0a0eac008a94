// Package metrics exposes Prometheus counters for the draft engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync metrics
	SyncOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftsync_sync_outcomes_total",
			Help: "Draft sync attempts by outcome",
		},
		[]string{"outcome"}, // clean, saved, deleted, failed, busy
	)

	BackendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftsync_backend_requests_total",
			Help: "Backend draft API calls",
		},
		[]string{"op", "result"},
	)

	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "draftsync_backend_request_duration_seconds",
			Help:    "Backend draft API call duration",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"op"},
	)

	// Local cache metrics
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "draftsync_cache_evictions_total",
			Help: "Drafts evicted from the local cache to respect its bound",
		},
	)

	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftsync_storage_errors_total",
			Help: "Local storage failures, which never block composition",
		},
		[]string{"op"},
	)

	// Watcher metrics
	AutosaveSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftsync_autosave_skipped_total",
			Help: "Debounced auto-saves that fired against superseded state",
		},
		[]string{"reason"},
	)

	KeyTransitions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "draftsync_key_transitions_total",
			Help: "Active conversation changes handled",
		},
	)
)
