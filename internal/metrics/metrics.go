package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsDetected counts raw bridge events received per watcher
	EventsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_events_detected_total",
			Help: "Total number of bridge contract events received",
		},
		[]string{"protocol", "chain", "event_type"},
	)

	// EventsSkipped counts raw events dropped during normalization
	EventsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_events_skipped_total",
			Help: "Total number of events dropped as malformed",
		},
		[]string{"protocol", "reason"},
	)

	// TransactionsIngested counts canonical transactions persisted
	TransactionsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_transactions_ingested_total",
			Help: "Total number of bridge transactions persisted",
		},
		[]string{"protocol", "result"},
	)

	// CandidateEvaluations counts pairwise score evaluations
	CandidateEvaluations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_candidate_evaluations_total",
			Help: "Total number of candidate pairs scored",
		},
	)

	// LinksCreated counts accepted cross-chain links
	LinksCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_links_created_total",
			Help: "Total number of cross-chain links created",
		},
		[]string{"link_type", "confidence"},
	)

	// LinkConflicts counts link attempts abandoned on the processed precondition
	LinkConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_link_conflicts_total",
			Help: "Total number of link attempts abandoned because a leg was already linked",
		},
	)

	// PendingBufferSize tracks entries held in the pending buffer
	PendingBufferSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_pending_buffer_size",
			Help: "Number of unmatched transactions in the pending buffer",
		},
	)

	// PendingEvicted counts buffer entries dropped by the retention sweep
	PendingEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_pending_evicted_total",
			Help: "Total number of pending buffer entries evicted by retention",
		},
	)

	// HubConnections tracks currently connected notification clients
	HubConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_hub_connections",
			Help: "Number of connected notification clients",
		},
	)

	// HubBroadcasts counts messages broadcast per channel
	HubBroadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_hub_broadcasts_total",
			Help: "Total number of messages broadcast to channels",
		},
		[]string{"channel"},
	)

	// HubEvictions counts connections closed by the heartbeat sweep
	HubEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_hub_evictions_total",
			Help: "Total number of connections evicted for missed heartbeats",
		},
	)

	// ErrorsTotal counts errors by component and type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)
