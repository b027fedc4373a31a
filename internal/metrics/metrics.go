package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Expansion metrics
	ExpansionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "splitd_expansions_started_total",
			Help: "Total number of expansion jobs started",
		},
	)

	ExpansionsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splitd_expansions_completed_total",
			Help: "Total number of expansion jobs completed",
		},
		[]string{"status"},
	)

	ExpansionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "splitd_expansion_duration_seconds",
			Help:    "Expansion job duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ActiveExpansions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "splitd_expansions_active",
			Help: "Number of expansion jobs currently in flight",
		},
	)

	NodesAttached = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "splitd_nodes_attached_per_expansion",
			Help:    "Children attached per successful expansion",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 10},
		},
	)

	// Reasoning service metrics
	ReasoningRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splitd_reasoning_requests_total",
			Help: "Total number of reasoning service calls",
		},
		[]string{"status"},
	)

	ReasoningLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "splitd_reasoning_latency_seconds",
			Help:    "Reasoning service call latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	// Tree metrics
	TreesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "splitd_trees_created_total",
			Help: "Total number of task trees created",
		},
	)

	NodesReset = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "splitd_nodes_reset_total",
			Help: "Total number of reset cascades performed",
		},
	)

	// Store metrics
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splitd_store_operations_total",
			Help: "Repository operations by backend, operation and status",
		},
		[]string{"backend", "op", "status"},
	)
)
