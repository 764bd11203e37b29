package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WorkersRegistered is the number of workers in the registry.
	WorkersRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fedcoord_workers_registered",
			Help: "Number of workers registered with the coordinator",
		},
	)

	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedcoord_state_commands_total",
			Help: "Total number of commands processed by the state actor",
		},
		[]string{"command", "result"},
	)

	// JobsTotal counts jobs by terminal status.
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedcoord_jobs_total",
			Help: "Total number of training jobs",
		},
		[]string{"status"},
	)

	RoundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedcoord_rounds_total",
			Help: "Total number of fit rounds",
		},
		[]string{"status"},
	)

	RoundDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fedcoord_round_duration_seconds",
			Help:    "Fit round duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~27m
		},
	)

	AggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fedcoord_aggregation_duration_seconds",
			Help:    "FedAvg aggregation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
	)

	// RepliesTotal counts worker replies by how they were matched.
	RepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedcoord_replies_total",
			Help: "Total number of worker replies received",
		},
		[]string{"result"},
	)
)
