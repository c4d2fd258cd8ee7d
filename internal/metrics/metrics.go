package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Throughput metrics - Track committed calls and their events
var (
	CallsCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registry_calls_committed_total",
		Help: "Total number of mutating calls that committed and emitted events",
	})

	EventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_events_emitted_total",
			Help: "Total number of events emitted by kind",
		},
		[]string{"kind"},
	)

	ClonesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registry_clones_created_total",
		Help: "Total number of clones created",
	})

	ImplementationsAdded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_implementations_added_total",
			Help: "Total number of implementations added by contract type",
		},
		[]string{"type"},
	)
)

// State metrics - Track current registry state
var (
	ContractTypes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "registry_contract_types",
		Help: "Number of contract types known to this process",
	})

	LatestVersion = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "registry_latest_version",
			Help: "Highest version seen per contract type",
		},
		[]string{"type"},
	)
)

// Performance metrics - Track API latency
var (
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "registry_api_request_duration_seconds",
			Help:    "Time taken to serve an API request",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// Error metrics - Track failures
var (
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_errors_total",
			Help: "Total number of errors by component",
		},
		[]string{"component"},
	)

	APIErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_api_errors_total",
			Help: "Total number of API error responses by error kind",
		},
		[]string{"kind"},
	)
)
