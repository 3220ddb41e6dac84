// Package metrics defines the Prometheus instruments for the session core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session lifecycle metrics
var (
	// SessionRenewalsTotal tracks renewal attempts by outcome
	SessionRenewalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_renewals_total",
			Help: "Session renewal attempts by outcome (success/failure/deduplicated)",
		},
		[]string{"outcome"},
	)

	// SessionRenewalDuration tracks renewal latency in seconds
	SessionRenewalDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "session_renewal_duration_seconds",
			Help:    "Session renewal duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// SessionTerminationsTotal tracks forced and manual session endings
	SessionTerminationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_terminations_total",
			Help: "Session terminations by reason (timeout/manual/signed_out)",
		},
		[]string{"reason"},
	)
)

// Retry / throttling metrics
var (
	// RetryAttemptsTotal tracks backoff retries by operation label
	RetryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Retries performed by the invoker, by operation label",
		},
		[]string{"operation"},
	)

	// ThrottleEventsTotal tracks observed backend throttle signals
	ThrottleEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "throttle_events_total",
			Help: "Backend throttle signals recorded in the backoff ledger",
		},
	)
)

// Activity metrics
var (
	// ActivityEventsTotal tracks qualifying interaction events by kind
	ActivityEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_events_total",
			Help: "Qualifying interaction events received, by kind",
		},
		[]string{"kind"},
	)

	// ActivityConnections tracks currently connected activity websockets
	ActivityConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "activity_ws_connections",
			Help: "Currently connected activity websocket clients",
		},
	)

	// ActivityConnectionsRejectedTotal tracks rejected websocket connects
	ActivityConnectionsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_ws_rejected_total",
			Help: "Rejected activity websocket connections by reason",
		},
		[]string{"reason"},
	)
)

// Credential storage metrics
var (
	// StorageOpsTotal tracks credential store operations by operation and status
	StorageOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credential_storage_operations_total",
			Help: "Credential store operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// StorageOpDuration tracks credential store latency in seconds
	StorageOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "credential_storage_operation_duration_seconds",
			Help:    "Credential store operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// StorageConnectionErrors tracks storage connection errors
	StorageConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "credential_storage_connection_errors_total",
			Help: "Total credential store connection errors",
		},
	)

	// CircuitBreakerStateChanges tracks breaker transitions on the store
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)
