package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RuleMutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rule_mutations_total",
			Help: "Total number of rule mutations (count)",
		},
		[]string{"operation", "rule_type"},
	)

	RuleVersionsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rule_versions_created_total",
			Help: "Total number of rule versions created (count)",
		},
		[]string{"rule_type"},
	)

	RuleSetMutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rule_set_mutations_total",
			Help: "Total number of rule set mutations (count)",
		},
		[]string{"operation"},
	)

	ApprovalsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approvals_submitted_total",
			Help: "Total number of entities submitted for approval (count)",
		},
		[]string{"entity_type"},
	)

	ApprovalsDecidedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approvals_decided_total",
			Help: "Total number of approval decisions (count)",
		},
		[]string{"entity_type", "decision"},
	)

	ConditionTreeValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "condition_tree_validations_total",
			Help: "Total number of condition tree validations (count)",
		},
		[]string{"result"},
	)

	LifecycleEventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_events_published_total",
			Help: "Total number of lifecycle events published to Kafka (count)",
		},
		[]string{"event_type", "status"},
	)

	LifecycleEventPublishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lifecycle_event_publish_duration_ms",
			Help:    "Duration of publishing lifecycle events to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"event_type"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"operation"},
	)

	CapabilityCacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capability_cache_requests_total",
			Help: "Total number of capability cache lookups (count)",
		},
		[]string{"result"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"operation"},
	)

	DatabaseConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_active",
			Help: "Number of active database connections (count)",
		},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_ms",
			Help:    "Duration of HTTP requests in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterGovernanceMetrics() {
	prometheus.MustRegister(RuleMutationsTotal)
	prometheus.MustRegister(RuleVersionsCreatedTotal)
	prometheus.MustRegister(RuleSetMutationsTotal)
	prometheus.MustRegister(ApprovalsSubmittedTotal)
	prometheus.MustRegister(ApprovalsDecidedTotal)
	prometheus.MustRegister(ConditionTreeValidationsTotal)
	prometheus.MustRegister(RateLimitRequestsTotal)
	prometheus.MustRegister(CapabilityCacheRequestsTotal)
	prometheus.MustRegister(DatabaseQueriesTotal)
	prometheus.MustRegister(DatabaseQueryDuration)
	prometheus.MustRegister(DatabaseConnectionsActive)
	prometheus.MustRegister(HTTPRequestDuration)
}

func RegisterEventMetrics() {
	prometheus.MustRegister(LifecycleEventsPublishedTotal)
	prometheus.MustRegister(LifecycleEventPublishDuration)
	prometheus.MustRegister(RetryAttemptsTotal)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func IncLifecycleEventPublished(eventType, status string) {
	LifecycleEventsPublishedTotal.WithLabelValues(eventType, status).Inc()
}

func ObserveLifecycleEventPublishDuration(eventType string, duration time.Duration) {
	LifecycleEventPublishDuration.WithLabelValues(eventType).Observe(float64(duration.Milliseconds()))
}

func IncDatabaseQuery(operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(operation, status).Inc()
}

func ObserveDatabaseQueryDuration(operation string, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(operation).Observe(float64(duration.Milliseconds()))
}

func SetDatabaseConnectionsActive(count int) {
	DatabaseConnectionsActive.Set(float64(count))
}

func ObserveHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(float64(duration.Milliseconds()))
}
