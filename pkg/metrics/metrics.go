package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RelayCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_cycles_total",
			Help: "Total number of drain-and-insert cycles (count)",
		},
		[]string{"status"},
	)

	RelayMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_total",
			Help: "Total number of relayed messages by outcome: received, parsed, skipped, filtered (count)",
		},
		[]string{"outcome"},
	)

	RelayRowsInsertedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_rows_inserted_total",
			Help: "Total number of rows reported inserted by the store (count)",
		},
	)

	RelayCycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_cycle_duration_ms",
			Help:    "Duration of a drain-and-insert cycle in milliseconds",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
		[]string{"status"},
	)

	RelayBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_batch_size",
			Help:    "Number of records handed to the store per cycle (count)",
			Buckets: []float64{0, 1, 10, 50, 100, 500, 1000, 5000, 10000},
		},
	)

	PublisherMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publisher_messages_total",
			Help: "Total number of messages published by the fan-out publisher (count)",
		},
		[]string{"status"},
	)

	QueueMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_message_size_bytes",
			Help:    "Size of queue messages in bytes",
			Buckets: []float64{16, 32, 64, 128, 256, 512, 1024, 4096, 16384},
		},
		[]string{"broker", "direction"},
	)

	QueueReceiveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_receive_duration_ms",
			Help:    "Duration of a single receive call in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"broker"},
	)

	QueueSendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_send_duration_ms",
			Help:    "Duration of a single send call in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"broker"},
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

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"database", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"database", "operation"},
	)

	DatabaseConnectionsOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "database_connections_open",
			Help: "Number of open database connections (count)",
		},
		[]string{"database"},
	)
)

func RegisterRelayMetrics() {
	prometheus.MustRegister(RelayCyclesTotal)
	prometheus.MustRegister(RelayMessagesTotal)
	prometheus.MustRegister(RelayRowsInsertedTotal)
	prometheus.MustRegister(RelayCycleDuration)
	prometheus.MustRegister(RelayBatchSize)
}

func RegisterPublisherMetrics() {
	prometheus.MustRegister(PublisherMessagesTotal)
}

func RegisterQueueMetrics() {
	prometheus.MustRegister(QueueMessageSizeBytes)
	prometheus.MustRegister(QueueReceiveDuration)
	prometheus.MustRegister(QueueSendDuration)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterStoreMetrics() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(DatabaseQueriesTotal)
	prometheus.MustRegister(DatabaseQueryDuration)
	prometheus.MustRegister(DatabaseConnectionsOpen)
}

func RegisterHTTPMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func ObserveRelayCycle(status string, duration time.Duration) {
	RelayCyclesTotal.WithLabelValues(status).Inc()
	RelayCycleDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func AddRelayMessages(outcome string, n int) {
	if n <= 0 {
		return
	}
	RelayMessagesTotal.WithLabelValues(outcome).Add(float64(n))
}

func AddRowsInserted(n int64) {
	if n <= 0 {
		return
	}
	RelayRowsInsertedTotal.Add(float64(n))
}

func ObserveRelayBatchSize(n int) {
	RelayBatchSize.Observe(float64(n))
}

func IncPublisherMessage(status string) {
	PublisherMessagesTotal.WithLabelValues(status).Inc()
}

func ObserveQueueMessageSize(broker, direction string, sizeBytes int) {
	QueueMessageSizeBytes.WithLabelValues(broker, direction).Observe(float64(sizeBytes))
}

func ObserveQueueReceiveDuration(broker string, duration time.Duration) {
	QueueReceiveDuration.WithLabelValues(broker).Observe(float64(duration.Milliseconds()))
}

func ObserveQueueSendDuration(broker string, duration time.Duration) {
	QueueSendDuration.WithLabelValues(broker).Observe(float64(duration.Milliseconds()))
}

func IncRetryAttempt(operation string) {
	RetryAttemptsTotal.WithLabelValues(operation).Inc()
}

func IncDatabaseQuery(database, operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(database, operation, status).Inc()
}

func ObserveDatabaseQueryDuration(database, operation string, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(database, operation).Observe(float64(duration.Milliseconds()))
}

func SetDatabaseConnectionsOpen(database string, count int) {
	DatabaseConnectionsOpen.WithLabelValues(database).Set(float64(count))
}
