package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RPC metrics (pkg/rpc)
	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hatn_rpc_requests_total",
			Help: "Total number of RPC requests handled, by service, method and outcome",
		},
		[]string{"service", "method", "outcome"},
	)

	RPCRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hatn_rpc_request_duration_seconds",
			Help:    "RPC request duration in seconds, by service and method",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method"},
	)

	MicroservicesRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hatn_microservices_running",
			Help: "Total number of microservice instances currently serving",
		},
	)

	// Db metrics (pkg/db)
	DbOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hatn_db_operations_total",
			Help: "Total number of store operations, by model, operation and outcome",
		},
		[]string{"model", "operation", "outcome"},
	)

	DbOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hatn_db_operation_duration_seconds",
			Help:    "Store operation duration in seconds, by model and operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model", "operation"},
	)

	DbPartitionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hatn_db_partitions_total",
			Help: "Number of known partitions, by model",
		},
		[]string{"model"},
	)

	// Crypt metrics (pkg/cryptfile)
	CryptOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hatn_crypt_operation_duration_seconds",
			Help:    "Cipher operation duration in seconds, by algorithm and operation (encrypt/decrypt/sign/verify)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"algorithm", "operation"},
	)

	CryptOperationsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hatn_crypt_operations_failed_total",
			Help: "Total number of cipher operations that failed, by algorithm and operation",
		},
		[]string{"algorithm", "operation"},
	)

	// Config metrics (pkg/configtree)
	ConfigReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hatn_config_reloads_total",
			Help: "Total number of configuration tree (re)parses, by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		RPCRequestsTotal,
		RPCRequestDuration,
		MicroservicesRunning,
		DbOperationsTotal,
		DbOperationDuration,
		DbPartitionsTotal,
		CryptOperationDuration,
		CryptOperationsFailed,
		ConfigReloadsTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
