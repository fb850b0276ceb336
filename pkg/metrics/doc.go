/*
Package metrics provides Prometheus metrics collection and exposition for the
runtime.

The metrics package defines and registers every runtime metric using the
Prometheus client library, providing observability into RPC traffic, store
operations, cipher throughput, and configuration reloads. Metrics are exposed
via an HTTP endpoint for scraping by Prometheus servers, and a small health
checker tracks per-component liveness and readiness alongside them.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  RPC:    requests, duration, running count  │          │
	│  │  Db:     operations, duration, partitions   │          │
	│  │  Crypt:  cipher duration, failures          │          │
	│  │  Config: reload outcomes                    │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │     /health, /ready, /live endpoints        │          │
	│  │  - HealthChecker tracks named components    │          │
	│  │  - GetReadiness gates on db, rpc, api        │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Metrics Catalog

RPC Metrics (pkg/rpc):

hatn_rpc_requests_total{service, method, outcome}:
  - Type: Counter
  - Description: Total RPC requests handled, by service, method and outcome
  - Example: hatn_rpc_requests_total{service="jobsched",method="Post",outcome="ok"} 42

hatn_rpc_request_duration_seconds{service, method}:
  - Type: Histogram
  - Description: RPC request duration in seconds
  - Buckets: Default Prometheus buckets

hatn_microservices_running:
  - Type: Gauge
  - Description: Microservice instances currently accepting connections

Db Metrics (pkg/db):

hatn_db_operations_total{model, operation, outcome}:
  - Type: Counter
  - Description: Store operations by model, operation (create/delete/get) and outcome

hatn_db_operation_duration_seconds{model, operation}:
  - Type: Histogram
  - Description: Store operation duration in seconds

hatn_db_partitions_total{model}:
  - Type: Gauge
  - Description: Number of known partitions per model

Crypt Metrics (pkg/cryptfile):

hatn_crypt_operation_duration_seconds{algorithm, operation}:
  - Type: Histogram
  - Description: Cipher chunk duration, operation is encrypt or decrypt

hatn_crypt_operations_failed_total{algorithm, operation}:
  - Type: Counter
  - Description: Cipher operations that returned an error

Config Metrics (pkg/configtree):

hatn_config_reloads_total{outcome}:
  - Type: Counter
  - Description: Configuration tree (re)parses, outcome is ok or error

# Usage

	import "github.com/hatn-go/hatn/pkg/metrics"

	timer := metrics.NewTimer()
	resp, err := doSomething()
	timer.ObserveDurationVec(metrics.RPCRequestDuration, "jobsched", "Post")
	if err != nil {
		metrics.RPCRequestsTotal.WithLabelValues("jobsched", "Post", "error").Inc()
		return err
	}
	metrics.RPCRequestsTotal.WithLabelValues("jobsched", "Post", "ok").Inc()

Exposing the endpoint:

	http.Handle("/metrics", metrics.Handler())
	http.HandleFunc("/health", metrics.HealthHandler())
	http.HandleFunc("/ready", metrics.ReadyHandler())
	http.HandleFunc("/live", metrics.LivenessHandler())

# Integration Points

This package integrates with:

  - pkg/rpc: instruments ServiceRouter.dispatch and MicroService.Serve
  - pkg/db: instruments Store.Create/Delete/Get and partition registration
  - pkg/cryptfile: instruments chunk encrypt/decrypt
  - pkg/configtree: instruments Parse
  - Prometheus: scrapes /metrics endpoint

# Design Patterns

Package Init Registration:
  - All metrics registered in init() function
  - MustRegister panics on duplicate registration

Timer Pattern:
  - Create timer at operation start
  - Observe (or defer observing) duration, with or without labels

Label Discipline:
  - Labels are bounded: service/method names, model IDs, algorithm names,
    outcome strings -- never object IDs or timestamps

# See Also

  - Prometheus documentation: https://prometheus.io/docs/
  - Prometheus client library: https://github.com/prometheus/client_golang
*/
package metrics
