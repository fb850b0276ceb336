package jobsched

import "github.com/prometheus/client_golang/prometheus"

// Prometheus collectors for the scheduler, grounded on pkg/metrics/
// metrics.go's package-level GaugeVec/Counter pattern, retargeted from
// cluster/node counts to job-dispatch counters.
var (
	jobsClaimedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobsched_jobs_claimed_total",
		Help: "Total number of scheduler jobs claimed by a dispatch cycle",
	})

	jobsFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobsched_jobs_failed_total",
		Help: "Total number of scheduler job invocations that returned an error",
	})

	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "jobsched_queue_depth",
		Help: "Current number of claimed jobs waiting in the worker queue",
	})
)

func init() {
	prometheus.MustRegister(jobsClaimedTotal, jobsFailedTotal, queueDepth)
}
