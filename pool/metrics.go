package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// poolMetrics instruments one pool instance, following the same
// promauto-per-field style the engine's metrics use.
type poolMetrics struct {
	submitted prometheus.Counter
	completed prometheus.Counter
	panicked  prometheus.Counter
	inFlight  prometheus.Gauge
}

func newPoolMetrics(kind string) *poolMetrics {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"pool": kind}
	return &poolMetrics{
		submitted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name:        "kvs_pool_jobs_submitted_total",
			Help:        "kvs_pool_jobs_submitted_total counts jobs handed to Spawn.",
			ConstLabels: labels,
		}),
		completed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name:        "kvs_pool_jobs_completed_total",
			Help:        "kvs_pool_jobs_completed_total counts jobs that ran to completion without panicking.",
			ConstLabels: labels,
		}),
		panicked: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name:        "kvs_pool_jobs_panicked_total",
			Help:        "kvs_pool_jobs_panicked_total counts worker panics that were recovered and replaced.",
			ConstLabels: labels,
		}),
		inFlight: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name:        "kvs_pool_jobs_in_flight",
			Help:        "kvs_pool_jobs_in_flight reports how many jobs are currently executing.",
			ConstLabels: labels,
		}),
	}
}
