package server

import "github.com/prometheus/client_golang/prometheus"

// dispatchMetrics exposes the counters named in SPEC_FULL.md's DOMAIN
// STACK table, grounded on jordigilh-kubernaut's Prometheus
// instrumentation pattern (a struct of pre-registered collectors, one
// method per observation point).
type dispatchMetrics struct {
	registry      *prometheus.Registry
	dispatchTotal *prometheus.CounterVec
	readySetSize  prometheus.Histogram
}

// newDispatchMetrics uses a private registry rather than the global
// default one, so multiple Server instances (as in tests) can each
// register their own collectors without a duplicate-registration panic.
func newDispatchMetrics() *dispatchMetrics {
	reg := prometheus.NewRegistry()
	m := &dispatchMetrics{
		registry: reg,
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "whatsnext_dispatch_total",
			Help: "Outcomes of fetch_next calls, partitioned by result.",
		}, []string{"result"}),
		readySetSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "whatsnext_ready_set_size",
			Help:    "Size of the ready set computed on each dispatch attempt.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
	reg.MustRegister(m.dispatchTotal, m.readySetSize)
	return m
}

func (m *dispatchMetrics) observeDispatch(dispatched bool) {
	if dispatched {
		m.dispatchTotal.WithLabelValues("dispatched").Inc()
	} else {
		m.dispatchTotal.WithLabelValues("idle").Inc()
	}
}
