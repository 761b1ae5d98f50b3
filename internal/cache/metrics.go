package cache

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
	facts     prometheus.Gauge
}

func newMetrics() *metrics {
	return &metrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deduce_cache_hits_total",
			Help: "Total number of selector results served from the cache.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deduce_cache_misses_total",
			Help: "Total number of selector results fetched from the source.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deduce_cache_evictions_total",
			Help: "Total number of cached results evicted to make room.",
		}),
		facts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deduce_cache_facts",
			Help: "Current number of facts held by the cache.",
		}),
	}
}

func (m *metrics) register(reg prometheus.Registerer) {
	reg.MustRegister(m.hits, m.misses, m.evictions, m.facts)
}
