package session

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
	entries   prometheus.GaugeFunc
}

func newMetrics(entries func() float64) *metrics {
	return &metrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cutout_session_cache_hits_total",
			Help: "Model session lookups served from the cache.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cutout_session_cache_misses_total",
			Help: "Model session lookups that required construction.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cutout_session_cache_evictions_total",
			Help: "Model sessions evicted or purged from the cache.",
		}),
		entries: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "cutout_session_cache_entries",
			Help: "Model sessions currently cached.",
		}, entries),
	}
}

func (m *metrics) register(reg prometheus.Registerer) {
	reg.MustRegister(m.hits, m.misses, m.evictions, m.entries)
}

func (m *metrics) hit() {
	if m != nil {
		m.hits.Inc()
	}
}

func (m *metrics) miss() {
	if m != nil {
		m.misses.Inc()
	}
}

func (m *metrics) evict() {
	if m != nil {
		m.evictions.Inc()
	}
}
