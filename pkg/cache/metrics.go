package cache

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for result cache operations.
type Metrics struct {
	hits       prometheus.Counter
	misses     prometheus.Counter
	sharedHits prometheus.Counter
	evictions  prometheus.Counter
	size       prometheus.Gauge
}

// NewMetrics creates cache metrics and registers them with reg.
// A nil reg leaves the metrics unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nlq",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of local cache hits",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nlq",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of computations run on a miss",
		}),
		sharedHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nlq",
			Subsystem: "cache",
			Name:      "shared_hits_total",
			Help:      "Total number of misses answered by the shared tier",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nlq",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Total number of expired entries removed",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nlq",
			Subsystem: "cache",
			Name:      "size",
			Help:      "Current number of entries in the local cache",
		}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.hits, m.misses, m.sharedHits, m.evictions, m.size} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
