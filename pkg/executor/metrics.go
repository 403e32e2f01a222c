package executor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

// Metrics holds Prometheus metrics for query execution.
type Metrics struct {
	executions *prometheus.CounterVec
	duration   prometheus.Histogram
	inFlight   prometheus.Gauge
	rows       prometheus.Counter
	truncated  prometheus.Counter
}

// NewMetrics creates execution metrics and registers them with reg.
// A nil reg leaves the metrics unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nlq",
			Subsystem: "executor",
			Name:      "executions_total",
			Help:      "Total number of executions by terminal status",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nlq",
			Subsystem: "executor",
			Name:      "execution_duration_seconds",
			Help:      "Time from RUNNING to a terminal status",
			Buckets:   prometheus.DefBuckets,
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nlq",
			Subsystem: "executor",
			Name:      "in_flight",
			Help:      "Number of executions currently running",
		}),
		rows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nlq",
			Subsystem: "executor",
			Name:      "rows_returned_total",
			Help:      "Total number of rows returned to callers",
		}),
		truncated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nlq",
			Subsystem: "executor",
			Name:      "truncated_total",
			Help:      "Total number of results cut at the row limit",
		}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.executions, m.duration, m.inFlight, m.rows, m.truncated} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) recordOutcome(status models.QueryStatus, elapsed time.Duration, result *models.QueryResult) {
	m.executions.WithLabelValues(string(status)).Inc()
	m.duration.Observe(elapsed.Seconds())
	if result == nil {
		return
	}
	m.rows.Add(float64(result.RowCount))
	if result.Truncated {
		m.truncated.Inc()
	}
}
