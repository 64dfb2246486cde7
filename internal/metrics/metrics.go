package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the data pipeline and the API.
// Tracks cleaning drops per dataset, memo cache efficiency and request latency.
type Metrics struct {
	Registry *prometheus.Registry

	RowsDropped     *prometheus.CounterVec
	RowsKept        *prometheus.GaugeVec
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	RequestDuration *prometheus.HistogramVec
}

// New creates a Metrics instance on its own registry, so several sessions
// (tests, tools) can coexist in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		RowsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ageofrisk_rows_dropped_total",
			Help: "Source rows dropped while cleaning, by dataset and reason",
		}, []string{"dataset", "reason"}),
		RowsKept: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ageofrisk_rows_kept",
			Help: "Rows in each canonical table after cleaning",
		}, []string{"dataset"}),
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "ageofrisk_memo_hits_total",
			Help: "Memoized query results served from cache",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "ageofrisk_memo_misses_total",
			Help: "Query results computed because no cache entry existed",
		}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ageofrisk_request_duration_seconds",
			Help:    "Duration of API requests by route",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"route", "status"}),
	}
}

// ObserveDropped records the drop counters of one cleaned dataset.
func (m *Metrics) ObserveDropped(dataset string, dropped map[string]int, kept int) {
	for reason, n := range dropped {
		if n > 0 {
			m.RowsDropped.WithLabelValues(dataset, reason).Add(float64(n))
		}
	}
	m.RowsKept.WithLabelValues(dataset).Set(float64(kept))
}

// ObserveRequest records the duration of a request.
// Call with time.Now() at the start of the request.
func (m *Metrics) ObserveRequest(route, status string, start time.Time) {
	m.RequestDuration.WithLabelValues(route, status).Observe(time.Since(start).Seconds())
}
