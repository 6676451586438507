package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collector's Prometheus instruments. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	PagesFetched   prometheus.Counter
	PageFailures   prometheus.Counter
	RecordsWritten prometheus.Counter
	RowsDropped    prometheus.Counter
	Runs           *prometheus.CounterVec
	RunDuration    prometheus.Histogram
}

// New registers the instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PagesFetched: f.NewCounter(prometheus.CounterOpts{
			Name: "aqx_pages_fetched_total",
			Help: "Pages successfully fetched from the air-quality API",
		}),
		PageFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "aqx_page_failures_total",
			Help: "Pages that failed after retries and were skipped",
		}),
		RecordsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "aqx_records_written_total",
			Help: "Records written to output CSV files",
		}),
		RowsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "aqx_rows_dropped_total",
			Help: "Rows removed by the cleaning step",
		}),
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aqx_runs_total",
			Help: "Collector runs by outcome",
		}, []string{"status"}), // complete, incomplete, failed
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "aqx_run_duration_seconds",
			Help:    "Duration of collector runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}

func (m *Metrics) PageFetched(records int) {
	if m == nil {
		return
	}
	m.PagesFetched.Inc()
	m.RecordsWritten.Add(float64(records))
}

func (m *Metrics) PageFailed() {
	if m == nil {
		return
	}
	m.PageFailures.Inc()
}

func (m *Metrics) Dropped(rows int) {
	if m == nil {
		return
	}
	m.RowsDropped.Add(float64(rows))
}

// RunFinished records a run outcome and how long it took.
func (m *Metrics) RunFinished(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(status).Inc()
	m.RunDuration.Observe(d.Seconds())
}
