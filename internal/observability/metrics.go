package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects pipeline and worker metrics.
type Metrics interface {
	RecordFetch(logType string, records int, err error)
	RecordSkipped(logType string, n int)
	RecordUpload(logType string, err error)
	RecordJob(status string, duration time.Duration)
	SetQueueDepth(n int)
}

// PrometheusMetrics implements Metrics on a dedicated registry.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	fetchTotal     *prometheus.CounterVec
	recordsFetched *prometheus.CounterVec
	recordsSkipped *prometheus.CounterVec
	uploadsTotal   *prometheus.CounterVec
	jobsTotal      *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	queueDepth     prometheus.Gauge
}

func NewPrometheusMetrics() *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &PrometheusMetrics{
		registry: reg,
		fetchTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loggather_fetch_total",
				Help: "Access log fetches by log type and result",
			},
			[]string{"log_type", "result"},
		),
		recordsFetched: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loggather_records_fetched_total",
				Help: "Raw access log records fetched",
			},
			[]string{"log_type"},
		),
		recordsSkipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loggather_records_skipped_total",
				Help: "Records dropped because their datafile no longer exists",
			},
			[]string{"log_type"},
		),
		uploadsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loggather_uploads_total",
				Help: "Export file uploads by log type and result",
			},
			[]string{"log_type", "result"},
		),
		jobsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loggather_jobs_total",
				Help: "Retrieval jobs processed by final status",
			},
			[]string{"status"},
		),
		jobDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loggather_job_duration_seconds",
				Help:    "Retrieval job duration",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
			},
			[]string{"status"},
		),
		queueDepth: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "loggather_queue_pending_jobs",
				Help: "Retrieval jobs waiting to be claimed",
			},
		),
	}
}

// Registry exposes the collectors for the /metrics handler.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *PrometheusMetrics) RecordFetch(logType string, records int, err error) {
	m.fetchTotal.WithLabelValues(logType, result(err)).Inc()
	if err == nil {
		m.recordsFetched.WithLabelValues(logType).Add(float64(records))
	}
}

func (m *PrometheusMetrics) RecordSkipped(logType string, n int) {
	m.recordsSkipped.WithLabelValues(logType).Add(float64(n))
}

func (m *PrometheusMetrics) RecordUpload(logType string, err error) {
	m.uploadsTotal.WithLabelValues(logType, result(err)).Inc()
}

func (m *PrometheusMetrics) RecordJob(status string, duration time.Duration) {
	m.jobsTotal.WithLabelValues(status).Inc()
	m.jobDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordFetch(string, int, error)  {}
func (NopMetrics) RecordSkipped(string, int)       {}
func (NopMetrics) RecordUpload(string, error)      {}
func (NopMetrics) RecordJob(string, time.Duration) {}
func (NopMetrics) SetQueueDepth(int)               {}
