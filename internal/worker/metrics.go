package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry           *prometheus.Registry
	jobsTotal          *prometheus.CounterVec
	jobDuration        *prometheus.HistogramVec
	activeJobs         prometheus.Gauge
	outputsTotal       *prometheus.CounterVec
	fallbacksTotal     prometheus.Counter
	pixelsRendered     prometheus.Counter
	bytesWrittenTotal  prometheus.Counter
	computeTimeMSTotal prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marble_worker_jobs_total",
			Help: "Render jobs by requested format and final status.",
		}, []string{"format", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marble_worker_job_duration_seconds",
			Help:    "End-to-end duration of each render job.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"format", "status"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marble_worker_active_jobs",
			Help: "Render jobs currently holding a worker slot.",
		}),
		outputsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marble_worker_outputs_total",
			Help: "Artifacts emitted by kind.",
		}, []string{"kind"}),
		fallbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marble_worker_raster_fallbacks_total",
			Help: "PNG jobs that were stored as SVG after rasterization failed.",
		}),
		pixelsRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marble_usage_pixels_rendered_total",
			Help: "Raster pixels produced by successful jobs.",
		}),
		bytesWrittenTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marble_usage_bytes_written_total",
			Help: "Artifact bytes written by successful jobs.",
		}),
		computeTimeMSTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marble_usage_compute_time_ms_total",
			Help: "Compute time in milliseconds across successful jobs.",
		}),
	}

	registry.MustRegister(
		m.jobsTotal,
		m.jobDuration,
		m.activeJobs,
		m.outputsTotal,
		m.fallbacksTotal,
		m.pixelsRendered,
		m.bytesWrittenTotal,
		m.computeTimeMSTotal,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
