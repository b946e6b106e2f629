// Package metrics holds the Prometheus collectors of the genealogy services.
// Each Registry owns its own prometheus.Registry so binaries and tests do not
// share global state.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "heritage"

// DefaultBuckets are the histogram buckets used for request and load
// durations, in seconds.
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Registry groups every collector a service may report.
type Registry struct {
	reg *prometheus.Registry

	HTTPRequests *prometheus.CounterVec   // method, route, status
	HTTPDuration *prometheus.HistogramVec // method, route

	SnapshotLoads    *prometheus.CounterVec // result
	SnapshotDuration prometheus.Histogram
	SnapshotMembers  prometheus.Gauge

	Relationships *prometheus.CounterVec // kind

	IngestRecords  *prometheus.CounterVec   // result
	IngestDuration *prometheus.HistogramVec // stage
	IngestDLQ      prometheus.Counter
}

// New creates a Registry with Go runtime and process collectors attached.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Registry{
		reg: reg,
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   DefaultBuckets,
		}, []string{"method", "route"}),
		SnapshotLoads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_loads_total",
			Help:      "Member snapshot loads by result.",
		}, []string{"result"}),
		SnapshotDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_load_duration_seconds",
			Help:      "Time to load members and build the kinship index.",
			Buckets:   DefaultBuckets,
		}),
		SnapshotMembers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_members",
			Help:      "Members in the current snapshot.",
		}),
		Relationships: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relationship_inferences_total",
			Help:      "Relationship lookups by inferred kind.",
		}, []string{"kind"}),
		IngestRecords: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_records_total",
			Help:      "Member records processed by the ingest pipeline, by result.",
		}, []string{"result"}),
		IngestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_stage_duration_seconds",
			Help:      "Per-stage ingest duration.",
			Buckets:   DefaultBuckets,
		}, []string{"stage"}),
		IngestDLQ: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_dlq_total",
			Help:      "Upsert requests sent to the dead letter queue.",
		}),
	}
}

// ObserveRequest records one served HTTP request.
func (r *Registry) ObserveRequest(method, route string, status int, d time.Duration) {
	r.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveStage records the duration of one ingest stage.
func (r *Registry) ObserveStage(stage string, start time.Time) {
	r.IngestDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry, e.g. for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
