// Package telemetry holds the Prometheus collectors shared by the ingestion
// pipeline, the report service and the HTTP layer.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	reg         *prometheus.Registry
	sources     *prometheus.CounterVec
	rows        prometheus.Counter
	dropped     *prometheus.CounterVec
	buckets     *prometheus.GaugeVec
	reqDuration *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		sources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tracker",
			Name:      "sources_total",
			Help:      "Report files and sheets read, by outcome.",
		}, []string{"status"}),
		rows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tracker",
			Name:      "records_ingested_total",
			Help:      "Canonical records produced by normalization.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tracker",
			Name:      "rows_dropped_total",
			Help:      "Raw rows not turned into records, by reason.",
		}, []string{"reason"}),
		buckets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tracker",
			Name:      "segment_groups",
			Help:      "Groups in each segment bucket on the last segmentation.",
		}, []string{"bucket"}),
		reqDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tracker",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.sources, m.rows, m.dropped, m.buckets, m.reqDuration)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) SourceRead(ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.sources.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordsIngested(n int) {
	if m == nil {
		return
	}
	m.rows.Add(float64(n))
}

func (m *Metrics) RowsDropped(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.dropped.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) BucketSize(bucket string, n int) {
	if m == nil {
		return
	}
	m.buckets.WithLabelValues(bucket).Set(float64(n))
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.reqDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
