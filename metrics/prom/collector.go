// Package prom exports datastore metrics to Prometheus.
//
//	c := prom.New("knnstore")
//	prometheus.MustRegister(c)
//	ds := knnstore.New(knnstore.WithMetricsCollector(c))
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/knnstore"
)

var _ knnstore.MetricsCollector = (*Collector)(nil)
var _ prometheus.Collector = (*Collector)(nil)

// Collector implements knnstore.MetricsCollector and prometheus.Collector.
type Collector struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	vectors    prometheus.Counter
	queries    prometheus.Counter
	bytes      *prometheus.CounterVec
}

// New creates a collector whose metric names start with namespace.
func New(namespace string) *Collector {
	return &Collector{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Datastore operations by kind and status.",
		}, []string{"op", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of datastore operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 12),
		}, []string{"op"}),
		vectors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vectors_added_total",
			Help:      "Vectors added to the datastore.",
		}),
		queries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Queries answered by Search.",
		}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persisted_bytes_total",
			Help:      "Bytes written by Save and read by Load.",
		}, []string{"direction"}),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.operations.Describe(ch)
	c.latency.Describe(ch)
	c.vectors.Describe(ch)
	c.queries.Describe(ch)
	c.bytes.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.operations.Collect(ch)
	c.latency.Collect(ch)
	c.vectors.Collect(ch)
	c.queries.Collect(ch)
	c.bytes.Collect(ch)
}

func (c *Collector) observe(op string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.operations.WithLabelValues(op, status).Inc()
	c.latency.WithLabelValues(op).Observe(d.Seconds())
}

// RecordTrain implements knnstore.MetricsCollector.
func (c *Collector) RecordTrain(_ int, d time.Duration, err error) {
	c.observe("train", d, err)
}

// RecordAdd implements knnstore.MetricsCollector.
func (c *Collector) RecordAdd(count int, d time.Duration, err error) {
	c.observe("add", d, err)
	if err == nil {
		c.vectors.Add(float64(count))
	}
}

// RecordSearch implements knnstore.MetricsCollector.
func (c *Collector) RecordSearch(queries, _ int, d time.Duration, err error) {
	c.observe("search", d, err)
	if err == nil {
		c.queries.Add(float64(queries))
	}
}

// RecordSave implements knnstore.MetricsCollector.
func (c *Collector) RecordSave(bytes int64, d time.Duration, err error) {
	c.observe("save", d, err)
	if err == nil {
		c.bytes.WithLabelValues("write").Add(float64(bytes))
	}
}

// RecordLoad implements knnstore.MetricsCollector.
func (c *Collector) RecordLoad(bytes int64, d time.Duration, err error) {
	c.observe("load", d, err)
	if err == nil {
		c.bytes.WithLabelValues("read").Add(float64(bytes))
	}
}
