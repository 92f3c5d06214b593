// Package metrics exposes Prometheus collectors for the delete queue and the
// storage layer. A Metrics value satisfies both deletequeue.MetricsHook and
// pebblestore.MetricsHook.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sift"

// Metrics groups every collector registered by sift.
type Metrics struct {
	reg prometheus.Gatherer

	deletesPushed   prometheus.Counter
	pendingDeletes  prometheus.Gauge
	blocksFlushed   prometheus.Counter
	blockSize       prometheus.Histogram
	flushDuration   prometheus.Histogram
	cursorsCreated  prometheus.Counter
	storageReads    prometheus.Counter
	storageReadB    prometheus.Counter
	storageCommits  prometheus.Counter
	storageCommitB  prometheus.Counter
	commitDuration  prometheus.Histogram
	deletesApplied  prometheus.Counter
	segmentsTouched prometheus.Counter
}

// New registers sift's collectors on reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		deletesPushed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "deletequeue", Name: "pushed_total",
			Help: "Delete operations pushed to the queue.",
		}),
		pendingDeletes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "deletequeue", Name: "pending",
			Help: "Delete operations pushed but not yet materialized into a block.",
		}),
		blocksFlushed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "deletequeue", Name: "blocks_total",
			Help: "Blocks materialized from the pending buffer.",
		}),
		blockSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "deletequeue", Name: "block_ops",
			Help:    "Operations per materialized block.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		flushDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "deletequeue", Name: "flush_seconds",
			Help:    "Time spent materializing a block.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		cursorsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "deletequeue", Name: "cursors_total",
			Help: "Cursors obtained from the queue.",
		}),
		storageReads: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "storage", Name: "reads_total",
			Help: "Point reads served by the store.",
		}),
		storageReadB: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "storage", Name: "read_bytes_total",
			Help: "Bytes returned by point reads.",
		}),
		storageCommits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "storage", Name: "commits_total",
			Help: "Batches committed.",
		}),
		storageCommitB: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "storage", Name: "commit_bytes_total",
			Help: "Bytes written by committed batches.",
		}),
		commitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "indexer", Name: "commit_seconds",
			Help:    "Duration of indexer commits including delete replay.",
			Buckets: prometheus.DefBuckets,
		}),
		deletesApplied: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "indexer", Name: "docs_deleted_total",
			Help: "Documents marked deleted by replayed delete operations.",
		}),
		segmentsTouched: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "indexer", Name: "segments_touched_total",
			Help: "Segments whose alive bitset changed during a commit.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// deletequeue.MetricsHook

func (m *Metrics) ObservePush(pending int) {
	m.deletesPushed.Inc()
	m.pendingDeletes.Set(float64(pending))
}

func (m *Metrics) ObserveFlush(ops int, elapsed time.Duration) {
	m.blocksFlushed.Inc()
	m.blockSize.Observe(float64(ops))
	m.flushDuration.Observe(elapsed.Seconds())
	m.pendingDeletes.Set(0)
}

func (m *Metrics) ObserveCursor() { m.cursorsCreated.Inc() }

// pebblestore.MetricsHook

func (m *Metrics) ObserveRead(_ time.Duration, bytes int) {
	m.storageReads.Inc()
	m.storageReadB.Add(float64(bytes))
}

func (m *Metrics) ObserveBatchCommit(_ time.Duration, bytes int) {
	m.storageCommits.Inc()
	m.storageCommitB.Add(float64(bytes))
}

// indexer hooks

func (m *Metrics) ObserveCommit(elapsed time.Duration, touched int) {
	m.commitDuration.Observe(elapsed.Seconds())
	m.segmentsTouched.Add(float64(touched))
}

func (m *Metrics) ObserveDeleted(docs int) {
	m.deletesApplied.Add(float64(docs))
}
