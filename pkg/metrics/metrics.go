// Package metrics provides Prometheus instrumentation for the framefeed
// load stage.
//
// # Basic Usage
//
//	timer := metrics.NewTimer("read")
//	elements, err := src.Read(ctx, args)
//	metrics.SourceReadLatency.WithLabelValues("blob").Observe(timer.Stop().Seconds())
//	metrics.RowsLoaded.WithLabelValues("blob").Add(float64(len(args)))
//
// All collectors are registered with the default registry on package
// initialization and are safe for concurrent use.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChunksYielded counts batches produced by load workers.
	// Labels: worker
	ChunksYielded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framefeed_chunks_yielded_total",
			Help: "Total number of column-aligned batches yielded",
		},
		[]string{"worker"},
	)

	// RowsLoaded counts rows requested from each source.
	// Labels: source (factory name)
	RowsLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framefeed_rows_loaded_total",
			Help: "Total number of rows requested from sources",
		},
		[]string{"source"},
	)

	// SourceReadLatency tracks the duration of a single source read in seconds.
	// Labels: source
	SourceReadLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "framefeed_source_read_seconds",
			Help: "Latency of one source read call",
			Buckets: []float64{
				0.0005, // 500µs - in-memory sources
				0.005,  // 5ms - local disk
				0.05,   // 50ms - object storage
				0.25,
				1,
				5,
			},
		},
		[]string{"source"},
	)

	// SourceErrors counts failed source reads by error type.
	// Labels: source, type
	SourceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framefeed_source_errors_total",
			Help: "Total number of failed source reads",
		},
		[]string{"source", "type"},
	)

	// ValidationFailures counts sources that failed validation at worker construction.
	// Labels: source
	ValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framefeed_source_validation_failures_total",
			Help: "Total number of sources that failed validation",
		},
		[]string{"source"},
	)

	// WorkEntries counts units of work driven to completion or failure.
	// Labels: status (success/failure)
	WorkEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framefeed_work_entries_total",
			Help: "Total number of units of work processed",
		},
		[]string{"status"},
	)

	// BlobOperations counts blob store calls.
	// Labels: backend, op (get/put), status
	BlobOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framefeed_blob_operations_total",
			Help: "Total number of blob store operations",
		},
		[]string{"backend", "op", "status"},
	)

	// BlobRetries counts retried blob store calls.
	// Labels: backend
	BlobRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framefeed_blob_retries_total",
			Help: "Total number of retried blob store operations",
		},
		[]string{"backend"},
	)

	// IntervalDuration records named profiler intervals in seconds.
	// Labels: name
	IntervalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "framefeed_profile_interval_seconds",
			Help:    "Duration of named profiling intervals",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
		[]string{"name"},
	)
)

// Status returns the status label value for err.
func Status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Start returns the instant the timer was created.
func (t *Timer) Start() time.Time {
	return t.start
}

// Stop returns the elapsed duration since creation. It can be called
// multiple times.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks rows per second over time windows.
// Thread-safe for concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64
	lastReset time.Time
}

// NewThroughputTracker creates a new throughput tracker.
func NewThroughputTracker() *ThroughputTracker {
	return &ThroughputTracker{lastReset: time.Now()}
}

// Increment adds n to the row count.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset returns rows/second since the last reset and starts a new window.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed
	t.count = 0
	t.lastReset = time.Now()
	return throughput
}
