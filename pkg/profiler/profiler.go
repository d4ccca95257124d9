// Package profiler records named time intervals for the load stage.
//
// The load worker and the sources it drives report intervals such as
// "load_worker:read_sources" through the Profiler interface. Implementations
// must be safe for concurrent use: sources read in parallel record into the
// same sink.
package profiler

import (
	"context"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ajitpratap0/framefeed/pkg/metrics"
	"github.com/ajitpratap0/framefeed/pkg/observability"
)

// Profiler records named time intervals.
type Profiler interface {
	AddInterval(name string, start, end time.Time)
}

// Interval is one recorded interval.
type Interval struct {
	Name  string
	Start time.Time
	End   time.Time
}

// Duration returns the length of the interval.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Nop discards every interval.
type Nop struct{}

// AddInterval implements Profiler.
func (Nop) AddInterval(string, time.Time, time.Time) {}

// Recorder keeps intervals in memory. A positive limit bounds the number of
// raw intervals retained; per-name statistics are always complete.
type Recorder struct {
	mu        sync.Mutex
	limit     int
	intervals []Interval
	stats     map[string]*Stats
	startTime time.Time
}

// Stats aggregates the intervals recorded under one name.
type Stats struct {
	Count int
	Total time.Duration
	Max   time.Duration
}

// Mean returns the average interval duration.
func (s Stats) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// NewRecorder creates a recorder retaining at most limit raw intervals
// (0 means unbounded).
func NewRecorder(limit int) *Recorder {
	return &Recorder{
		limit:     limit,
		stats:     make(map[string]*Stats),
		startTime: time.Now(),
	}
}

// AddInterval implements Profiler.
func (r *Recorder) AddInterval(name string, start, end time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.limit <= 0 || len(r.intervals) < r.limit {
		r.intervals = append(r.intervals, Interval{Name: name, Start: start, End: end})
	}

	s, ok := r.stats[name]
	if !ok {
		s = &Stats{}
		r.stats[name] = s
	}
	d := end.Sub(start)
	s.Count++
	s.Total += d
	if d > s.Max {
		s.Max = d
	}
}

// Intervals returns a copy of the retained intervals in recording order.
func (r *Recorder) Intervals() []Interval {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Interval, len(r.intervals))
	copy(out, r.intervals)
	return out
}

// Stats returns a snapshot of the per-name statistics.
func (r *Recorder) Stats() map[string]Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Stats, len(r.stats))
	for name, s := range r.stats {
		out[name] = *s
	}
	return out
}

// Report summarizes a run: per-name statistics plus process resource usage.
type Report struct {
	Elapsed       time.Duration
	Intervals     map[string]Stats
	Names         []string
	RSSBytes      uint64
	CPUPercent    float64
	NumThreads    int32
	NumGoroutines int
	HeapAllocMB   uint64
}

// Report builds a Report. Resource figures that the host cannot provide
// are left zero.
func (r *Recorder) Report() Report {
	stats := r.Stats()
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	rep := Report{
		Elapsed:       time.Since(r.startTime),
		Intervals:     stats,
		Names:         names,
		NumGoroutines: runtime.NumGoroutine(),
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	rep.HeapAllocMB = ms.HeapAlloc / 1024 / 1024

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if memInfo, err := proc.MemoryInfo(); err == nil {
			rep.RSSBytes = memInfo.RSS
		}
		rep.CPUPercent, _ = proc.CPUPercent()
		rep.NumThreads, _ = proc.NumThreads()
	}
	return rep
}

// Tracing exports every interval as an OpenTelemetry span and a Prometheus
// histogram observation.
type Tracing struct {
	attrs []attribute.KeyValue
}

// NewTracing creates a Tracing profiler tagging every span with worker.
func NewTracing(worker string) *Tracing {
	return &Tracing{attrs: []attribute.KeyValue{attribute.String("worker", worker)}}
}

// AddInterval implements Profiler.
func (t *Tracing) AddInterval(name string, start, end time.Time) {
	metrics.IntervalDuration.WithLabelValues(name).Observe(end.Sub(start).Seconds())
	observability.RecordInterval(context.Background(), name, start, end, t.attrs...)
}

// Multi fans intervals out to several profilers.
type Multi []Profiler

// AddInterval implements Profiler.
func (m Multi) AddInterval(name string, start, end time.Time) {
	for _, p := range m {
		p.AddInterval(name, start, end)
	}
}

// Time records the interval between now and the returned func's call.
//
//	defer profiler.Time(p, "blob:fetch")()
func Time(p Profiler, name string) func() {
	start := time.Now()
	return func() {
		p.AddInterval(name, start, time.Now())
	}
}
