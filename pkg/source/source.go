// Package source defines the readers a load worker drives.
//
// A Source turns per-row read arguments into raw elements. Optional
// capabilities are discovered with explicit queries rather than by type
// switching on implementations:
//
//	if cs, ok := source.AsColumnSource(src); ok {
//	    codec, inplace := cs.VideoColumnInformation()
//	}
//
// Implementations are registered by name in a Registry and instantiated from
// a Config, one instance per configured column.
package source

import (
	"context"

	"github.com/ajitpratap0/framefeed/pkg/profiler"
)

// Source reads raw elements for a batch of rows.
//
// Read is called from a pool goroutine, but never concurrently for the same
// instance, so implementations need no locking around their own state.
type Source interface {
	// Validate reports whether the instance was properly constructed.
	Validate() error
	// Read returns the elements for rows. Generic sources return exactly one
	// element per row; video sources may return a different count.
	Read(ctx context.Context, rows []ElementArgs) (Elements, error)
}

// ProfilerAware is implemented by sources that record their own intervals.
type ProfilerAware interface {
	SetProfiler(p profiler.Profiler)
}

// ColumnSource is implemented by sources backing a persisted table column.
type ColumnSource interface {
	SetTableMeta(meta *TableMeta)
	// VideoColumnInformation reports the codec of the column and whether it
	// uses the in-place decode path.
	VideoColumnInformation() (VideoCodecType, bool)
}

// Closer is implemented by sources holding resources beyond the worker's
// lifetime, such as connection pools.
type Closer interface {
	Close() error
}

// AsColumnSource returns the column-backed capability of s, if any.
func AsColumnSource(s Source) (ColumnSource, bool) {
	cs, ok := s.(ColumnSource)
	return cs, ok
}

// AsProfilerAware returns the profiling capability of s, if any.
func AsProfilerAware(s Source) (ProfilerAware, bool) {
	pa, ok := s.(ProfilerAware)
	return pa, ok
}

// Factory builds source instances.
type Factory interface {
	Name() string
	New(cfg Config) (Source, error)
}

// FactoryFunc adapts a constructor to Factory.
type FactoryFunc struct {
	FactoryName string
	Fn          func(cfg Config) (Source, error)
}

// Name implements Factory.
func (f FactoryFunc) Name() string { return f.FactoryName }

// New implements Factory.
func (f FactoryFunc) New(cfg Config) (Source, error) { return f.Fn(cfg) }
