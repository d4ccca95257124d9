// Package column provides the column-backed source: it reads a persisted
// table column from a blob store, one object per row at
// <table>/<column>/<row_id>, and reports the column's video layout from the
// table metadata it is given.
package column

import (
	"context"
	"fmt"
	"path"
	"strconv"

	"github.com/ajitpratap0/framefeed/pkg/blobstore"
	"github.com/ajitpratap0/framefeed/pkg/errors"
	"github.com/ajitpratap0/framefeed/pkg/profiler"
	"github.com/ajitpratap0/framefeed/pkg/source"
)

// Name is the registered factory name.
const Name = "column"

// Factory builds column sources over a shared store.
//
// Options:
//
//	column  persisted column to read; defaults to the first output column
type Factory struct {
	store blobstore.Store
}

// NewFactory creates a factory reading from store.
func NewFactory(store blobstore.Store) *Factory {
	return &Factory{store: store}
}

// Name implements source.Factory.
func (f *Factory) Name() string { return Name }

// New implements source.Factory.
func (f *Factory) New(cfg source.Config) (source.Source, error) {
	col := ""
	if len(cfg.OutputColumns) > 0 {
		col = cfg.OutputColumns[0]
	}
	return &Source{
		store:    f.store,
		column:   cfg.Option("column", col),
		columns:  cfg.NumColumns(),
		profiler: profiler.Nop{},
	}, nil
}

// Source reads one persisted column.
type Source struct {
	store    blobstore.Store
	column   string
	columns  int
	meta     *source.TableMeta
	desc     source.ColumnDescriptor
	profiler profiler.Profiler
}

// SetTableMeta implements source.ColumnSource.
func (s *Source) SetTableMeta(meta *source.TableMeta) {
	s.meta = meta
	s.desc, _ = meta.Column(s.column)
}

// SetProfiler implements source.ProfilerAware.
func (s *Source) SetProfiler(p profiler.Profiler) {
	s.profiler = p
}

// VideoColumnInformation implements source.ColumnSource.
func (s *Source) VideoColumnInformation() (source.VideoCodecType, bool) {
	if s.desc.Type != source.ColumnTypeVideo {
		return source.VideoCodecRaw, false
	}
	codec := s.desc.Codec
	if codec == "" {
		codec = source.VideoCodecRaw
	}
	return codec, s.desc.Inplace
}

// Validate implements source.Source.
func (s *Source) Validate() error {
	switch {
	case s.store == nil:
		return errors.New(errors.ErrorTypeValidation, "column source has no store")
	case s.columns != 1:
		return errors.New(errors.ErrorTypeValidation,
			fmt.Sprintf("column source produces exactly one column, configured with %d", s.columns))
	case s.meta == nil:
		return errors.New(errors.ErrorTypeValidation, "column source requires table metadata")
	}
	if _, ok := s.meta.Column(s.column); !ok {
		return errors.New(errors.ErrorTypeValidation,
			fmt.Sprintf("table %s has no column %q", s.meta.Name, s.column))
	}
	return nil
}

// ObjectKey returns the key a row of a table column is stored under.
func ObjectKey(table, column string, rowID int64) string {
	return path.Join(table, column, strconv.FormatInt(rowID, 10))
}

// Read implements source.Source. Rows are fetched sequentially; the worker
// already parallelizes across columns.
func (s *Source) Read(ctx context.Context, rows []source.ElementArgs) (source.Elements, error) {
	defer profiler.Time(s.profiler, "column:read")()

	out := make(source.Elements, len(rows))
	for i, row := range rows {
		data, err := s.store.Get(ctx, ObjectKey(s.meta.Name, s.column, row.RowID))
		if err != nil {
			return nil, err
		}
		out[i] = data
	}
	return out, nil
}
