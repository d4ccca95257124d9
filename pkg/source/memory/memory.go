// Package memory provides a source that serves elements from process
// memory. With no table attached it echoes each row's arguments back as the
// element, which makes it useful for demos and pipeline smoke tests.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/ajitpratap0/framefeed/pkg/errors"
	"github.com/ajitpratap0/framefeed/pkg/source"
)

// Name is the registered factory name.
const Name = "memory"

func init() {
	source.MustRegister(Factory{})
}

// Table is a concurrency-safe map of row id to payload shared by sources.
type Table struct {
	mu   sync.RWMutex
	rows map[int64][]byte
}

var (
	tablesMu sync.Mutex
	tables   = map[string]*Table{}
)

// Named returns the shared table called name, creating it on first use.
func Named(name string) *Table {
	tablesMu.Lock()
	defer tablesMu.Unlock()
	t, ok := tables[name]
	if !ok {
		t = &Table{rows: make(map[int64][]byte)}
		tables[name] = t
	}
	return t
}

// Set stores payload under rowID.
func (t *Table) Set(rowID int64, payload []byte) {
	t.mu.Lock()
	t.rows[rowID] = payload
	t.mu.Unlock()
}

// Get returns the payload stored under rowID.
func (t *Table) Get(rowID int64) ([]byte, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.rows[rowID]
	return p, ok
}

// Factory builds memory sources.
//
// Options:
//
//	table   name of a shared Table to serve rows from; echo mode when unset
//	prefix  bytes prepended to every echoed element
type Factory struct{}

// Name implements source.Factory.
func (Factory) Name() string { return Name }

// New implements source.Factory.
func (Factory) New(cfg source.Config) (source.Source, error) {
	s := &Source{
		columns: cfg.NumColumns(),
		prefix:  []byte(cfg.Option("prefix", "")),
	}
	if name := cfg.Option("table", ""); name != "" {
		s.table = Named(name)
	}
	return s, nil
}

// Source serves rows from a Table or echoes arguments.
type Source struct {
	columns int
	prefix  []byte
	table   *Table
}

// Validate implements source.Source.
func (s *Source) Validate() error {
	if s.columns != 1 {
		return errors.New(errors.ErrorTypeValidation,
			fmt.Sprintf("memory source produces exactly one column, configured with %d", s.columns))
	}
	return nil
}

// Read implements source.Source.
func (s *Source) Read(ctx context.Context, rows []source.ElementArgs) (source.Elements, error) {
	out := make(source.Elements, len(rows))
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "memory read cancelled")
		}
		if s.table != nil {
			p, ok := s.table.Get(row.RowID)
			if !ok {
				return nil, errors.New(errors.ErrorTypeNotFound, "row "+strconv.FormatInt(row.RowID, 10)+" not found").
					WithDetail("row_id", row.RowID)
			}
			out[i] = p
			continue
		}
		el := make([]byte, 0, len(s.prefix)+len(row.Args))
		el = append(el, s.prefix...)
		out[i] = append(el, row.Args...)
	}
	return out, nil
}
