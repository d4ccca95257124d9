// Package blob provides a generic source that fetches one object per row
// from a blob store.
//
// Row arguments name the object, either as a JSON document
//
//	{"key": "frames/000042.jpg"}
//
// or as the raw key bytes. Objects for one read are fetched concurrently.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	gojson "github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/framefeed/pkg/blobstore"
	"github.com/ajitpratap0/framefeed/pkg/errors"
	"github.com/ajitpratap0/framefeed/pkg/profiler"
	"github.com/ajitpratap0/framefeed/pkg/source"
)

// Name is the registered factory name.
const Name = "blob"

// DefaultParallelism bounds concurrent fetches within one read.
const DefaultParallelism = 8

// Factory builds blob sources over a shared store.
//
// Options:
//
//	prefix          prepended to every key
//	io_parallelism  concurrent fetches per read
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
	s := &Source{
		store:       f.store,
		columns:     cfg.NumColumns(),
		prefix:      cfg.Option("prefix", ""),
		parallelism: DefaultParallelism,
		profiler:    profiler.Nop{},
	}
	if v := cfg.Option("io_parallelism", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.configErr = fmt.Errorf("io_parallelism: %w", err)
		}
		s.parallelism = n
	}
	return s, nil
}

// Source fetches one object per row.
type Source struct {
	store       blobstore.Store
	columns     int
	prefix      string
	parallelism int
	profiler    profiler.Profiler
	configErr   error
}

type rowArgs struct {
	Key string `json:"key"`
}

// SetProfiler implements source.ProfilerAware.
func (s *Source) SetProfiler(p profiler.Profiler) {
	s.profiler = p
}

// Validate implements source.Source.
func (s *Source) Validate() error {
	switch {
	case s.store == nil:
		return errors.New(errors.ErrorTypeValidation, "blob source has no store")
	case s.configErr != nil:
		return errors.Wrap(s.configErr, errors.ErrorTypeValidation, "invalid blob source options")
	case s.parallelism < 1:
		return errors.New(errors.ErrorTypeValidation, "io_parallelism must be positive")
	case s.columns != 1:
		return errors.New(errors.ErrorTypeValidation,
			fmt.Sprintf("blob source produces exactly one column, configured with %d", s.columns))
	}
	return nil
}

// Key decodes the object key from a row's arguments.
func Key(args []byte) (string, error) {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var ra rowArgs
		if err := gojson.Unmarshal(trimmed, &ra); err != nil {
			return "", err
		}
		if ra.Key == "" {
			return "", fmt.Errorf("missing key")
		}
		return ra.Key, nil
	}
	if len(trimmed) == 0 {
		return "", fmt.Errorf("empty key")
	}
	return string(trimmed), nil
}

// Read implements source.Source. Elements are returned in row order.
func (s *Source) Read(ctx context.Context, rows []source.ElementArgs) (source.Elements, error) {
	defer profiler.Time(s.profiler, "blob:fetch")()

	keys := make([]string, len(rows))
	for i, row := range rows {
		k, err := Key(row.Args)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData,
				fmt.Sprintf("invalid arguments for row %d", row.RowID)).WithDetail("row_id", row.RowID)
		}
		keys[i] = s.prefix + k
	}

	out := make(source.Elements, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i := range keys {
		i := i
		g.Go(func() error {
			data, err := s.store.Get(gctx, keys[i])
			if err != nil {
				return err
			}
			out[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
