// Package postgres provides a generic source reading per-row payloads from a
// PostgreSQL table keyed by row id.
package postgres

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ajitpratap0/framefeed/pkg/config"
	"github.com/ajitpratap0/framefeed/pkg/errors"
	"github.com/ajitpratap0/framefeed/pkg/logger"
	"github.com/ajitpratap0/framefeed/pkg/profiler"
	"github.com/ajitpratap0/framefeed/pkg/source"
)

// Name is the registered factory name.
const Name = "postgres"

// Querier is the subset of pgxpool.Pool the source uses.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Factory builds postgres sources sharing one connection pool. The pool is
// created on first use.
//
// Options:
//
//	table        table to read; defaults to the configured table
//	id_column    row id column, default "id"
//	data_column  payload column, default "data"
type Factory struct {
	cfg config.PostgresConfig

	once    sync.Once
	pool    *pgxpool.Pool
	querier Querier
	poolErr error
}

// NewFactory creates a factory connecting with cfg.
func NewFactory(cfg config.PostgresConfig) *Factory {
	return &Factory{cfg: cfg}
}

// NewFactoryWithQuerier creates a factory over an existing querier.
func NewFactoryWithQuerier(q Querier, table string) *Factory {
	f := &Factory{cfg: config.PostgresConfig{Table: table}, querier: q}
	f.once.Do(func() {})
	return f
}

// Name implements source.Factory.
func (f *Factory) Name() string { return Name }

func (f *Factory) connect() (Querier, error) {
	f.once.Do(func() {
		if f.cfg.DSN == "" {
			f.poolErr = errors.New(errors.ErrorTypeConfig, "postgres source requires a dsn")
			return
		}
		poolConfig, err := pgxpool.ParseConfig(f.cfg.DSN)
		if err != nil {
			f.poolErr = errors.Wrap(err, errors.ErrorTypeConfig, "invalid postgres dsn")
			return
		}
		if f.cfg.MaxConns > 0 {
			poolConfig.MaxConns = f.cfg.MaxConns
		}
		// Connections are established lazily by the pool.
		f.pool, err = pgxpool.NewWithConfig(context.Background(), poolConfig)
		if err != nil {
			f.poolErr = errors.Wrap(err, errors.ErrorTypeConnection, "failed to create postgres pool")
			return
		}
		f.querier = f.pool
		logger.Get().Info("postgres pool created",
			zap.String("host", poolConfig.ConnConfig.Host),
			zap.Int32("max_conns", poolConfig.MaxConns))
	})
	return f.querier, f.poolErr
}

// Close releases the shared pool.
func (f *Factory) Close() error {
	if f.pool != nil {
		f.pool.Close()
	}
	return nil
}

// New implements source.Factory.
func (f *Factory) New(cfg source.Config) (source.Source, error) {
	q, err := f.connect()
	table := cfg.Option("table", f.cfg.Table)
	idCol := cfg.Option("id_column", "id")
	dataCol := cfg.Option("data_column", "data")
	return &Source{
		querier:  q,
		connErr:  err,
		columns:  cfg.NumColumns(),
		table:    table,
		query:    buildQuery(table, idCol, dataCol),
		profiler: profiler.Nop{},
	}, nil
}

func buildQuery(table, idCol, dataCol string) string {
	return fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = ANY($1)",
		pgx.Identifier{idCol}.Sanitize(),
		pgx.Identifier{dataCol}.Sanitize(),
		pgx.Identifier{table}.Sanitize(),
		pgx.Identifier{idCol}.Sanitize())
}

// Source reads payloads by row id.
type Source struct {
	querier  Querier
	connErr  error
	columns  int
	table    string
	query    string
	profiler profiler.Profiler
}

// SetProfiler implements source.ProfilerAware.
func (s *Source) SetProfiler(p profiler.Profiler) {
	s.profiler = p
}

// Validate implements source.Source.
func (s *Source) Validate() error {
	switch {
	case s.connErr != nil:
		return errors.Wrap(s.connErr, errors.ErrorTypeValidation, "postgres source unavailable")
	case s.table == "":
		return errors.New(errors.ErrorTypeValidation, "postgres source requires a table")
	case s.columns != 1:
		return errors.New(errors.ErrorTypeValidation,
			fmt.Sprintf("postgres source produces exactly one column, configured with %d", s.columns))
	}
	return nil
}

// Read implements source.Source. Results are reassembled in request order;
// duplicate ids in a request share one fetched payload.
func (s *Source) Read(ctx context.Context, rows []source.ElementArgs) (source.Elements, error) {
	defer profiler.Time(s.profiler, "postgres:query")()

	ids := make([]int64, 0, len(rows))
	seen := make(map[int64]struct{}, len(rows))
	for _, row := range rows {
		if _, ok := seen[row.RowID]; !ok {
			seen[row.RowID] = struct{}{}
			ids = append(ids, row.RowID)
		}
	}

	res, err := s.querier.Query(ctx, s.query, ids)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, fmt.Sprintf("failed to query %s", s.table))
	}
	defer res.Close()

	payloads := make(map[int64][]byte, len(ids))
	for res.Next() {
		var (
			id   int64
			data []byte
		)
		if err := res.Scan(&id, &data); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, fmt.Sprintf("failed to scan %s row", s.table))
		}
		payloads[id] = data
	}
	if err := res.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, fmt.Sprintf("failed to read %s", s.table))
	}

	out := make(source.Elements, len(rows))
	for i, row := range rows {
		data, ok := payloads[row.RowID]
		if !ok {
			return nil, errors.New(errors.ErrorTypeNotFound,
				fmt.Sprintf("row %d not found in %s", row.RowID, s.table)).WithDetail("row_id", row.RowID)
		}
		out[i] = data
	}
	return out, nil
}
