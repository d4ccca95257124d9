// Package loadworker implements the load stage of the pipeline: it drives
// one source per configured column in parallel and assembles their outputs
// into column-aligned batches.
//
// # Basic Usage
//
//	w, err := loadworker.New(loadworker.Args{
//	    Factories: factories,
//	    Configs:   configs,
//	    TableMeta: meta,
//	})
//	if err != nil {
//	    return err // the first source that failed validation
//	}
//	defer w.Close()
//
//	if err := w.Feed(entry); err != nil {
//	    return err
//	}
//	for !w.Done() {
//	    batch, ok, err := w.Yield(ctx, 250)
//	    if err != nil {
//	        return err // abandon the unit of work
//	    }
//	    if ok {
//	        evaluate(batch)
//	    }
//	}
//
// Feed, Yield and Done must be called from a single goroutine. Within one
// Yield every source is read by exactly one pool task, and the call blocks
// until all of them have finished.
package loadworker

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/framefeed/pkg/config"
	"github.com/ajitpratap0/framefeed/pkg/errors"
	"github.com/ajitpratap0/framefeed/pkg/logger"
	"github.com/ajitpratap0/framefeed/pkg/metrics"
	"github.com/ajitpratap0/framefeed/pkg/observability"
	"github.com/ajitpratap0/framefeed/pkg/profiler"
	"github.com/ajitpratap0/framefeed/pkg/source"
	"github.com/ajitpratap0/framefeed/pkg/taskpool"
	"github.com/ajitpratap0/framefeed/pkg/workentry"
)

// ReadSourcesInterval is the profiler interval covering one chunk's
// fan-out and fan-in.
const ReadSourcesInterval = "load_worker:read_sources"

// Args configures a Worker.
type Args struct {
	NodeID   int
	WorkerID int
	Profiler profiler.Profiler

	// IOPacketSize and WorkPacketSize are the storage-facing and
	// compute-facing chunk size hints.
	IOPacketSize   int
	WorkPacketSize int
	// MaxSourceThreads caps concurrent source reads; zero means
	// config.DefaultMaxSourceThreads.
	MaxSourceThreads int

	// Factories and Configs are index-aligned, one pair per column.
	Factories []source.Factory
	Configs   []source.Config
	// TableMeta is injected into column-backed sources.
	TableMeta *source.TableMeta

	// RaggedSources allows sources of one unit of work to have different
	// row counts. Shorter sources then yield empty windows.
	RaggedSources bool

	// Runner overrides the fan-out primitive. When nil the worker owns a
	// taskpool.Pool sized from the number of sources.
	Runner taskpool.Runner
	Logger *zap.Logger
}

// Worker is a load worker. See the package documentation for the calling
// protocol.
type Worker struct {
	nodeID   int
	workerID int
	label    string

	ioPacketSize   int
	workPacketSize int
	ragged         bool

	sources  []source.Source
	configs  []source.Config
	names    []string
	columns  int
	profiler profiler.Profiler

	runner   taskpool.Runner
	ownPool  *taskpool.Pool
	poolSize int

	tracer *observability.StageTracer
	logger *zap.Logger

	entry      *workentry.LoadWorkEntry
	currentRow int64
	totalRows  int64
}

// New instantiates and validates one source per column. It stops at the
// first source that fails validation and returns a validation error naming
// it; no later source is instantiated.
func New(args Args) (*Worker, error) {
	if len(args.Factories) != len(args.Configs) {
		return nil, errors.New(errors.ErrorTypeConfig,
			fmt.Sprintf("got %d source factories for %d source configs", len(args.Factories), len(args.Configs)))
	}

	log := args.Logger
	if log == nil {
		log = logger.Get()
	}
	label := fmt.Sprintf("%d/%d", args.NodeID, args.WorkerID)
	log = log.With(
		zap.String("component", "load_worker"),
		zap.String(string(logger.WorkerIDKey), label))

	prof := args.Profiler
	if prof == nil {
		prof = profiler.Nop{}
	}

	w := &Worker{
		nodeID:         args.NodeID,
		workerID:       args.WorkerID,
		label:          label,
		ioPacketSize:   args.IOPacketSize,
		workPacketSize: args.WorkPacketSize,
		ragged:         args.RaggedSources,
		configs:        args.Configs,
		profiler:       prof,
		tracer:         observability.NewStageTracer("load", label),
		logger:         log,
	}

	for i, factory := range args.Factories {
		cfg := args.Configs[i]
		name := factory.Name()

		src, err := factory.New(cfg)
		if err != nil {
			w.closeSources()
			metrics.ValidationFailures.WithLabelValues(name).Inc()
			return nil, errors.Wrap(err, errors.ErrorTypeConfig,
				fmt.Sprintf("failed to create source %d (%s)", i, name)).
				WithDetail("source", i).
				WithDetail("factory", name)
		}
		if cs, ok := source.AsColumnSource(src); ok {
			cs.SetTableMeta(args.TableMeta)
		}
		if pa, ok := source.AsProfilerAware(src); ok {
			pa.SetProfiler(prof)
		}

		if err := src.Validate(); err != nil {
			closeSource(src)
			w.closeSources()
			metrics.ValidationFailures.WithLabelValues(name).Inc()
			log.Error("source validation failed",
				zap.Int("source", i),
				zap.String("factory", name),
				zap.Error(err))
			return nil, errors.Wrap(err, errors.ErrorTypeValidation,
				fmt.Sprintf("source %d (%s) failed validation", i, name)).
				WithDetail("source", i).
				WithDetail("factory", name)
		}
		log.Debug("source validated", zap.Int("source", i), zap.String("factory", name))

		w.sources = append(w.sources, src)
		w.names = append(w.names, name)
		w.columns += cfg.NumColumns()
	}

	limit := args.MaxSourceThreads
	if limit <= 0 {
		limit = config.DefaultMaxSourceThreads
	}
	w.poolSize = len(w.sources)
	if w.poolSize > limit {
		w.poolSize = limit
	}
	if w.poolSize < 1 {
		w.poolSize = 1
	}

	w.runner = args.Runner
	if w.runner == nil {
		w.ownPool = taskpool.New(w.poolSize)
		w.runner = w.ownPool
	}

	log.Info("load worker created",
		zap.Int("sources", len(w.sources)),
		zap.Int("columns", w.columns),
		zap.Int("pool_size", w.poolSize))
	return w, nil
}

// NumSources returns the number of sources.
func (w *Worker) NumSources() int { return len(w.sources) }

// NumColumns returns the total output column count across sources.
func (w *Worker) NumColumns() int { return w.columns }

// PoolSize returns the fan-out width.
func (w *Worker) PoolSize() int { return w.poolSize }

// IOPacketSize returns the storage-facing chunk size hint.
func (w *Worker) IOPacketSize() int { return w.ioPacketSize }

// WorkPacketSize returns the compute-facing chunk size hint.
func (w *Worker) WorkPacketSize() int { return w.workPacketSize }

// Feed replaces the current unit of work and resets the cursor. An entry
// that fails validation leaves the worker with nothing to yield.
func (w *Worker) Feed(entry *workentry.LoadWorkEntry) error {
	w.entry = nil
	w.currentRow = 0
	w.totalRows = 0

	if entry == nil {
		return errors.New(errors.ErrorTypeValidation, "nil work entry")
	}
	if len(entry.SourceArgs) != len(w.sources) {
		return errors.New(errors.ErrorTypeValidation,
			fmt.Sprintf("work entry has %d source args for %d sources", len(entry.SourceArgs), len(w.sources))).
			WithDetail("entry", entry.String())
	}
	for i, sa := range entry.SourceArgs {
		if err := sa.Validate(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeValidation,
				fmt.Sprintf("source %d (%s) args", i, w.names[i])).
				WithDetail("source", i).
				WithDetail("entry", entry.String())
		}
		if !w.ragged && sa.Len() != entry.SourceArgs[0].Len() {
			return errors.New(errors.ErrorTypeValidation,
				fmt.Sprintf("source %d (%s) has %d rows, source 0 has %d", i, w.names[i], sa.Len(), entry.SourceArgs[0].Len())).
				WithDetail("source", i).
				WithDetail("entry", entry.String())
		}
	}

	w.entry = entry
	w.totalRows = entry.MaxRows()
	w.logger.Debug("work entry fed",
		zap.Int64(string(logger.TableIDKey), entry.TableID),
		zap.Int64("job", entry.JobIndex),
		zap.Int64("task", entry.TaskIndex),
		zap.Int64("rows", w.totalRows))
	return nil
}

// Done reports whether the current unit of work is exhausted.
func (w *Worker) Done() bool {
	return w.currentRow >= w.totalRows
}

// window returns source i's row range for the current chunk.
func (w *Worker) window(i int, chunkSize int64) (int64, int64) {
	rows := int64(w.entry.SourceArgs[i].Len())
	start := w.currentRow
	end := start + chunkSize
	if end > rows {
		end = rows
	}
	if start > end {
		start = end
	}
	return start, end
}

// Yield reads the next chunk of up to chunkSize rows from every source.
// Once the unit of work is exhausted it returns ok == false without side
// effects. On error the cursor does not move and the caller should abandon
// the unit of work.
func (w *Worker) Yield(ctx context.Context, chunkSize int) (*workentry.EvalWorkEntry, bool, error) {
	if w.Done() {
		return nil, false, nil
	}
	if chunkSize <= 0 {
		return nil, false, errors.New(errors.ErrorTypeValidation,
			fmt.Sprintf("chunk size must be positive, got %d", chunkSize))
	}

	ctx, span := w.tracer.StartSpan(ctx, "yield")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("start_row", w.currentRow),
		attribute.Int("chunk_size", chunkSize))

	chunk := int64(chunkSize)
	n := len(w.sources)
	batch := workentry.NewEvalWorkEntry(w.entry, n)
	requested := make([]int, n)

	var tasks []taskpool.Task
	var taskSource []int
	for i := range w.sources {
		start, end := w.window(i, chunk)
		sa := w.entry.SourceArgs[i]
		requested[i] = int(end - start)
		batch.RowIDs[i] = sa.OutputRowIDs[start:end:end]
		batch.Columns[i] = source.Elements{}
		if start == end {
			continue
		}

		rows := make([]source.ElementArgs, end-start)
		for j := range rows {
			rows[j] = source.ElementArgs{
				RowID: sa.InputRowIDs[start+int64(j)],
				Args:  sa.Args[start+int64(j)],
			}
		}
		i := i
		tasks = append(tasks, func(ctx context.Context) error {
			return w.read(ctx, i, rows, batch)
		})
		taskSource = append(taskSource, i)
	}

	start := time.Now()
	errs := w.runner.RunAll(ctx, tasks)
	w.profiler.AddInterval(ReadSourcesInterval, start, time.Now())

	if idx, err := taskpool.FirstError(errs); err != nil {
		span.RecordError(err)
		var e *errors.Error
		if !errors.As(err, &e) {
			e = errors.Wrap(err, errors.ErrorTypeInternal, "source read failed")
		}
		return nil, false, e.WithDetail("source", taskSource[idx]).WithDetail("entry", w.entry.String())
	}

	for i, src := range w.sources {
		declared := w.configs[i].PrimaryType()
		batch.ColumnTypes[i] = declared
		batch.Devices[i] = workentry.CPUDevice

		if cs, ok := source.AsColumnSource(src); ok {
			batch.VideoEncoding[i], batch.InplaceVideo[i] = cs.VideoColumnInformation()
			continue
		}
		batch.VideoEncoding[i] = source.VideoCodecRaw
		batch.InplaceVideo[i] = false
		if declared == source.ColumnTypeVideo {
			continue
		}
		if produced := len(batch.Columns[i]); produced != requested[i] {
			err := errors.New(errors.ErrorTypeConsistency,
				fmt.Sprintf("source %d (%s) produced %d elements for %d rows", i, w.names[i], produced, requested[i])).
				WithDetail("source", i).
				WithDetail("produced", produced).
				WithDetail("expected", requested[i]).
				WithDetail("entry", w.entry.String())
			span.RecordError(err)
			metrics.SourceErrors.WithLabelValues(w.names[i], string(errors.ErrorTypeConsistency)).Inc()
			w.logger.Error("source row count mismatch",
				zap.Int("source", i),
				zap.String("factory", w.names[i]),
				zap.Int("produced", produced),
				zap.Int("expected", requested[i]))
			return nil, false, err
		}
	}

	w.currentRow += chunk
	metrics.ChunksYielded.WithLabelValues(w.label).Inc()
	return batch, true, nil
}

// read runs one source's read and stores its elements in the batch slot.
func (w *Worker) read(ctx context.Context, i int, rows []source.ElementArgs, batch *workentry.EvalWorkEntry) error {
	name := w.names[i]
	timer := metrics.NewTimer(name)
	elements, err := w.sources[i].Read(ctx, rows)
	metrics.SourceReadLatency.WithLabelValues(name).Observe(timer.Stop().Seconds())
	if err != nil {
		errType := errors.ErrorTypeInternal
		var e *errors.Error
		if errors.As(err, &e) {
			errType = e.Type
		}
		metrics.SourceErrors.WithLabelValues(name, string(errType)).Inc()
		return errors.Wrap(err, errType, fmt.Sprintf("source %d (%s) read failed", i, name))
	}
	metrics.RowsLoaded.WithLabelValues(name).Add(float64(len(rows)))
	if elements == nil {
		elements = source.Elements{}
	}
	batch.Columns[i] = elements
	return nil
}

// Close releases the owned pool and any sources holding resources.
func (w *Worker) Close() error {
	if w.ownPool != nil {
		w.ownPool.Close()
	}
	w.closeSources()
	return nil
}

func (w *Worker) closeSources() {
	for _, src := range w.sources {
		closeSource(src)
	}
}

func closeSource(src source.Source) {
	if c, ok := src.(source.Closer); ok {
		_ = c.Close()
	}
}
