// Package pipeline drives units of work through a load worker and hands
// the resulting batches to an evaluation stage.
//
// # Basic Usage
//
//	reader := workentry.NewJSONReader(file)
//	d := pipeline.NewDriver(worker, reader, pipeline.NewStatsEvaluator(), &pipeline.DriverConfig{
//	    ChunkSize: 250,
//	})
//	stats, err := d.Run(ctx)
//
// Work entries are processed one at a time and chunks are never overlapped,
// mirroring the worker's single-consumer contract.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/framefeed/internal/loadworker"
	"github.com/ajitpratap0/framefeed/pkg/errors"
	"github.com/ajitpratap0/framefeed/pkg/logger"
	"github.com/ajitpratap0/framefeed/pkg/metrics"
	"github.com/ajitpratap0/framefeed/pkg/observability"
	"github.com/ajitpratap0/framefeed/pkg/workentry"
)

// Evaluator consumes batches produced by the load stage.
type Evaluator interface {
	Evaluate(ctx context.Context, batch *workentry.EvalWorkEntry) error
	Close() error
}

// DriverConfig contains driver configuration parameters.
type DriverConfig struct {
	// ChunkSize is the number of rows per Yield; zero means the worker's
	// WorkPacketSize
	ChunkSize int
	// ContinueOnError skips a failing unit of work instead of stopping
	ContinueOnError bool
	// DeadLetter receives skipped entries when ContinueOnError is set. The
	// caller owns it and closes it after Run.
	DeadLetter workentry.Writer
}

// Stats summarizes a run.
type Stats struct {
	Entries       int
	FailedEntries int
	Batches       int
	DeadLettered  int
	Rows          int64
	Duration      time.Duration
}

// RowsPerSecond returns the average throughput of the run.
func (s Stats) RowsPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Rows) / s.Duration.Seconds()
}

// Driver pulls work entries, feeds them to the worker and evaluates every
// yielded batch.
type Driver struct {
	worker     *loadworker.Worker
	reader     workentry.Reader
	eval       Evaluator
	config     DriverConfig
	tracer     *observability.StageTracer
	logger     *zap.Logger
	throughput *metrics.ThroughputTracker
}

// NewDriver creates a driver. A nil config uses the worker's defaults.
func NewDriver(worker *loadworker.Worker, reader workentry.Reader, eval Evaluator, config *DriverConfig) *Driver {
	if config == nil {
		config = &DriverConfig{}
	}
	cfg := *config
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = worker.WorkPacketSize()
	}
	return &Driver{
		worker:     worker,
		reader:     reader,
		eval:       eval,
		config:     cfg,
		tracer:     observability.NewStageTracer("pipeline", "driver"),
		logger:     logger.Get().With(zap.String("component", "driver")),
		throughput: metrics.NewThroughputTracker(),
	}
}

// Run processes entries until the reader is drained, the context is done,
// or a unit of work fails and ContinueOnError is unset.
func (d *Driver) Run(ctx context.Context) (stats Stats, err error) {
	start := time.Now()
	defer func() { stats.Duration = time.Since(start) }()

	if d.config.ChunkSize <= 0 {
		return stats, errors.New(errors.ErrorTypeConfig, "chunk size must be positive")
	}

	for {
		if err := ctx.Err(); err != nil {
			return stats, errors.Wrap(err, errors.ErrorTypeTimeout, "pipeline cancelled")
		}

		entry, nextErr := d.reader.Next()
		if nextErr == io.EOF {
			break
		}
		if nextErr != nil {
			return stats, nextErr
		}

		stats.Entries++
		ectx := entryContext(ctx, entry)
		batches, rows, err := d.process(ectx, entry)
		stats.Batches += batches
		stats.Rows += rows
		metrics.WorkEntries.WithLabelValues(metrics.Status(err)).Inc()
		if err != nil {
			stats.FailedEntries++
			logger.WithContext(ectx).With(zap.String("component", "driver")).
				Error("work entry failed", zap.Error(err))
			if !d.config.ContinueOnError {
				return stats, err
			}
			if d.config.DeadLetter != nil {
				if dlqErr := d.config.DeadLetter.Write(entry); dlqErr != nil {
					return stats, errors.Wrap(dlqErr, errors.ErrorTypeStorage, "failed to write dead letter entry").
						WithDetail("entry", entry.String())
				}
				stats.DeadLettered++
			}
		}
	}

	d.logger.Info("pipeline finished",
		zap.Int("entries", stats.Entries),
		zap.Int("failed", stats.FailedEntries),
		zap.Int("batches", stats.Batches),
		zap.Int64("rows", stats.Rows),
		zap.Float64("rows_per_sec", d.throughput.GetAndReset()))
	return stats, nil
}

// entryContext tags ctx with the entry's table and job/task position.
func entryContext(ctx context.Context, entry *workentry.LoadWorkEntry) context.Context {
	ctx = context.WithValue(ctx, logger.TableIDKey, entry.TableID)
	return context.WithValue(ctx, logger.TaskKey, fmt.Sprintf("%d/%d", entry.JobIndex, entry.TaskIndex))
}

// process drives one entry to exhaustion.
func (d *Driver) process(ctx context.Context, entry *workentry.LoadWorkEntry) (int, int64, error) {
	if err := d.worker.Feed(entry); err != nil {
		return 0, 0, err
	}

	var (
		batches int
		rows    int64
	)
	for !d.worker.Done() {
		err := d.tracer.TraceChunk(ctx, d.config.ChunkSize, func(ctx context.Context) error {
			batch, ok, err := d.worker.Yield(ctx, d.config.ChunkSize)
			if err != nil || !ok {
				return err
			}
			if err := d.eval.Evaluate(ctx, batch); err != nil {
				return errors.Wrap(err, errors.ErrorTypeInternal, "evaluation failed")
			}
			batches++
			n := int64(batch.Rows())
			rows += n
			d.throughput.Increment(n)
			return nil
		})
		if err != nil {
			return batches, rows, err
		}
		if err := ctx.Err(); err != nil {
			return batches, rows, errors.Wrap(err, errors.ErrorTypeTimeout, "pipeline cancelled")
		}
	}
	return batches, rows, nil
}
