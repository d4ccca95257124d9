package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/framefeed/internal/loadworker"
	"github.com/ajitpratap0/framefeed/pkg/blobstore"
	"github.com/ajitpratap0/framefeed/pkg/errors"
	"github.com/ajitpratap0/framefeed/pkg/logger"
	"github.com/ajitpratap0/framefeed/pkg/source"
	"github.com/ajitpratap0/framefeed/pkg/source/memory"
	"github.com/ajitpratap0/framefeed/pkg/workentry"
)

func newWorker(t *testing.T, sources int) *loadworker.Worker {
	t.Helper()
	var factories []source.Factory
	var configs []source.Config
	for i := 0; i < sources; i++ {
		factories = append(factories, memory.Factory{})
		configs = append(configs, source.Config{OutputColumns: []string{fmt.Sprintf("c%d", i)}})
	}
	w, err := loadworker.New(loadworker.Args{
		WorkPacketSize: 3,
		Factories:      factories,
		Configs:        configs,
		Logger:         zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func entry(task int64, sources, rows int) *workentry.LoadWorkEntry {
	e := &workentry.LoadWorkEntry{TableID: 1, TaskIndex: task}
	for s := 0; s < sources; s++ {
		var sa workentry.SourceArgs
		for r := 0; r < rows; r++ {
			sa.Args = append(sa.Args, []byte(fmt.Sprintf("t%d-s%d-r%d", task, s, r)))
			sa.InputRowIDs = append(sa.InputRowIDs, int64(r))
			sa.OutputRowIDs = append(sa.OutputRowIDs, int64(r))
		}
		e.SourceArgs = append(e.SourceArgs, sa)
	}
	return e
}

type sliceReader struct {
	entries []*workentry.LoadWorkEntry
}

func (r *sliceReader) Next() (*workentry.LoadWorkEntry, error) {
	if len(r.entries) == 0 {
		return nil, io.EOF
	}
	e := r.entries[0]
	r.entries = r.entries[1:]
	return e, nil
}

func TestDriverRun(t *testing.T) {
	w := newWorker(t, 2)
	eval := NewStatsEvaluator()
	reader := &sliceReader{entries: []*workentry.LoadWorkEntry{entry(0, 2, 7), entry(1, 2, 3)}}

	stats, err := NewDriver(w, reader, eval, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, 0, stats.FailedEntries)
	// 7 rows in chunks of 3 -> 3 batches, 3 rows -> 1 batch
	assert.Equal(t, 4, stats.Batches)
	assert.Equal(t, int64(10), stats.Rows)

	batches, rows, _, elements := eval.Snapshot()
	assert.Equal(t, 4, batches)
	assert.Equal(t, int64(10), rows)
	assert.Equal(t, []int64{10, 10}, elements)
}

func TestDriverStopsOnBadEntry(t *testing.T) {
	w := newWorker(t, 2)
	reader := &sliceReader{entries: []*workentry.LoadWorkEntry{entry(0, 1, 2), entry(1, 2, 2)}}

	stats, err := NewDriver(w, reader, NewStatsEvaluator(), &DriverConfig{ChunkSize: 2}).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.Equal(t, 1, stats.FailedEntries)
	assert.Equal(t, 1, stats.Entries)
}

func TestDriverContinueOnError(t *testing.T) {
	w := newWorker(t, 2)
	reader := &sliceReader{entries: []*workentry.LoadWorkEntry{entry(0, 1, 2), entry(1, 2, 2)}}

	stats, err := NewDriver(w, reader, NewStatsEvaluator(), &DriverConfig{ChunkSize: 2, ContinueOnError: true}).
		Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, 1, stats.FailedEntries)
	assert.Equal(t, 1, stats.Batches)
}

func TestDriverDeadLetter(t *testing.T) {
	w := newWorker(t, 2)
	bad := entry(7, 1, 2)
	reader := &sliceReader{entries: []*workentry.LoadWorkEntry{bad, entry(1, 2, 2)}}

	var buf bytes.Buffer
	stats, err := NewDriver(w, reader, NewStatsEvaluator(), &DriverConfig{
		ContinueOnError: true,
		DeadLetter:      workentry.NewJSONWriter(&buf),
	}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DeadLettered)

	got, err := workentry.ReadAll(workentry.NewJSONReader(&buf))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(7), got[0].TaskIndex)
	assert.Equal(t, bad.SourceArgs[0].Args, got[0].SourceArgs[0].Args)
}

type brokenWriter struct{}

func (brokenWriter) Write(*workentry.LoadWorkEntry) error { return io.ErrClosedPipe }
func (brokenWriter) Close() error { return nil }

func TestDriverDeadLetterWriteFails(t *testing.T) {
	w := newWorker(t, 2)
	reader := &sliceReader{entries: []*workentry.LoadWorkEntry{entry(3, 1, 2), entry(1, 2, 2)}}

	stats, err := NewDriver(w, reader, NewStatsEvaluator(), &DriverConfig{
		ContinueOnError: true,
		DeadLetter:      brokenWriter{},
	}).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeStorage))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	assert.Equal(t, 0, stats.DeadLettered)
	// the run stops at the entry that could not be dead-lettered
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 0, stats.Batches)
}

func TestEntryContext(t *testing.T) {
	e := &workentry.LoadWorkEntry{TableID: 9, JobIndex: 2, TaskIndex: 5}
	ctx := entryContext(context.Background(), e)
	assert.Equal(t, int64(9), ctx.Value(logger.TableIDKey))
	assert.Equal(t, "2/5", ctx.Value(logger.TaskKey))
}

func TestDriverCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := newWorker(t, 1)
	_, err := NewDriver(w, &sliceReader{entries: []*workentry.LoadWorkEntry{entry(0, 1, 2)}}, NewStatsEvaluator(), nil).Run(ctx)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTimeout))
}

func TestArrowEvaluator(t *testing.T) {
	ctx := context.Background()
	store, err := blobstore.NewLocal(t.TempDir())
	require.NoError(t, err)

	w := newWorker(t, 2)
	eval := NewArrowEvaluator(store, "out")
	reader := &sliceReader{entries: []*workentry.LoadWorkEntry{entry(4, 2, 5)}}
	_, err = NewDriver(w, reader, eval, &DriverConfig{ChunkSize: 3}).Run(ctx)
	require.NoError(t, err)

	data, err := store.Get(ctx, "out/table-1/job-0/task-4/chunk-1/source-1.arrow")
	require.NoError(t, err)

	r, err := ipc.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer r.Release()
	require.True(t, r.Next())
	rec := r.Record()
	assert.Equal(t, int64(2), rec.NumRows())
	assert.Equal(t, int64(3), rec.Column(0).(*array.Int64).Value(0))
	assert.Equal(t, []byte("t4-s1-r4"), rec.Column(1).(*array.Binary).Value(1))

	v, ok := rec.Schema().Metadata().GetValue(workentry.MetaTaskIndex)
	require.True(t, ok)
	assert.Equal(t, "4", v)
}

func TestArrowEvaluatorChunkNumbering(t *testing.T) {
	ctx := context.Background()
	store, err := blobstore.NewLocal(t.TempDir())
	require.NoError(t, err)

	w := newWorker(t, 1)
	eval := NewArrowEvaluator(store, "")
	reader := &sliceReader{entries: []*workentry.LoadWorkEntry{entry(1, 1, 4), entry(2, 1, 2), entry(1, 1, 2)}}
	_, err = NewDriver(w, reader, eval, &DriverConfig{ChunkSize: 2}).Run(ctx)
	require.NoError(t, err)

	for _, key := range []string{
		"table-1/job-0/task-1/chunk-0/source-0.arrow",
		"table-1/job-0/task-1/chunk-1/source-0.arrow",
		"table-1/job-0/task-2/chunk-0/source-0.arrow",
	} {
		_, err := store.Get(ctx, key)
		assert.NoError(t, err, key)
	}
	// a repeated entry restarts at chunk 0 instead of continuing its old count
	_, err = store.Get(ctx, "table-1/job-0/task-1/chunk-2/source-0.arrow")
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}
