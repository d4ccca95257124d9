package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/framefeed/internal/pipeline"
	"github.com/ajitpratap0/framefeed/pkg/config"
	"github.com/ajitpratap0/framefeed/pkg/profiler"
	"github.com/ajitpratap0/framefeed/pkg/source"
	"github.com/ajitpratap0/framefeed/pkg/source/memory"
	"github.com/ajitpratap0/framefeed/pkg/workentry"
)

func TestTableMeta(t *testing.T) {
	meta, err := tableMeta(config.TableConfig{
		ID:   3,
		Name: "clips",
		Columns: []config.ColumnConfig{
			{Name: "frame", Type: "video", Codec: "h265", Inplace: true},
			{Name: "caption"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), meta.ID)

	frame, ok := meta.Column("frame")
	require.True(t, ok)
	assert.Equal(t, source.ColumnTypeVideo, frame.Type)
	assert.Equal(t, source.VideoCodecHEVC, frame.Codec)
	assert.True(t, frame.Inplace)

	caption, ok := meta.Column("caption")
	require.True(t, ok)
	assert.Equal(t, source.ColumnTypeBytes, caption.Type)
	assert.Equal(t, source.VideoCodecRaw, caption.Codec)

	_, err = tableMeta(config.TableConfig{Columns: []config.ColumnConfig{{Name: "x", Codec: "vp9"}}})
	assert.Error(t, err)
}

func TestSourceConfigs(t *testing.T) {
	factories, configs, err := sourceConfigs([]config.SourceSpec{
		{Name: memory.Name, Columns: []config.ColumnConfig{{Name: "a", Type: "video"}}, Options: map[string]string{"prefix": "p-"}},
	})
	require.NoError(t, err)
	require.Len(t, factories, 1)
	assert.Equal(t, memory.Name, factories[0].Name())
	assert.Equal(t, []string{"a"}, configs[0].OutputColumns)
	assert.Equal(t, []source.ColumnType{source.ColumnTypeVideo}, configs[0].OutputColumnTypes)
	assert.Equal(t, "p-", configs[0].Option("prefix", ""))

	_, _, err = sourceConfigs([]config.SourceSpec{{Name: "nope", Columns: []config.ColumnConfig{{Name: "a"}}}})
	assert.Error(t, err)
}

const runYAML = `
worker:
  work_packet_size: 2
sources:
  - name: memory
    columns: [{name: a}]
    options: {prefix: "a:"}
  - name: memory
    columns: [{name: b}]
    options: {prefix: "b:"}
storage:
  backend: local
  root: %ROOT%
observability:
  log_level: error
`

func TestSetupAndRun(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "worker.yaml")
	yaml := bytes.ReplaceAll([]byte(runYAML), []byte("%ROOT%"), []byte(dir))
	require.NoError(t, os.WriteFile(cfgPath, yaml, 0o600))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rt, err := setup(ctx, cfgPath)
	require.NoError(t, err)
	defer rt.close()
	assert.Equal(t, 2, rt.worker.NumSources())
	assert.Equal(t, 2, rt.worker.PoolSize())

	var entries []*workentry.LoadWorkEntry
	e := &workentry.LoadWorkEntry{TableID: 1}
	for s := 0; s < 2; s++ {
		e.SourceArgs = append(e.SourceArgs, workentry.SourceArgs{
			Args:         [][]byte{[]byte("x"), []byte("y"), []byte("z")},
			InputRowIDs:  []int64{0, 1, 2},
			OutputRowIDs: []int64{0, 1, 2},
		})
	}
	entries = append(entries, e)

	eval := pipeline.NewStatsEvaluator()
	stats, err := pipeline.NewDriver(rt.worker, &entryList{entries: entries}, eval, nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Batches)
	assert.Equal(t, int64(3), stats.Rows)

	var out bytes.Buffer
	printReport(&out, rt.recorder.Report())
	assert.Contains(t, out.String(), "load_worker:read_sources")
}

func TestPrintReport(t *testing.T) {
	r := profiler.NewRecorder(0)
	now := time.Now()
	r.AddInterval("blob:fetch", now, now.Add(2*time.Millisecond))

	var out bytes.Buffer
	printReport(&out, r.Report())
	assert.Contains(t, out.String(), "blob:fetch")
	assert.Contains(t, out.String(), "count=1")
}

type entryList struct {
	entries []*workentry.LoadWorkEntry
}

func (l *entryList) Next() (*workentry.LoadWorkEntry, error) {
	if len(l.entries) == 0 {
		return nil, io.EOF
	}
	e := l.entries[0]
	l.entries = l.entries[1:]
	return e, nil
}
