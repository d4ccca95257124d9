package blob

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/framefeed/pkg/blobstore"
	"github.com/ajitpratap0/framefeed/pkg/errors"
	"github.com/ajitpratap0/framefeed/pkg/profiler"
	"github.com/ajitpratap0/framefeed/pkg/source"
)

func setup(t *testing.T, opts map[string]string) (*blobstore.Local, source.Source) {
	t.Helper()
	store, err := blobstore.NewLocal(t.TempDir())
	require.NoError(t, err)

	s, err := NewFactory(store).New(source.Config{OutputColumns: []string{"image"}, Options: opts})
	require.NoError(t, err)
	require.NoError(t, s.Validate())
	return store, s
}

func TestKey(t *testing.T) {
	k, err := Key([]byte(`{"key": "a/b"}`))
	require.NoError(t, err)
	assert.Equal(t, "a/b", k)

	k, err = Key([]byte(" raw/key\n"))
	require.NoError(t, err)
	assert.Equal(t, "raw/key", k)

	_, err = Key([]byte(`{"other": 1}`))
	assert.Error(t, err)
	_, err = Key([]byte(`{bad`))
	assert.Error(t, err)
	_, err = Key(nil)
	assert.Error(t, err)
}

func TestReadPreservesRowOrder(t *testing.T) {
	ctx := context.Background()
	store, s := setup(t, map[string]string{"prefix": "img/", "io_parallelism": "3"})

	var rows []source.ElementArgs
	for i := 0; i < 20; i++ {
		require.NoError(t, store.Put(ctx, fmt.Sprintf("img/%d", i), []byte(fmt.Sprintf("payload-%d", i))))
		rows = append(rows, source.ElementArgs{RowID: int64(i), Args: []byte(fmt.Sprintf(`{"key":"%d"}`, i))})
	}

	rec := profiler.NewRecorder(0)
	pa, ok := source.AsProfilerAware(s)
	require.True(t, ok)
	pa.SetProfiler(rec)

	out, err := s.Read(ctx, rows)
	require.NoError(t, err)
	require.Len(t, out, 20)
	for i, el := range out {
		assert.Equal(t, fmt.Sprintf("payload-%d", i), string(el))
	}
	assert.Equal(t, 1, rec.Stats()["blob:fetch"].Count)
}

func TestReadMissingObject(t *testing.T) {
	_, s := setup(t, nil)
	_, err := s.Read(context.Background(), []source.ElementArgs{{RowID: 1, Args: []byte("nope")}})
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestReadBadArgs(t *testing.T) {
	_, s := setup(t, nil)
	_, err := s.Read(context.Background(), []source.ElementArgs{{RowID: 1, Args: []byte("{")}})
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}

func TestValidate(t *testing.T) {
	s, err := NewFactory(nil).New(source.Config{OutputColumns: []string{"x"}})
	require.NoError(t, err)
	assert.Error(t, s.Validate())

	store, err := blobstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	for _, opts := range []map[string]string{
		{"io_parallelism": "zero"},
		{"io_parallelism": "0"},
	} {
		s, err := NewFactory(store).New(source.Config{OutputColumns: []string{"x"}, Options: opts})
		require.NoError(t, err)
		assert.True(t, errors.IsType(s.Validate(), errors.ErrorTypeValidation))
	}
}
