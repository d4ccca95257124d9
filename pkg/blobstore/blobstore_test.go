package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/framefeed/pkg/config"
	"github.com/ajitpratap0/framefeed/pkg/errors"
)

func TestLocalPutGet(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "frames/1", []byte("payload")))
	got, err := store.Get(ctx, "frames/1")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	_, err = store.Get(ctx, "frames/2")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
	assert.False(t, errors.IsRetryable(err))

	_, err = store.Get(ctx, "../outside")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestLocalRootMustExist(t *testing.T) {
	_, err := NewLocal(filepath.Join(t.TempDir(), "missing"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	_, err = NewLocal(file)
	assert.Error(t, err)
}

func TestOpenCompressed(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	store, err := Open(ctx, config.StorageConfig{Backend: "local", Root: root, Compression: "zstd", RetryAttempts: 2})
	require.NoError(t, err)
	defer store.Close()

	payload := []byte("frame frame frame frame frame frame frame frame")
	require.NoError(t, store.Put(ctx, "a", payload))

	raw, err := os.ReadFile(filepath.Join(root, "a"))
	require.NoError(t, err)
	assert.NotEqual(t, payload, raw)

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestOpenRejectsUnknown(t *testing.T) {
	ctx := context.Background()
	_, err := Open(ctx, config.StorageConfig{Backend: "ftp"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = Open(ctx, config.StorageConfig{Backend: "local", Root: t.TempDir(), Compression: "brotli"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = Open(ctx, config.StorageConfig{Backend: "s3"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

type flakyStore struct {
	Local
	failures int
	calls    int
	errType  errors.ErrorType
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New(f.errType, "flaky")
	}
	return []byte(key), nil
}

func TestInstrumentedRetries(t *testing.T) {
	policy := NewRetryPolicy(3, time.Millisecond)

	flaky := &flakyStore{failures: 2, errType: errors.ErrorTypeConnection}
	got, err := NewInstrumented(flaky, "test", policy).Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("k"), got)
	assert.Equal(t, 3, flaky.calls)

	missing := &flakyStore{failures: 5, errType: errors.ErrorTypeNotFound}
	_, err = NewInstrumented(missing, "test", policy).Get(context.Background(), "k")
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
	assert.Equal(t, 1, missing.calls)

	down := &flakyStore{failures: 5, errType: errors.ErrorTypeConnection}
	_, err = NewInstrumented(down, "test", policy).Get(context.Background(), "k")
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
	assert.Equal(t, 3, down.calls)
}

func TestRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := NewRetryPolicy(3, time.Hour)
	err := policy.Execute(ctx, func() error { return errors.New(errors.ErrorTypeConnection, "down") })
	assert.True(t, errors.IsType(err, errors.ErrorTypeTimeout))
}

func TestRetryDelayBounded(t *testing.T) {
	policy := NewRetryPolicy(10, 100*time.Millisecond)
	policy.RandomizeFactor = 0
	assert.Equal(t, 100*time.Millisecond, policy.GetDelay(0))
	assert.Equal(t, 400*time.Millisecond, policy.GetDelay(2))
	assert.Equal(t, policy.MaxDelay, policy.GetDelay(20))
}
