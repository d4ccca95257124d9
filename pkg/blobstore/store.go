// Package blobstore provides keyed object storage for element payloads.
//
// Three backends are supported: a local directory, Amazon S3 and Google
// Cloud Storage. Open wires the configured backend with transparent
// compression and retries:
//
//	store, err := blobstore.Open(ctx, cfg.Storage)
//	defer store.Close()
//	payload, err := store.Get(ctx, "frames/000001")
//
// A missing key is reported as an ErrorTypeNotFound error, which is never
// retried.
package blobstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/framefeed/pkg/compression"
	"github.com/ajitpratap0/framefeed/pkg/config"
	"github.com/ajitpratap0/framefeed/pkg/errors"
	"github.com/ajitpratap0/framefeed/pkg/logger"
	"github.com/ajitpratap0/framefeed/pkg/metrics"
)

// Store is keyed object storage. Implementations are safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Close() error
}

// Backend names.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
	BackendGCS   = "gcs"
)

// notFound builds the error every backend returns for a missing key.
func notFound(backend, key string, cause error) error {
	e := errors.New(errors.ErrorTypeNotFound, fmt.Sprintf("%s: object %q not found", backend, key))
	e.Cause = cause
	return e.WithDetail("key", key)
}

// Open creates the store described by cfg.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	var (
		store Store
		err   error
	)

	backend := strings.ToLower(cfg.Backend)
	switch backend {
	case "", BackendLocal:
		backend = BackendLocal
		store, err = NewLocal(cfg.Root)
	case BackendS3:
		store, err = NewS3(ctx, S3Options{
			Bucket:   cfg.Bucket,
			Prefix:   cfg.Prefix,
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
		})
	case BackendGCS:
		store, err = NewGCS(ctx, GCSOptions{
			Bucket:          cfg.Bucket,
			Prefix:          cfg.Prefix,
			CredentialsFile: cfg.CredentialsFile,
		})
	default:
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("unsupported storage backend: %s", cfg.Backend))
	}
	if err != nil {
		return nil, err
	}

	algo, err := compression.ParseAlgorithm(cfg.Compression)
	if err != nil {
		_ = store.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid storage compression")
	}
	if algo != compression.None {
		comp, err := compression.NewCompressor(&compression.Config{Algorithm: algo, Level: compression.Default})
		if err != nil {
			_ = store.Close()
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create compressor")
		}
		store = NewCompressed(store, comp)
	}

	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	store = NewInstrumented(store, backend, NewRetryPolicy(attempts, 100*time.Millisecond))

	logger.Get().Info("blob store opened",
		zap.String("backend", backend),
		zap.String("compression", string(algo)),
		zap.Int("retry_attempts", attempts))
	return store, nil
}

// Compressed decompresses on Get and compresses on Put.
type Compressed struct {
	Store
	comp compression.Compressor
}

// NewCompressed wraps store with comp.
func NewCompressed(store Store, comp compression.Compressor) *Compressed {
	return &Compressed{Store: store, comp: comp}
}

// Get implements Store.
func (c *Compressed) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.Store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	out, err := c.comp.Decompress(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData,
			fmt.Sprintf("failed to decompress %q with %s", key, c.comp.Algorithm()))
	}
	return out, nil
}

// Put implements Store.
func (c *Compressed) Put(ctx context.Context, key string, data []byte) error {
	out, err := c.comp.Compress(data)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to compress data")
	}
	return c.Store.Put(ctx, key, out)
}

// Instrumented retries transient failures and counts operations.
type Instrumented struct {
	Store
	backend string
	retry   *RetryPolicy
}

// NewInstrumented wraps store with retry and metrics.
func NewInstrumented(store Store, backend string, retry *RetryPolicy) *Instrumented {
	return &Instrumented{Store: store, backend: backend, retry: retry}
}

// Get implements Store.
func (i *Instrumented) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := i.do(ctx, func() error {
		var err error
		data, err = i.Store.Get(ctx, key)
		return err
	})
	metrics.BlobOperations.WithLabelValues(i.backend, "get", metrics.Status(err)).Inc()
	return data, err
}

// Put implements Store.
func (i *Instrumented) Put(ctx context.Context, key string, data []byte) error {
	err := i.do(ctx, func() error {
		return i.Store.Put(ctx, key, data)
	})
	metrics.BlobOperations.WithLabelValues(i.backend, "put", metrics.Status(err)).Inc()
	return err
}

func (i *Instrumented) do(ctx context.Context, fn func() error) error {
	attempt := 0
	return i.retry.ExecuteWithCondition(ctx, func() error {
		if attempt > 0 {
			metrics.BlobRetries.WithLabelValues(i.backend).Inc()
		}
		attempt++
		return fn()
	}, errors.IsRetryable)
}
