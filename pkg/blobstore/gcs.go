package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/framefeed/pkg/errors"
)

// GCSOptions configures the Google Cloud Storage backend.
type GCSOptions struct {
	Bucket          string
	Prefix          string
	CredentialsFile string
}

// GCS stores objects in a Cloud Storage bucket.
type GCS struct {
	opts   GCSOptions
	client *storage.Client
	bucket *storage.BucketHandle
}

// NewGCS creates a GCS store. Without a credentials file the application
// default credentials are used.
func NewGCS(ctx context.Context, opts GCSOptions) (*GCS, error) {
	if opts.Bucket == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "gcs storage requires a bucket")
	}

	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create GCS client")
	}

	return &GCS{opts: opts, client: client, bucket: client.Bucket(opts.Bucket)}, nil
}

func (g *GCS) key(key string) string {
	if g.opts.Prefix == "" {
		return key
	}
	return path.Join(g.opts.Prefix, key)
}

// Get implements Store.
func (g *GCS) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := g.bucket.Object(g.key(key)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, notFound(BackendGCS, key, err)
		}
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, fmt.Sprintf("gcs: failed to open %q", key))
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeStorage, fmt.Sprintf("gcs: failed to read %q", key))
	}
	return data, nil
}

// Put implements Store.
func (g *GCS) Put(ctx context.Context, key string, data []byte) error {
	w := g.bucket.Object(g.key(key)).NewWriter(ctx)
	w.ContentType = "application/octet-stream"

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return errors.Wrap(err, errors.ErrorTypeConnection, fmt.Sprintf("gcs: failed to write %q", key))
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, fmt.Sprintf("gcs: failed to close writer for %q", key))
	}
	return nil
}

// Close implements Store.
func (g *GCS) Close() error {
	return g.client.Close()
}
