package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ajitpratap0/framefeed/pkg/errors"
)

// S3Options configures the S3 backend.
type S3Options struct {
	Bucket string
	Prefix string
	Region string
	// Endpoint overrides the service endpoint and enables path-style
	// addressing, for S3 compatible stores
	Endpoint string
}

// S3 stores objects in an S3 bucket.
type S3 struct {
	opts       S3Options
	client     *s3.Client
	downloader *manager.Downloader
	uploader   *manager.Uploader
}

// NewS3 creates an S3 store using the default AWS credential chain.
func NewS3(ctx context.Context, opts S3Options) (*S3, error) {
	if opts.Bucket == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "s3 storage requires a bucket")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS configuration")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3{
		opts:       opts,
		client:     client,
		downloader: manager.NewDownloader(client),
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.Concurrency = 4
		}),
	}, nil
}

func (s *S3) key(key string) string {
	if s.opts.Prefix == "" {
		return key
	}
	return path.Join(s.opts.Prefix, key)
}

// Get implements Store.
func (s *S3) Get(ctx context.Context, key string) ([]byte, error) {
	buf := manager.NewWriteAtBuffer(nil)
	_, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		return nil, classifyS3(err, key)
	}
	return buf.Bytes(), nil
}

// Put implements Store.
func (s *S3) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(s.key(key)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return classifyS3(err, key)
	}
	return nil
}

// Close implements Store.
func (s *S3) Close() error { return nil }

type httpStatusError interface {
	HTTPStatusCode() int
}

func classifyS3(err error, key string) error {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return notFound(BackendS3, key, err)
	}
	var status httpStatusError
	if errors.As(err, &status) {
		switch code := status.HTTPStatusCode(); {
		case code == http.StatusNotFound:
			return notFound(BackendS3, key, err)
		case code == http.StatusForbidden || code == http.StatusUnauthorized:
			return errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("s3: access denied for %q", key))
		case code >= 500 || code == http.StatusTooManyRequests:
			return errors.Wrap(err, errors.ErrorTypeConnection, fmt.Sprintf("s3: transient failure for %q", key))
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, errors.ErrorTypeTimeout, fmt.Sprintf("s3: request for %q cancelled", key))
	}
	return errors.Wrap(err, errors.ErrorTypeStorage, fmt.Sprintf("s3: request for %q failed", key))
}
