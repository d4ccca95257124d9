package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ajitpratap0/framefeed/pkg/errors"
)

// Local stores objects as files below a root directory.
type Local struct {
	root string
}

// NewLocal creates a local store rooted at root.
func NewLocal(root string) (*Local, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid local storage root")
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("local storage root %s", abs))
	}
	if !info.IsDir() {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("local storage root %s is not a directory", abs))
	}
	return &Local{root: abs}, nil
}

// path maps key below root, rejecting keys that escape it.
func (l *Local) path(key string) (string, error) {
	p := filepath.Join(l.root, filepath.FromSlash(key))
	if p != l.root && !strings.HasPrefix(p, l.root+string(filepath.Separator)) {
		return "", errors.New(errors.ErrorTypeValidation, fmt.Sprintf("key %q escapes storage root", key))
	}
	return p, nil
}

// Get implements Store.
func (l *Local) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "get cancelled")
	}
	p, err := l.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound(BackendLocal, key, err)
		}
		return nil, errors.Wrap(err, errors.ErrorTypeStorage, fmt.Sprintf("failed to read %q", key))
	}
	return data, nil
}

// Put implements Store. Objects appear atomically.
func (l *Local) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeTimeout, "put cancelled")
	}
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to create object directory")
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".put-*")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to create temp object")
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, errors.ErrorTypeStorage, fmt.Sprintf("failed to write %q", key))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, errors.ErrorTypeStorage, fmt.Sprintf("failed to write %q", key))
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, errors.ErrorTypeStorage, fmt.Sprintf("failed to commit %q", key))
	}
	return nil
}

// Close implements Store.
func (l *Local) Close() error { return nil }
