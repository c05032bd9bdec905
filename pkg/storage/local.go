package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hitesh-bhardwaj/online-assessment-platform-sub000/internal/models"
)

// Local stores media under a configured root directory, one subdirectory per
// result. Locators are absolute paths.
type Local struct {
	root string
}

// NewLocal creates a local backend rooted at dir (created if absent).
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve media root: %w", err)
	}
	if err := os.MkdirAll(abs, 0750); err != nil {
		return nil, fmt.Errorf("create media root: %w", err)
	}
	return &Local{root: abs}, nil
}

// Root returns the media root directory. The cleanup sweeper scans it.
func (l *Local) Root() string { return l.root }

// Kind reports the backend kind.
func (l *Local) Kind() models.StorageBackend { return models.BackendLocal }

// Put writes body to <root>/<key> and returns the absolute path as locator.
// Local objects have no public URL.
func (l *Local) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) (PutResult, error) {
	dest := filepath.Join(l.root, filepath.Clean("/"+key))
	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return PutResult{}, fmt.Errorf("create dir for %s: %w", key, err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return PutResult{}, fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(dest)
		return PutResult{}, fmt.Errorf("write %s: %w", dest, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dest)
		return PutResult{}, fmt.Errorf("close %s: %w", dest, err)
	}
	return PutResult{Backend: models.BackendLocal, Locator: dest}, nil
}

// Fetch opens the file at locator (an absolute path).
func (l *Local) Fetch(_ context.Context, locator string) (io.ReadCloser, error) {
	f, err := os.Open(locator)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, locator)
		}
		return nil, err
	}
	return f, nil
}

// Delete removes the file at locator. A missing file is not an error.
func (l *Local) Delete(_ context.Context, locator string) error {
	if err := os.Remove(locator); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", locator, err)
	}
	return nil
}
