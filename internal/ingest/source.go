package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/datainsight/datainsight/internal/storage"
)

// Source is one delimited-text input. Release is called once per run, after
// success and after failure alike.
type Source interface {
	Name() string
	Open(ctx context.Context) (io.ReadCloser, error)
	Release(ctx context.Context) error
}

// FileSource reads a local file. Temporary files are removed on release.
type FileSource struct {
	Path      string
	Temporary bool
}

func (s FileSource) Name() string {
	return filepath.Base(s.Path)
}

func (s FileSource) Open(context.Context) (io.ReadCloser, error) {
	file, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", s.Path, err)
	}
	return file, nil
}

func (s FileSource) Release(context.Context) error {
	if !s.Temporary {
		return nil
	}
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %q: %w", s.Path, err)
	}
	return nil
}

// ObjectSource reads an upload staged in object storage.
type ObjectSource struct {
	Store    storage.ObjectStore
	Key      string
	Filename string
	// Keep leaves the staged object in place after the run.
	Keep bool
}

func (s ObjectSource) Name() string {
	if s.Filename != "" {
		return s.Filename
	}
	return filepath.Base(s.Key)
}

func (s ObjectSource) Open(ctx context.Context) (io.ReadCloser, error) {
	reader, err := s.Store.Get(ctx, s.Key)
	if err != nil {
		return nil, fmt.Errorf("get staged upload %q: %w", s.Key, err)
	}
	return reader, nil
}

func (s ObjectSource) Release(ctx context.Context) error {
	if s.Keep {
		return nil
	}
	if err := s.Store.Delete(ctx, s.Key); err != nil {
		return fmt.Errorf("delete staged upload %q: %w", s.Key, err)
	}
	return nil
}
