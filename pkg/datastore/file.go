package datastore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/marmos91/dapper/pkg/directory"
)

// File reads a YAML or JSON document from disk on every Load. It is
// read-only; fallback-radius caches stay in memory.
type File struct {
	path string
}

// NewFile checks that path exists and is a regular file.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("datastore.file is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &File{path: path}, nil
}

func (f *File) Name() string { return ProviderFile }

func (f *File) Load(ctx context.Context) (*directory.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}
	return decodeDocument(f.path, data)
}

func (f *File) Close() error { return nil }
