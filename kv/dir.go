package kv

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const stagingDir = ".staging"

// DirStore stores each entry as a file in a base directory of an afero.Fs.
// File names are the query-escaped keys, so keys can be listed back without
// an index. Very long keys may exceed the file name limit of the host.
type DirStore struct {
	fs       afero.Fs
	basePath string
}

// NewDirStore creates basePath (and its staging directory) on fs if needed.
func NewDirStore(fs afero.Fs, basePath string) (*DirStore, error) {
	if err := fs.MkdirAll(filepath.Join(basePath, stagingDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &DirStore{fs: fs, basePath: basePath}, nil
}

func (s *DirStore) getPath(key string) string {
	return filepath.Join(s.basePath, url.QueryEscape(key))
}

func (s *DirStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, s.getPath(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read entry: %w", err)
	}
	return data, nil
}

// Set writes the value to a staging file and renames it into place, so
// readers never observe a partially written entry.
func (s *DirStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := afero.TempFile(s.fs, filepath.Join(s.basePath, stagingDir), "entry-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := f.Name()

	if _, err := f.Write(value); err != nil {
		f.Close()
		s.fs.Remove(tmpPath)
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		s.fs.Remove(tmpPath)
		return fmt.Errorf("failed to sync data: %w", err)
	}
	if err := f.Close(); err != nil {
		s.fs.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := s.fs.Rename(tmpPath, s.getPath(key)); err != nil {
		s.fs.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func (s *DirStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.fs.Remove(s.getPath(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return nil
}

func (s *DirStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return afero.Exists(s.fs, s.getPath(key))
}

func (s *DirStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos, err := afero.ReadDir(s.fs, s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	var keys []string
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		key, err := url.QueryUnescape(info.Name())
		if err != nil {
			// not one of ours
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Ping checks that the base directory is still present.
func (s *DirStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := s.fs.Stat(s.basePath)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.basePath)
	}
	return nil
}

// Close is a no-op for DirStore.
func (s *DirStore) Close() error {
	return nil
}
