package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// fileExt suffixes every stored key on disk so a key can never collide with
// a directory created for a deeper key ("plan" vs "plan/step").
const fileExt = ".json"

// FilesystemOpener stores each run in its own directory under a root path,
// one file per key.
type FilesystemOpener struct {
	root string
}

// NewFilesystemOpener creates the root directory if needed.
func NewFilesystemOpener(root string) (*FilesystemOpener, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &FilesystemOpener{root: root}, nil
}

// Open returns a store scoped to the run's directory.
func (f *FilesystemOpener) Open(runID string) (Store, error) {
	if err := validateRunID(runID); err != nil {
		return nil, err
	}
	return &filesystemStore{dir: filepath.Join(f.root, runID)}, nil
}

// ListRuns returns run IDs that have a directory under the root.
func (f *FilesystemOpener) ListRuns(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage root: %w", err)
	}

	var runs []string
	for _, entry := range entries {
		if entry.IsDir() {
			runs = append(runs, entry.Name())
		}
	}
	sort.Strings(runs)
	return runs, nil
}

type filesystemStore struct {
	dir string
}

func (s *filesystemStore) path(key string) string {
	return filepath.Join(s.dir, filepath.FromSlash(key)+fileExt)
}

func (s *filesystemStore) Save(_ context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	path := s.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}

	// Write-then-rename keeps a concurrent Get from observing a torn write.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write value: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to finalise value: %w", err)
	}
	return nil
}

func (s *filesystemStore) Get(_ context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	value, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read value: %w", err)
	}
	return value, nil
}

func (s *filesystemStore) Exists(_ context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	_, err := os.Stat(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat value: %w", err)
	}
	return true, nil
}

func (s *filesystemStore) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete value: %w", err)
	}
	return nil
}

func (s *filesystemStore) ListKeys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil // run has no data yet
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, fileExt) {
			return nil
		}

		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return err
		}
		key := strings.TrimSuffix(filepath.ToSlash(rel), fileExt)
		if isReserved(key) {
			return nil
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *filesystemStore) Clear(ctx context.Context) error {
	keys, err := s.ListKeys(ctx, "")
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}
