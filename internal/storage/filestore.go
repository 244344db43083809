package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps the rotation record as a JSON document on disk. Saves write
// a temporary file in the same directory, fsync it and rename it over the
// previous record, so readers and crash recovery only ever see a complete
// document.
type FileStore struct {
	path string

	mu     sync.Mutex
	rename func(oldpath, newpath string) error
}

// OpenFile returns a FileStore writing to dataDir/state.json.
func OpenFile(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &FileStore{
		path:   filepath.Join(dataDir, "state.json"),
		rename: os.Rename,
	}, nil
}

// Path returns the location of the record.
func (f *FileStore) Path() string {
	return f.path
}

// Close is a no-op; it exists so FileStore and Store are interchangeable.
func (f *FileStore) Close() error {
	return nil
}

// LoadState reads the record, returning ErrNotFound when the file is absent.
func (f *FileStore) LoadState(_ context.Context) (RotationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return RotationState{}, ErrNotFound
	}
	if err != nil {
		return RotationState{}, fmt.Errorf("reading %s: %w", f.path, err)
	}

	var st RotationState
	if err := json.Unmarshal(data, &st); err != nil {
		return RotationState{}, fmt.Errorf("decoding %s: %w", f.path, err)
	}
	return st, nil
}

// SaveState atomically replaces the record.
func (f *FileStore) SaveState(_ context.Context, st RotationState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding rotation state: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := f.rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replacing %s: %w", f.path, err)
	}
	committed = true

	// Persist the rename itself. Not every platform supports syncing a
	// directory, so a failure here is not fatal.
	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}
