package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File is a Store persisted as one JSON object on disk. Every write
// replaces the file atomically.
type File struct {
	mu     sync.Mutex
	path   string
	closed bool
}

// OpenFile returns a File store at path, creating its directory.
// The file itself is created on first write.
func OpenFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("kv: create directory: %w", err)
	}
	return &File{path: path}, nil
}

// Path returns the backing file path.
func (f *File) Path() string { return f.path }

// load reads the file. An unreadable object is reported as empty so that
// individual records, not the whole file, are the unit of corruption.
func (f *File) load() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("kv: read %s: %w", f.path, err)
	}
	records := map[string]string{}
	if len(data) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return map[string]string{}, nil
	}
	return records, nil
}

func (f *File) save(records map[string]string) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("kv: encode: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".kv-*.tmp")
	if err != nil {
		return fmt.Errorf("kv: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("kv: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("kv: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("kv: replace %s: %w", f.path, err)
	}
	return nil
}

// Get implements Store.
func (f *File) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return "", false, ErrClosed
	}
	records, err := f.load()
	if err != nil {
		return "", false, err
	}
	v, ok := records[key]
	return v, ok, nil
}

// Set implements Store.
func (f *File) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	records, err := f.load()
	if err != nil {
		return err
	}
	records[key] = value
	return f.save(records)
}

// Delete implements Store.
func (f *File) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	records, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := records[key]; !ok {
		return nil
	}
	delete(records, key)
	return f.save(records)
}

// Close implements Store.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
