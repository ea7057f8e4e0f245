// Package pkg provides utilities for luacover that do not depend on its
// domain.
package pkg

import (
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// spillDirName is the folder under the system temp dir holding spill files.
const spillDirName = "luacover-spill"

var errStop = errors.New("stop")

// FileSpill is an append-only sequence of T kept on disk so large inputs
// (such as many shard results) can be folded one item at a time.
type FileSpill[T any] interface {
	Len() uint64
	Path() string
	Append(item T) error
	AppendBatch(items []T) error
	Get(index uint64) (T, error)
	Range(f func(index uint64, item T) error) error
	// Close releases and removes the backing file.
	Close() error
}

type fileSpill[T any] struct {
	path    string
	file    *os.File
	encoder *gob.Encoder
	mu      sync.Mutex
	length  uint64
	closed  bool
}

// NewFileSpill creates a FileSpill backed by a gob file in the temp dir.
func NewFileSpill[T any]() (FileSpill[T], error) {
	return NewFileSpillIn[T](filepath.Join(os.TempDir(), spillDirName))
}

// NewFileSpillIn creates a FileSpill backed by a gob file inside dir.
func NewFileSpillIn[T any](dir string) (FileSpill[T], error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		slog.Error("failed to create spill directory", "path", dir, "error", err)
		return nil, fmt.Errorf("failed to create spill directory: %w", err)
	}

	file, err := os.CreateTemp(dir, "spill-*.gob")
	if err != nil {
		slog.Error("failed to create spill file", "path", dir, "error", err)
		return nil, fmt.Errorf("failed to create spill file: %w", err)
	}

	slog.Debug("created filespill", "path", file.Name())

	return &fileSpill[T]{
		path:    file.Name(),
		file:    file,
		encoder: gob.NewEncoder(file),
	}, nil
}

func (f *fileSpill[T]) Path() string {
	return f.path
}

func (f *fileSpill[T]) Len() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.length
}

func (f *fileSpill[T]) Append(item T) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fmt.Errorf("append to closed spill %s", f.path)
	}

	if err := f.encoder.Encode(item); err != nil {
		slog.Error("failed to encode item", "path", f.path, "index", f.length, "error", err)
		return fmt.Errorf("failed to encode item: %w", err)
	}

	f.length++

	return nil
}

func (f *fileSpill[T]) AppendBatch(items []T) error {
	for _, item := range items {
		if err := f.Append(item); err != nil {
			return err
		}
	}

	return nil
}

func (f *fileSpill[T]) Get(index uint64) (T, error) {
	var found T

	f.mu.Lock()
	length := f.length
	f.mu.Unlock()

	if index >= length {
		return found, fmt.Errorf("index %d out of bounds (length %d)", index, length)
	}

	err := f.Range(func(i uint64, item T) error {
		if i < index {
			return nil
		}

		found = item

		return errStop
	})
	if err != nil && !errors.Is(err, errStop) {
		var zero T
		return zero, err
	}

	return found, nil
}

// Range decodes the items in append order. Each item is decoded into a
// fresh value so nothing leaks from one item into the next.
func (f *fileSpill[T]) Range(fn func(index uint64, item T) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fmt.Errorf("range over closed spill %s", f.path)
	}

	file, err := os.Open(f.path)
	if err != nil {
		slog.Error("failed to open file for range", "path", f.path, "error", err)
		return fmt.Errorf("failed to open file: %w", err)
	}

	defer func() {
		if err := file.Close(); err != nil {
			slog.Error("failed to close file", "path", f.path, "error", err)
		}
	}()

	decoder := gob.NewDecoder(file)

	for i := range f.length {
		var item T
		if err := decoder.Decode(&item); err != nil {
			slog.Error("failed to decode item during range", "path", f.path, "index", i, "error", err)
			return fmt.Errorf("failed to decode item at index %d: %w", i, err)
		}

		if err := fn(i, item); err != nil {
			return err
		}
	}

	return nil
}

func (f *fileSpill[T]) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}

	f.closed = true

	if err := f.file.Close(); err != nil {
		slog.Error("failed to close file", "path", f.path, "error", err)
		return err
	}

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove spill file: %w", err)
	}

	slog.Debug("closed filespill", "path", f.path, "length", f.length)

	return nil
}
