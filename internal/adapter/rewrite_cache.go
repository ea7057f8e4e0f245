package adapter

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	m "gooze.dev/pkg/luacover/internal/model"
)

// rewriteCacheSchema is bumped whenever rewritePayload or the rewrite rules
// change so stale entries are ignored.
const rewriteCacheSchema uint16 = 1

// RewriteCache persists instrumented sources between runs, keyed by a
// digest of the file path and content hash.
type RewriteCache interface {
	Get(key string) (*m.Rewrite, bool, error)
	Put(key string, rw *m.Rewrite) error
	// Clear drops every cached entry.
	Clear() error
}

type rewritePayload struct {
	Schema   uint16
	Path     string
	Hash     string
	Source   []byte
	Strategy string
	Reason   string
	Inserted int
}

// DiskRewriteCache stores one msgpack file per key under dir.
type DiskRewriteCache struct {
	mu  sync.RWMutex
	dir string
}

// NewDiskRewriteCache creates a cache rooted at dir. The directory is
// created on first write.
func NewDiskRewriteCache(dir string) *DiskRewriteCache {
	return &DiskRewriteCache{dir: dir}
}

func (c *DiskRewriteCache) pathFor(key string) string {
	return filepath.Join(c.dir, "rewrites", key+".mp")
}

// Put serializes rw and replaces the entry atomically.
func (c *DiskRewriteCache) Put(key string, rw *m.Rewrite) error {
	if c == nil || rw == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return fmt.Errorf("create cache file: %w", err)
	}

	defer func() {
		if err := os.Remove(f.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Debug("failed to remove temp cache file", "path", f.Name(), "error", err)
		}
	}()

	payload := rewritePayload{
		Schema:   rewriteCacheSchema,
		Path:     string(rw.Path),
		Hash:     rw.Hash,
		Source:   rw.Source,
		Strategy: string(rw.Strategy),
		Reason:   rw.Reason,
		Inserted: rw.Inserted,
	}

	if err := msgpack.NewEncoder(f).Encode(&payload); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode rewrite: %w", err)
	}

	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(f.Name(), p)
}

// Get returns the cached rewrite for key. Entries written with another
// schema are reported as missing.
func (c *DiskRewriteCache) Get(key string) (*m.Rewrite, bool, error) {
	if c == nil {
		return nil, false, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}

		return nil, false, err
	}

	defer func() { _ = f.Close() }()

	var payload rewritePayload
	if err := msgpack.NewDecoder(f).Decode(&payload); err != nil {
		return nil, false, fmt.Errorf("decode rewrite: %w", err)
	}

	if payload.Schema != rewriteCacheSchema {
		return nil, false, nil
	}

	return &m.Rewrite{
		Path:     m.Path(payload.Path),
		Hash:     payload.Hash,
		Source:   payload.Source,
		Strategy: m.Strategy(payload.Strategy),
		Reason:   payload.Reason,
		Inserted: payload.Inserted,
	}, true, nil
}

// Clear removes the cached rewrites.
func (c *DiskRewriteCache) Clear() error {
	if c == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return os.RemoveAll(filepath.Join(c.dir, "rewrites"))
}
