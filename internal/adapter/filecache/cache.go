// Package filecache implements the cache port as a file-per-key tree so
// cached trial searches survive process restarts.
package filecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// envelope is the on-disk record. The creation timestamp travels with the
// payload so TTL checks hold across restarts.
type envelope struct {
	CreatedAt time.Time     `json:"created_at"`
	TTL       time.Duration `json:"ttl"`
	Value     []byte        `json:"value"`
}

// Cache stores one JSON file per key under a directory.
type Cache struct {
	dir string
	now func() time.Time // for testing
}

// New creates the cache directory if needed and returns a file-backed cache.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{dir: dir, now: time.Now}, nil
}

// path maps a key to a stable filename. Keys are hashed so arbitrary key
// text can never escape the cache directory.
func (c *Cache) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+".json")
}

// Get returns the stored value, treating an expired entry as absent.
// Expired files are removed on read.
func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	raw, err := os.ReadFile(c.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		// A corrupt entry is treated as a miss, not a hard failure.
		_ = os.Remove(c.path(key))
		return nil, false, nil
	}

	if c.expired(env) {
		_ = os.Remove(c.path(key))
		return nil, false, nil
	}

	return env.Value, true, nil
}

// Set writes the value atomically (temp file + rename) so a concurrent
// reader never observes a partial entry. Last writer wins.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	env := envelope{
		CreatedAt: c.now(),
		TTL:       ttl,
		Value:     value,
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, "entry-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp entry: %w", err)
	}

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close cache entry: %w", err)
	}

	if err := os.Rename(tmp.Name(), c.path(key)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("publish cache entry: %w", err)
	}

	return nil
}

// Delete removes the entry for key. Deleting a missing key is not an error.
func (c *Cache) Delete(_ context.Context, key string) error {
	err := os.Remove(c.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// InvalidateExpired sweeps the directory and removes entries past their TTL.
func (c *Cache) InvalidateExpired(_ context.Context) error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("read cache dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		p := filepath.Join(c.dir, e.Name())
		raw, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil || c.expired(env) {
			_ = os.Remove(p)
		}
	}

	return nil
}

func (c *Cache) expired(env envelope) bool {
	if env.TTL <= 0 {
		return false
	}
	return c.now().Sub(env.CreatedAt) >= env.TTL
}
