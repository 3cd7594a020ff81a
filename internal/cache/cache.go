// Package cache implements a content-keyed, TTL-bounded filesystem cache for
// expensive fetches and parsed intermediate payloads. Keys are arbitrary
// strings; they are hashed to a stable token before touching the filesystem
// so that source-specific key shapes never leak into file names.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// WriteError is returned by Set when the atomic write fails.
type WriteError struct {
	Key string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("cache: write %q: %v", e.Key, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Metrics tracks cache operation counters for one run.
type Metrics struct {
	Hits    int
	Misses  int
	Expired int
	Errors  int
}

type entry struct {
	Timestamp int64           `json:"timestamp"`
	Value     json.RawMessage `json:"value"`
}

// Cache is a file-based, TTL-bounded cache partitioned by directory per
// source (the caller picks the directory, typically "cache/<source>").
type Cache struct {
	dir     string
	ttl     time.Duration
	refresh bool
	logger  *zap.Logger

	metrics Metrics
}

// New constructs a Cache rooted at dir. refresh forces every Get to miss,
// matching the REFRESH_CACHE environment variable.
func New(dir string, ttl time.Duration, refresh bool, logger *zap.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create dir %q: %w", dir, err)
	}
	return &Cache{dir: dir, ttl: ttl, refresh: refresh, logger: logger}, nil
}

func (c *Cache) pathFor(key string) string {
	sum := md5.Sum([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+".json")
}

// Get returns (payload, true) on a cache hit. A miss is returned for an
// absent key, an expired entry (which is removed), or when refresh is set.
func (c *Cache) Get(key string) ([]byte, bool) {
	if c.refresh {
		c.metrics.Misses++
		return nil, false
	}

	path := c.pathFor(key)
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.metrics.Errors++
			c.logger.Warn("cache read error", zap.String("key", key), zap.Error(err))
		}
		c.metrics.Misses++
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.metrics.Errors++
		c.logger.Warn("cache decode error", zap.String("key", key), zap.Error(err))
		c.metrics.Misses++
		return nil, false
	}

	if time.Since(time.Unix(e.Timestamp, 0)) > c.ttl {
		c.metrics.Expired++
		_ = os.Remove(path)
		return nil, false
	}

	var payload []byte
	if err := json.Unmarshal(e.Value, &payload); err != nil {
		c.metrics.Errors++
		c.metrics.Misses++
		return nil, false
	}

	c.metrics.Hits++
	return payload, true
}

// Set writes payload under key atomically (temp file + rename) so a
// concurrent reader never observes a partial entry.
func (c *Cache) Set(key string, payload []byte) error {
	value, err := json.Marshal(payload)
	if err != nil {
		c.metrics.Errors++
		return &WriteError{Key: key, Err: err}
	}
	data, err := json.Marshal(entry{Timestamp: time.Now().Unix(), Value: value})
	if err != nil {
		c.metrics.Errors++
		return &WriteError{Key: key, Err: err}
	}

	path := c.pathFor(key)
	tmp, err := os.CreateTemp(c.dir, "tmp-*.json")
	if err != nil {
		c.metrics.Errors++
		return &WriteError{Key: key, Err: err}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		c.metrics.Errors++
		return &WriteError{Key: key, Err: err}
	}
	if err := tmp.Close(); err != nil {
		c.metrics.Errors++
		return &WriteError{Key: key, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		c.metrics.Errors++
		return &WriteError{Key: key, Err: err}
	}
	return nil
}

// Clear removes every cached entry.
func (c *Cache) Clear() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("cache: clear: %w", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil {
			return fmt.Errorf("cache: clear: remove %q: %w", e.Name(), err)
		}
	}
	return nil
}

// GetMetrics returns a copy of the cache's operation counters.
func (c *Cache) GetMetrics() Metrics { return c.metrics }
