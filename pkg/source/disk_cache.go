package source

import (
	"container/list"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/opencontainers/go-digest"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/chazu/topoc/pkg/metrics"
)

const (
	// DefaultMaxEntries is the default maximum number of cached documents
	DefaultMaxEntries = 100

	// DefaultTTL is the default time-to-live for cached documents
	DefaultTTL = 24 * time.Hour

	// MetadataFile is the name of the cache index file
	MetadataFile = "cache.json"
)

// ErrCacheMiss is returned when a key is absent or expired
var ErrCacheMiss = errors.New("cache miss")

// DefaultCacheDir returns the user cache directory for fetched documents
func DefaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "topoc")
	}
	return filepath.Join(os.TempDir(), "topoc-cache")
}

// DiskCache is a persistent, LRU-evicting cache of fetched documents.
// Entries expire ttl after they were written.
type DiskCache struct {
	mu sync.Mutex

	dir        string
	maxEntries int
	ttl        time.Duration

	// lru tracks access order for eviction, most recent first
	lru     *list.List
	entries map[string]*list.Element

	indexPath string
	log       logr.Logger
}

// CacheEntry describes one cached document
type CacheEntry struct {
	Key        string    `json:"key"`
	Digest     string    `json:"digest"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"createdAt"`
	AccessedAt time.Time `json:"accessedAt"`
}

// cacheIndex is the cache state persisted to disk
type cacheIndex struct {
	Version string       `json:"version"`
	Entries []CacheEntry `json:"entries"`
}

// CacheStats contains cache statistics
type CacheStats struct {
	EntryCount int
	MaxEntries int
	TotalSize  int64
}

// NewDiskCache opens or creates a disk cache in dir.
// Zero values select DefaultCacheDir, DefaultMaxEntries and DefaultTTL.
func NewDiskCache(dir string, maxEntries int, ttl time.Duration) *DiskCache {
	if dir == "" {
		dir = DefaultCacheDir()
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c := &DiskCache{
		dir:        dir,
		maxEntries: maxEntries,
		ttl:        ttl,
		lru:        list.New(),
		entries:    make(map[string]*list.Element),
		indexPath:  filepath.Join(dir, MetadataFile),
		log:        logf.Log.WithName("source").WithName("disk-cache"),
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.log.Error(err, "failed to create cache directory", "dir", dir)
		return c
	}
	if err := c.loadIndex(); err != nil {
		c.log.Error(err, "failed to load cache index, starting empty", "dir", dir)
	}
	return c
}

// Get returns the content and digest stored under key
func (c *DiskCache) Get(key string) ([]byte, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		metrics.RecordCacheMiss("disk")
		return nil, "", fmt.Errorf("%w: %s", ErrCacheMiss, key)
	}

	entry := elem.Value.(*CacheEntry)
	if time.Since(entry.CreatedAt) > c.ttl {
		c.removeEntry(key)
		metrics.RecordCacheMiss("disk")
		return nil, "", fmt.Errorf("%w: %s expired", ErrCacheMiss, key)
	}

	content, err := os.ReadFile(c.contentPath(key))
	if err != nil {
		c.removeEntry(key)
		metrics.RecordCacheMiss("disk")
		return nil, "", fmt.Errorf("%w: %s content missing", ErrCacheMiss, key)
	}

	entry.AccessedAt = time.Now()
	c.lru.MoveToFront(elem)
	metrics.RecordCacheHit("disk")
	return content, entry.Digest, nil
}

// Set stores content and its digest under key, evicting the least recently
// used entries when the cache is full
func (c *DiskCache) Set(key, contentDigest string, content []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*CacheEntry)
		entry.Digest = contentDigest
		entry.Size = int64(len(content))
		entry.CreatedAt = now
		entry.AccessedAt = now
		c.lru.MoveToFront(elem)
	} else {
		for c.lru.Len() >= c.maxEntries {
			c.evictOldest()
		}
		c.entries[key] = c.lru.PushFront(&CacheEntry{
			Key:        key,
			Digest:     contentDigest,
			Size:       int64(len(content)),
			CreatedAt:  now,
			AccessedAt: now,
		})
	}

	if err := os.WriteFile(c.contentPath(key), content, 0o644); err != nil {
		c.removeEntry(key)
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := c.saveIndex(); err != nil {
		c.log.Error(err, "failed to save cache index")
	}

	stats := c.statsLocked()
	metrics.UpdateCacheStats(stats.EntryCount, stats.TotalSize)
	return nil
}

// Delete removes an entry from the cache
func (c *DiskCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeEntry(key)
	if err := c.saveIndex(); err != nil {
		return fmt.Errorf("failed to save cache index: %w", err)
	}
	stats := c.statsLocked()
	metrics.UpdateCacheStats(stats.EntryCount, stats.TotalSize)
	return nil
}

// Prune removes expired entries from the cache
func (c *DiskCache) Prune() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []string
	for key, elem := range c.entries {
		if time.Since(elem.Value.(*CacheEntry).CreatedAt) > c.ttl {
			expired = append(expired, key)
		}
	}
	if len(expired) == 0 {
		return nil
	}
	for _, key := range expired {
		c.removeEntry(key)
	}
	if err := c.saveIndex(); err != nil {
		return fmt.Errorf("failed to save cache index: %w", err)
	}
	return nil
}

// Size returns the number of entries in the cache
func (c *DiskCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns cache statistics
func (c *DiskCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statsLocked()
}

func (c *DiskCache) statsLocked() CacheStats {
	stats := CacheStats{EntryCount: c.lru.Len(), MaxEntries: c.maxEntries}
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		stats.TotalSize += elem.Value.(*CacheEntry).Size
	}
	return stats
}

// contentPath names cached content by the sha256 of its key
func (c *DiskCache) contentPath(key string) string {
	return filepath.Join(c.dir, digest.FromString(key).Encoded())
}

// removeEntry must be called with the lock held
func (c *DiskCache) removeEntry(key string) {
	elem, ok := c.entries[key]
	if !ok {
		return
	}
	c.lru.Remove(elem)
	delete(c.entries, key)
	if err := os.Remove(c.contentPath(key)); err != nil && !os.IsNotExist(err) {
		c.log.V(1).Info("failed to remove cache file", "key", key, "error", err.Error())
	}
}

func (c *DiskCache) evictOldest() {
	elem := c.lru.Back()
	if elem == nil {
		return
	}
	c.removeEntry(elem.Value.(*CacheEntry).Key)
	metrics.RecordCacheEviction()
}

func (c *DiskCache) loadIndex() error {
	data, err := os.ReadFile(c.indexPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read index: %w", err)
	}

	var index cacheIndex
	if err := json.Unmarshal(data, &index); err != nil {
		return fmt.Errorf("failed to parse index: %w", err)
	}

	// The index is stored most recent first; push from the back to keep that order
	for i := len(index.Entries) - 1; i >= 0; i-- {
		entry := index.Entries[i]
		if time.Since(entry.CreatedAt) > c.ttl {
			_ = os.Remove(c.contentPath(entry.Key))
			continue
		}
		if _, err := os.Stat(c.contentPath(entry.Key)); err != nil {
			continue
		}
		c.entries[entry.Key] = c.lru.PushFront(&entry)
	}
	return nil
}

func (c *DiskCache) saveIndex() error {
	index := cacheIndex{Version: "v1", Entries: make([]CacheEntry, 0, c.lru.Len())}
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		index.Entries = append(index.Entries, *elem.Value.(*CacheEntry))
	}

	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}

	// Write atomically
	tmpPath := c.indexPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err := os.Rename(tmpPath, c.indexPath); err != nil {
		return fmt.Errorf("failed to rename index: %w", err)
	}
	return nil
}
