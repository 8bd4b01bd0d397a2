package embed

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// CacheStore is the backend for the embedding cache. Keys are hashes of
// (model id, exact text), so identical chunks re-ingested later hit the
// cache instead of the embedding backend.
type CacheStore interface {
	// Get retrieves data for a key; returns nil when not found or expired.
	Get(key string) ([]byte, error)

	// Set stores data for a key with a TTL. A zero TTL means no expiry.
	Set(key string, value []byte, ttl time.Duration) error

	// Delete removes data for a key.
	Delete(key string) error

	// Close releases backend resources.
	Close() error
}

// CacheKey derives the cache key for one (model, text) pair.
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// MemoryCache is an in-process CacheStore with TTL expiry and periodic
// cleanup. Suitable for single-process deployments and tests; use the
// badger-backed store when the cache must survive restarts.
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string]*memoryEntry
	stop chan struct{}
	once sync.Once
}

type memoryEntry struct {
	data    []byte
	created time.Time
	ttl     time.Duration
}

// NewMemoryCache creates a memory cache and starts its cleanup loop.
func NewMemoryCache() *MemoryCache {
	c := &MemoryCache{
		data: make(map[string]*memoryEntry),
		stop: make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Get retrieves data for a key.
func (c *MemoryCache) Get(key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[key]
	if !ok || entry.expired(time.Now()) {
		return nil, nil
	}
	out := make([]byte, len(entry.data))
	copy(out, entry.data)
	return out, nil
}

// Set stores data for a key with a TTL.
func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) error {
	data := make([]byte, len(value))
	copy(data, value)

	c.mu.Lock()
	c.data[key] = &memoryEntry{data: data, created: time.Now(), ttl: ttl}
	c.mu.Unlock()
	return nil
}

// Delete removes data for a key.
func (c *MemoryCache) Delete(key string) error {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
	return nil
}

// Close stops the cleanup loop and drops all entries.
func (c *MemoryCache) Close() error {
	c.once.Do(func() { close(c.stop) })
	c.mu.Lock()
	c.data = make(map[string]*memoryEntry)
	c.mu.Unlock()
	return nil
}

func (e *memoryEntry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.created) > e.ttl
}

func (c *MemoryCache) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, entry := range c.data {
				if entry.expired(now) {
					delete(c.data, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
