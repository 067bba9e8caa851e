// Package cache provides a TTL-bounded in-memory cache for fetch responses,
// honored only when a request opts in via max_age.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/specterhq/specter/models"
)

// entry holds a cached response with its creation timestamp.
type entry struct {
	response  *models.FetchResponse
	createdAt time.Time
}

// Cache is a simple in-memory cache for fetch responses.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
}

// New creates a Cache with the given capacity. A background goroutine evicts
// entries older than an hour every five minutes.
func New(maxEntries int) *Cache {
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
	}
	go c.cleanupLoop()
	return c
}

// Key derives a cache key from the request dimensions that change the
// response body.
func Key(url, outputFormat, extractMode, cssSelector string) string {
	h := sha256.New()
	h.Write([]byte(url))
	h.Write([]byte{'|'})
	h.Write([]byte(outputFormat))
	h.Write([]byte{'|'})
	h.Write([]byte(extractMode))
	h.Write([]byte{'|'})
	h.Write([]byte(cssSelector))
	return hex.EncodeToString(h.Sum(nil))
}

// Get retrieves a cached response younger than maxAge milliseconds.
// maxAge <= 0 bypasses the cache entirely.
func (c *Cache) Get(key string, maxAgeMs int) (*models.FetchResponse, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok || time.Since(e.createdAt) > time.Duration(maxAgeMs)*time.Millisecond {
		return nil, false
	}
	return e.response, true
}

// Set stores a response. At capacity one arbitrary entry is evicted (map
// iteration order is random).
func (c *Cache) Set(key string, resp *models.FetchResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = &entry{response: resp, createdAt: time.Now()}
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-1 * time.Hour)
		c.mu.Lock()
		for k, e := range c.store {
			if e.createdAt.Before(cutoff) {
				delete(c.store, k)
			}
		}
		c.mu.Unlock()
	}
}
