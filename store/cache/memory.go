// Package cache provides MetadataCache implementations for
// store.Store's keyed metadata side-table.
package cache

import (
	"container/list"
	"context"
	"sync"

	"github.com/distribution/pkginstall/digest"
)

// MemoryCache is a bounded, in-process, LRU-evicted MetadataCache.
type MemoryCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
}

type memoryEntry struct {
	key      string
	metadata string
	digest   digest.Digest
}

// NewMemoryCache constructs a MemoryCache holding at most capacity
// entries. A non-positive capacity means unbounded.
func NewMemoryCache(capacity int) *MemoryCache {
	return &MemoryCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (string, digest.Digest, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return "", "", false, nil
	}
	c.order.MoveToFront(elem)
	entry := elem.Value.(*memoryEntry)
	return entry.metadata, entry.digest, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, key, metadata string, dgst digest.Digest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		elem.Value.(*memoryEntry).metadata = metadata
		elem.Value.(*memoryEntry).digest = dgst
		c.order.MoveToFront(elem)
		return nil
	}

	elem := c.order.PushFront(&memoryEntry{key: key, metadata: metadata, digest: dgst})
	c.entries[key] = elem

	if c.capacity > 0 {
		for len(c.entries) > c.capacity {
			oldest := c.order.Back()
			if oldest == nil {
				break
			}
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*memoryEntry).key)
		}
	}

	return nil
}
