package jsonpath

import (
	"container/list"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// maxCacheEntries bounds the process-wide tokenizer cache. The distilled
// spec's source left this unbounded; an LRU here keeps it from growing
// without limit under adversarial or simply varied path input.
const maxCacheEntries = 4096

type tokenCache struct {
	mu      sync.Mutex
	entries map[uint64]*list.Element
	order   *list.List
}

type cacheEntry struct {
	key    uint64
	path   string
	tokens []string
}

var shared = newTokenCache()

func newTokenCache() *tokenCache {
	return &tokenCache{
		entries: make(map[uint64]*list.Element),
		order:   list.New(),
	}
}

// get returns the cached tokenization of path, or (nil, false) on a miss.
// A hash collision against a different path is treated as a miss rather
// than a mismatch: the stale entry is simply evicted and recomputed.
func (c *tokenCache) get(path string) ([]string, bool) {
	key := xxhash.Sum64String(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	entry := elem.Value.(*cacheEntry)
	if entry.path != path {
		return nil, false
	}

	c.order.MoveToFront(elem)
	return entry.tokens, true
}

func (c *tokenCache) put(path string, tokens []string) {
	key := xxhash.Sum64String(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		elem.Value = &cacheEntry{key: key, path: path, tokens: tokens}
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(&cacheEntry{key: key, path: path, tokens: tokens})
	c.entries[key] = elem

	for c.order.Len() > maxCacheEntries {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}
