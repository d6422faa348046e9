package cache

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// decMode decodes CBOR maps into map[string]any rather than fxamacker's
// default map[interface{}]interface{}, the same fix the teacher's own
// surrealcbor package exists for (its DefaultMapType option, see
// surrealcbor/cbor.go) — without it, jsonpath's type switches on
// map[string]any would silently fail to walk a cache-seeded tree.
var decMode = func() cbor.DecMode {
	m, err := cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any{})}.DecMode()
	if err != nil {
		panic(err)
	}
	return m
}()

// memcache is the in-memory reference Cache implementation. Values are
// round-tripped through CBOR before storage and after retrieval: that
// gives every caller an independent copy of the stored tree rather than a
// live alias into whatever the last writer handed in, the same
// encode-then-decode-for-a-clone trick this codebase's CBOR-first model
// layer relies on elsewhere.
type memcache struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// New returns an in-memory Cache. It never evicts; callers that need
// bounded memory should wrap it or supply their own Cache implementation.
func New() Cache {
	return &memcache{values: make(map[string][]byte)}
}

func (c *memcache) Get(name string) (any, bool) {
	c.mu.RLock()
	encoded, ok := c.values[name]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	var value any
	if err := decMode.Unmarshal(encoded, &value); err != nil {
		return nil, false
	}
	return value, true
}

func (c *memcache) Put(name string, value any) error {
	encoded, err := cbor.Marshal(value)
	if err != nil {
		return fmt.Errorf("memcache: encode %s: %w", name, err)
	}

	c.mu.Lock()
	c.values[name] = encoded
	c.mu.Unlock()
	return nil
}
