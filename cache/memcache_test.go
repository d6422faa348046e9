package cache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recsync/recsync-go/cache"
	"github.com/recsync/recsync-go/jsonpath"
)

func TestMemcacheRoundTripsNestedMapType(t *testing.T) {
	c := cache.New()

	require.NoError(t, c.Put("foo", map[string]any{
		"a": map[string]any{"b": float64(1)},
		"c": []any{float64(1), float64(2)},
	}))

	got, ok := c.Get("foo")
	require.True(t, ok)

	top, ok := got.(map[string]any)
	require.True(t, ok, "top-level value must decode to map[string]any, got %T", got)

	nested, ok := top["a"].(map[string]any)
	require.True(t, ok, "nested value must decode to map[string]any, got %T", top["a"])
	assert.Equal(t, float64(1), nested["b"])
}

func TestMemcacheSeedIsWalkableByJSONPath(t *testing.T) {
	c := cache.New()
	require.NoError(t, c.Put("foo", map[string]any{"a": map[string]any{"b": float64(5)}}))

	seed, ok := c.Get("foo")
	require.True(t, ok)

	v, found, err := jsonpath.Get(seed, "a.b")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, float64(5), v)
}

func TestMemcacheMissingKey(t *testing.T) {
	c := cache.New()
	_, ok := c.Get("missing")
	assert.False(t, ok)
}
