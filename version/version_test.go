package version_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recsync/recsync-go/version"
)

func TestParseRoundTrip(t *testing.T) {
	tok := version.New(3)
	parsed, err := version.Parse(tok.String())
	require.NoError(t, err)
	assert.Equal(t, tok, parsed)
}

func TestParseEmptyIsZero(t *testing.T) {
	tok, err := version.Parse("")
	require.NoError(t, err)
	assert.True(t, tok.IsZero())
}

func TestParseMalformed(t *testing.T) {
	for _, s := range []string{"abc", "-nonce", "3-", "3"} {
		_, err := version.Parse(s)
		assert.ErrorIs(t, err, version.ErrMalformed, "input %q", s)
	}
}

func TestGreaterThanCounter(t *testing.T) {
	a := version.Token{Counter: 2, Nonce: "A"}
	b := version.Token{Counter: 3, Nonce: "A"}
	assert.True(t, version.GreaterThan(b, a))
	assert.False(t, version.GreaterThan(a, b))
}

func TestGreaterThanNonceTieBreak(t *testing.T) {
	a := version.Token{Counter: 2, Nonce: "A"}
	b := version.Token{Counter: 2, Nonce: "B"}
	assert.True(t, version.GreaterThan(b, a))
	assert.False(t, version.GreaterThan(a, b))
	assert.False(t, version.GreaterThan(a, a))
}

func TestNextIncrementsCounterAndChangesNonce(t *testing.T) {
	a := version.New(5)
	b := a.Next()
	assert.Equal(t, int64(6), b.Counter)
	assert.NotEqual(t, a.Nonce, b.Nonce)
	assert.True(t, version.GreaterThan(b, a))
}
