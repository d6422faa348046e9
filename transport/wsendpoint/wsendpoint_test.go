package wsendpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	cases := map[string]string{
		"ws://host":        "ws://host" + DefaultPath,
		"ws://host/":       "ws://host/",
		"ws://host/custom": "ws://host/custom",
		"wss://host":       "wss://host" + DefaultPath,
		"//host":           "ws://host" + DefaultPath,
		"host":             "ws://host" + DefaultPath,
	}
	for in, want := range cases {
		got, err := normalizeURL(in, DefaultPath)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, want, got, "input %q", in)
	}
}

func TestNormalizeURLRejectsHTTPScheme(t *testing.T) {
	_, err := normalizeURL("http://host", DefaultPath)
	assert.Error(t, err)

	_, err = normalizeURL("https://host", DefaultPath)
	assert.Error(t, err)
}

func TestNormalizeURLUsesSuppliedDefaultPath(t *testing.T) {
	got, err := normalizeURL("ws://host", "/alt")
	require.NoError(t, err)
	assert.Equal(t, "ws://host/alt", got)
}

func TestWithDefaultPathOptionAffectsEndpoint(t *testing.T) {
	e := &endpoint{dialer: DefaultDialer, defaultPath: DefaultPath}
	WithDefaultPath("/alt")(e)
	assert.Equal(t, "/alt", e.defaultPath)

	got, err := normalizeURL("ws://host", e.defaultPath)
	require.NoError(t, err)
	assert.Equal(t, "ws://host/alt", got)
}
