// Package version implements the "<counter>-<nonce>" version tokens records
// are stamped with, and their total ordering.
package version

import (
	"errors"
	"strconv"
	"strings"

	"github.com/recsync/recsync-go/internal/randid"
)

// NonceLength is the number of characters drawn for the nonce component.
// 16 characters from a 62-symbol alphabet is comfortably above the 64 bits
// of entropy the wire format requires to avoid collisions.
const NonceLength = 16

// ErrMalformed is returned by Parse when a token isn't "<counter>-<nonce>".
var ErrMalformed = errors.New("version: malformed token")

// Token is a version token of the form "<counter>-<nonce>".
type Token struct {
	Counter int64
	Nonce   string
}

// Zero is the unset token a record carries before its first ready transition.
var Zero = Token{}

// IsZero reports whether t is the unset token.
func (t Token) IsZero() bool {
	return t == Zero
}

// String renders the canonical wire form.
func (t Token) String() string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.Counter, 10) + "-" + t.Nonce
}

// Parse decodes a wire token. An empty string parses to Zero.
func Parse(s string) (Token, error) {
	if s == "" {
		return Zero, nil
	}

	idx := strings.IndexByte(s, '-')
	if idx <= 0 || idx == len(s)-1 {
		return Zero, ErrMalformed
	}

	counter, err := strconv.ParseInt(s[:idx], 10, 64)
	if err != nil || counter < 0 {
		return Zero, ErrMalformed
	}

	return Token{Counter: counter, Nonce: s[idx+1:]}, nil
}

// New mints a token with the given counter and a fresh random nonce.
func New(counter int64) Token {
	return Token{Counter: counter, Nonce: randid.String(NonceLength)}
}

// Next mints the token that must follow t after a local write: t's
// counter plus one, always with a fresh nonce.
func (t Token) Next() Token {
	return New(t.Counter + 1)
}

// Less reports whether a sorts strictly before b: lower counter, or equal
// counter and lexicographically smaller nonce. This is the deterministic
// tie-break two clients racing on the same counter must agree on without
// coordination.
func Less(a, b Token) bool {
	if a.Counter != b.Counter {
		return a.Counter < b.Counter
	}
	return a.Nonce < b.Nonce
}

// GreaterThan reports whether a strictly outranks b, i.e. an UPDATE carrying
// version a should supersede one carrying version b.
func GreaterThan(a, b Token) bool {
	return Less(b, a)
}
