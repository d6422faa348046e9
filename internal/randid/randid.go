// Package randid generates short random identifiers used as version-token
// nonces.
//
// It is seeded once from crypto/rand and then draws from a fast PCG stream,
// the same split this codebase uses elsewhere when it needs identifiers that
// must be unpredictable at the seed but don't need per-draw CSPRNG cost.
package randid

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
)

const (
	bytesInUint64 = 8
	charset       = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

var charsetLen = len(charset)

var shared = newSource()

type source struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newSource() *source {
	seed := make([]byte, bytesInUint64*2)
	if _, err := cryptorand.Read(seed); err != nil {
		panic("randid: crypto/rand unavailable: " + err.Error())
	}

	return &source{
		rng: rand.New(rand.NewPCG(
			binary.LittleEndian.Uint64(seed[:8]),
			binary.LittleEndian.Uint64(seed[8:]),
		)),
	}
}

// String returns a random identifier of length n drawn from an alphanumeric
// charset. It is not a cryptographically secure draw past the initial seed,
// which is fine for version nonces: they need collision
// resistance, not unpredictability against an adversary.
func String(n int) string {
	buf := make([]byte, n)

	shared.mu.Lock()
	for i := range buf {
		buf[i] = charset[shared.rng.IntN(charsetLen)]
	}
	shared.mu.Unlock()

	return string(buf)
}
