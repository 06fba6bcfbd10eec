// Package testutil provides shared helpers for building random and
// repeating byte streams in this module's tests.
package testutil

import "math/rand"

// RandomBytes returns n pseudo-random bytes generated from seed, so
// callers get a reproducible stream across test runs without needing
// crypto/rand's nondeterminism.
func RandomBytes(seed int64, n int) []byte {
	buf := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(buf)
	return buf
}

// RepeatingBlock returns n copies of block concatenated, a convenient
// way to build inputs that exercise deduplication.
func RepeatingBlock(block []byte, n int) []byte {
	out := make([]byte, 0, len(block)*n)
	for i := 0; i < n; i++ {
		out = append(out, block...)
	}
	return out
}
