// Package rollsum implements the content-defined chunking engine: a
// bup-style rolling checksum over a sliding window, combined with a
// running SHA-256 of the currently-open chunk, emitting a cut ("edge")
// whenever the rolling digest's low bits are all zero.
package rollsum

// Params configures the chunk-edge rule. The same Params must be used by
// every writer and reader of a given repository: chunk boundaries (and
// therefore content addresses) are derived purely from these values and
// the input bytes.
type Params struct {
	// WindowSize is the number of trailing bytes the rolling checksum
	// considers. 64 is the bup default and the value this package's
	// rolling-hash constants are tuned for.
	WindowSize int
	// AvgBits is the number of low bits of the rolling digest that must
	// be zero to declare an edge. Average chunk size is approximately
	// 2^AvgBits bytes.
	AvgBits uint
	// MinSize and MaxSize clamp the chunk size regardless of what the
	// rolling hash reports, guarding against pathological inputs (long
	// runs of repeated bytes can otherwise produce degenerate chunk
	// sizes).
	MinSize int
	MaxSize int
}

// DefaultParams returns the parameter set this module's writer and
// reader both assume when none is supplied explicitly: a 64-byte
// window, an 8 KiB average chunk size (2^13), and min/max clamps of
// 2 KiB and 64 KiB.
func DefaultParams() Params {
	return Params{
		WindowSize: 64,
		AvgBits:    13,
		MinSize:    2 << 10,
		MaxSize:    64 << 10,
	}
}

// mask is the bitmask applied to the rolling digest to test for a cut:
// the low AvgBits bits must all be zero.
func (p Params) mask() uint32 {
	return (uint32(1) << p.AvgBits) - 1
}
