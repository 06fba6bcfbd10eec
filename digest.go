package rdedup

import "encoding/hex"

// DigestSize is the length in bytes of a chunk digest (SHA-256).
const DigestSize = 32

// Digest is the SHA-256 content hash of a chunk's plaintext bytes. It is
// the sole address under which a chunk is stored; two chunks with
// identical plaintext collapse to the same Digest and thus the same file.
type Digest [DigestSize]byte

// String returns the lowercase hex encoding of d.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Bytes returns d as a freshly allocated byte slice.
func (d Digest) Bytes() []byte {
	b := make([]byte, DigestSize)
	copy(b, d[:])
	return b
}

// IsZero reports whether d is the all-zero digest (never a valid SHA-256
// of any input this repository writes, but useful as a sentinel).
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// DigestFromBytes copies b into a Digest. b must be exactly DigestSize
// bytes long.
func DigestFromBytes(b []byte) (Digest, bool) {
	var d Digest
	if len(b) != DigestSize {
		return d, false
	}
	copy(d[:], b)
	return d, true
}

// Kind distinguishes the two families of chunk a repository stores.
type Kind int

const (
	// DataKind marks a chunk whose plaintext is user data. Data chunks
	// are compressed then sealed behind the repository's envelope.
	DataKind Kind = iota
	// IndexKind marks a chunk whose plaintext is a concatenation of
	// 32-byte child digests. Index chunks are stored as raw plaintext:
	// compression gains little on digest-shaped data, and a reader must
	// be able to walk the tree shape without the secret key.
	IndexKind
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case DataKind:
		return "data"
	case IndexKind:
		return "index"
	default:
		return "unknown"
	}
}

// ShouldCompress reports whether chunks of this kind are deflated before
// being written.
func (k Kind) ShouldCompress() bool {
	return k == DataKind
}

// ShouldEncrypt reports whether chunks of this kind are sealed behind the
// envelope before being written.
func (k Kind) ShouldEncrypt() bool {
	return k == DataKind
}

// Dir is the top-level directory name a chunk of this kind is stored
// under, relative to the repository root.
func (k Kind) Dir() string {
	switch k {
	case DataKind:
		return "chunks"
	case IndexKind:
		return "index"
	default:
		return ""
	}
}
