package rdedup

import (
	"encoding/hex"
	"fmt"
)

// KeySize is the length in bytes of a Curve25519 public or secret key.
const KeySize = 32

// PublicKey is a repository's long-term Curve25519 public key. It is the
// only long-term key ever written to disk (as hex, in the pub_key file);
// the only other keys on disk are the per-chunk ephemeral public keys
// stored at the head of each DATA chunk file.
type PublicKey [KeySize]byte

// SecretKey is the Curve25519 secret key matching a repository's
// PublicKey. It is returned to the caller at Init and never persisted;
// losing it makes every DATA chunk in the repository permanently
// unrecoverable (INDEX chunks are stored unencrypted).
type SecretKey [KeySize]byte

// String returns the lowercase hex encoding of k.
func (k PublicKey) String() string {
	return hex.EncodeToString(k[:])
}

// String returns the lowercase hex encoding of k. Printing a SecretKey is
// occasionally useful for key export/backup tooling; callers that want to
// avoid leaking it into logs should format it explicitly rather than rely
// on %v.
func (k SecretKey) String() string {
	return hex.EncodeToString(k[:])
}

// ParsePublicKey decodes a hex-encoded public key, as found in a
// repository's pub_key file.
func ParsePublicKey(s string) (PublicKey, error) {
	var k PublicKey
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("%w: %s", ErrInvalidPubKey, err)
	}
	if len(b) != KeySize {
		return k, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidPubKey, KeySize, len(b))
	}
	copy(k[:], b)
	return k, nil
}

// ParseSecretKey decodes a hex-encoded secret key, as produced by
// SecretKey.String.
func ParseSecretKey(s string) (SecretKey, error) {
	var k SecretKey
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("rdedup: invalid secret key: %s", err)
	}
	if len(b) != KeySize {
		return k, fmt.Errorf("rdedup: invalid secret key: want %d bytes, got %d", KeySize, len(b))
	}
	copy(k[:], b)
	return k, nil
}
