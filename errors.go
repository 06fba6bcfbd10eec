package rdedup

import "errors"

// Sentinel error kinds, matching the classification a caller needs to
// distinguish at the API boundary. Wrapped errors returned by this module
// satisfy errors.Is against these values.
var (
	// ErrExists is returned by Init of an existing path, or Write of a
	// backup name that already exists.
	ErrExists = errors.New("rdedup: already exists")
	// ErrNotFound is returned by Open of a missing repository, Read of
	// an unknown backup name, or Classify of an unknown digest.
	ErrNotFound = errors.New("rdedup: not found")
	// ErrInvalidPubKey is returned when the pub_key file is unreadable,
	// not hex, or the wrong length.
	ErrInvalidPubKey = errors.New("rdedup: invalid public key")
	// ErrDecryptionFailed is returned when the envelope rejects a
	// chunk's ciphertext.
	ErrDecryptionFailed = errors.New("rdedup: decryption failed")
	// ErrCorrupted is returned when a chunk's plaintext does not hash to
	// its filename digest, or an index blob's length is not a multiple
	// of DigestSize.
	ErrCorrupted = errors.New("rdedup: corrupted chunk")
)
