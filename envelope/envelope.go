// Package envelope implements the per-chunk sealed-box encryption scheme:
// a fresh ephemeral keypair per chunk, a nonce derived deterministically
// from the chunk's content digest, and authenticated public-key boxing
// via golang.org/x/crypto/nacl/box (Curve25519 + XSalsa20-Poly1305).
//
// The deterministic nonce is safe here only because of how the chunk
// store (package store) uses this package: a chunk is only ever sealed
// once per unique digest (the store's put path is skipped entirely on a
// dedup hit), so the same (ephemeral key, nonce) pair is never reused to
// seal two different plaintexts. Do not change the nonce derivation
// without re-auditing that invariant.
package envelope

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/nacl/box"

	"github.com/fabyulshi/rdedup"
)

// NonceSize is the length in bytes of a box nonce.
const NonceSize = 24

// Nonce is the per-seal nonce. Callers derive it from a chunk's digest;
// see NonceFromDigest.
type Nonce [NonceSize]byte

// GenerateKeypair returns a fresh Curve25519 keypair, suitable either as
// a repository's long-term keypair (Init) or as a chunk's ephemeral
// keypair (Seal).
func GenerateKeypair() (rdedup.PublicKey, rdedup.SecretKey, error) {
	pub, sec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return rdedup.PublicKey{}, rdedup.SecretKey{}, fmt.Errorf("envelope: generate keypair: %w", err)
	}
	return rdedup.PublicKey(*pub), rdedup.SecretKey(*sec), nil
}

// Seal generates a fresh ephemeral keypair, seals plaintext for
// recipient under nonce using the ephemeral secret key, and returns the
// ephemeral public key alongside the ciphertext. The ephemeral public
// key must accompany the ciphertext wherever it is stored: it is the
// only way Open can later recover the shared secret.
func Seal(plaintext []byte, nonce Nonce, recipient rdedup.PublicKey) (ephemeralPub rdedup.PublicKey, ciphertext []byte, err error) {
	epk, esk, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return rdedup.PublicKey{}, nil, fmt.Errorf("envelope: generate ephemeral keypair: %w", err)
	}
	rpk := [rdedup.KeySize]byte(recipient)
	n := [NonceSize]byte(nonce)
	sealed := box.Seal(nil, plaintext, &n, &rpk, esk)
	return rdedup.PublicKey(*epk), sealed, nil
}

// Open reverses Seal: given the sender's ephemeral public key, the
// nonce, and the recipient's secret key, it recovers the plaintext. It
// returns rdedup.ErrDecryptionFailed if the ciphertext does not
// authenticate.
func Open(ciphertext []byte, nonce Nonce, senderPub rdedup.PublicKey, recipientSecret rdedup.SecretKey) ([]byte, error) {
	spk := [rdedup.KeySize]byte(senderPub)
	rsk := [rdedup.KeySize]byte(recipientSecret)
	n := [NonceSize]byte(nonce)
	plaintext, ok := box.Open(nil, ciphertext, &n, &spk, &rsk)
	if !ok {
		return nil, rdedup.ErrDecryptionFailed
	}
	return plaintext, nil
}

// NonceFromDigest derives the deterministic per-chunk nonce from a
// chunk's content digest, taking its leading NonceSize bytes. Digest is
// DigestSize (32) bytes and NonceSize is 24, so this never runs short.
func NonceFromDigest(d rdedup.Digest) Nonce {
	var n Nonce
	copy(n[:], d[:NonceSize])
	return n
}
