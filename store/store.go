// Package store implements the chunk store: addressing, compression,
// envelope-encryption and atomic persistence of chunks, and the
// reverse path — decrypt, decompress, verify — on read.
package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/klauspost/compress/flate"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/fabyulshi/rdedup"
	"github.com/fabyulshi/rdedup/envelope"
)

// deflateLevel is the DEFLATE compression level applied to DATA chunks:
// the library's default level, flate.DefaultCompression.
const deflateLevel = flate.DefaultCompression

// Store addresses, persists and retrieves chunks under a repository
// root directory, using the repository's long-term public key to seal
// DATA chunks.
type Store struct {
	root   string
	pubKey rdedup.PublicKey
	log    *zap.SugaredLogger
}

// New returns a Store rooted at root, sealing DATA chunks for pubKey.
// A nil logger is replaced with a no-op logger.
func New(root string, pubKey rdedup.PublicKey, log *zap.SugaredLogger) *Store {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Store{root: root, pubKey: pubKey, log: log}
}

// Path returns the on-disk path a chunk of the given kind and digest is
// stored (or would be stored) at: <root>/<kind>/<h0>/<h1>/<hex>.
func (s *Store) Path(digest rdedup.Digest, kind rdedup.Kind) string {
	hexDigest := hex.EncodeToString(digest[:])
	return filepath.Join(s.root, kind.Dir(), hexDigest[0:2], hexDigest[2:4], hexDigest)
}

// Put computes plaintext's digest, and if no chunk already exists at the
// derived path (deduplication), compresses it (DATA only), seals it
// (DATA only) and writes it atomically. It always returns the digest,
// whether or not a new file was written.
func (s *Store) Put(plaintext []byte, kind rdedup.Kind) (rdedup.Digest, error) {
	digest := rdedup.Digest(sha256.Sum256(plaintext))
	path := s.Path(digest, kind)

	if _, err := os.Stat(path); err == nil {
		s.log.Debugw("chunk dedup hit", "digest", digest, "kind", kind, "size", humanize.Bytes(uint64(len(plaintext))))
		return digest, nil
	} else if !os.IsNotExist(err) {
		return digest, errors.Wrapf(err, "store: stat %s", path)
	}

	data := plaintext
	if kind.ShouldCompress() {
		var buf bytes.Buffer
		zw, err := flate.NewWriter(&buf, deflateLevel)
		if err != nil {
			return digest, errors.Wrap(err, "store: create deflate writer")
		}
		if _, err := zw.Write(plaintext); err != nil {
			return digest, errors.Wrap(err, "store: deflate chunk")
		}
		if err := zw.Close(); err != nil {
			return digest, errors.Wrap(err, "store: finish deflate chunk")
		}
		data = buf.Bytes()
	}

	if kind.ShouldEncrypt() {
		nonce := envelope.NonceFromDigest(digest)
		epk, ciphertext, err := envelope.Seal(data, nonce, s.pubKey)
		if err != nil {
			return digest, errors.Wrap(err, "store: seal chunk")
		}
		sealed := make([]byte, 0, rdedup.KeySize+len(ciphertext))
		sealed = append(sealed, epk[:]...)
		sealed = append(sealed, ciphertext...)
		data = sealed
	}

	if err := s.writeAtomic(path, data); err != nil {
		return digest, err
	}

	s.log.Debugw("wrote chunk", "digest", digest, "kind", kind,
		"plaintext_size", humanize.Bytes(uint64(len(plaintext))),
		"stored_size", humanize.Bytes(uint64(len(data))))
	return digest, nil
}

func (s *Store) writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "store: mkdir for %s", path)
	}

	tmpPath := fmt.Sprintf("%s.%s.tmp", path, uuid.New().String())
	f, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrapf(err, "store: create %s", tmpPath)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return errors.Wrapf(err, "store: write %s", tmpPath)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return errors.Wrapf(err, "store: sync %s", tmpPath)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "store: close %s", tmpPath)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		// Another writer may have raced us to the same digest; that is
		// fine, content addressing guarantees they wrote the same bytes.
		if _, statErr := os.Stat(path); statErr == nil {
			os.Remove(tmpPath)
			return nil
		}
		os.Remove(tmpPath)
		return errors.Wrapf(err, "store: rename %s to %s", tmpPath, path)
	}
	return nil
}

// Get reads the chunk at digest/kind, reversing Put's pipeline: open the
// envelope (DATA only, requires secretKey), inflate (DATA only), verify
// the plaintext hashes to digest, and write the plaintext to w.
// Integrity failures are fatal and returned as rdedup.ErrCorrupted; a
// rejected envelope is returned as rdedup.ErrDecryptionFailed.
func (s *Store) Get(digest rdedup.Digest, kind rdedup.Kind, w io.Writer, secretKey *rdedup.SecretKey) error {
	path := s.Path(digest, kind)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return rdedup.ErrNotFound
		}
		return errors.Wrapf(err, "store: read %s", path)
	}

	data := raw
	if kind.ShouldEncrypt() {
		if secretKey == nil {
			return errors.New("store: secret key required to read a data chunk")
		}
		if len(raw) < rdedup.KeySize {
			return fmt.Errorf("%w: chunk file shorter than an ephemeral public key", rdedup.ErrCorrupted)
		}
		var epk rdedup.PublicKey
		copy(epk[:], raw[:rdedup.KeySize])
		ciphertext := raw[rdedup.KeySize:]
		nonce := envelope.NonceFromDigest(digest)
		plaintext, err := envelope.Open(ciphertext, nonce, epk, *secretKey)
		if err != nil {
			return err
		}
		data = plaintext
	}

	if kind.ShouldCompress() {
		zr := flate.NewReader(bytes.NewReader(data))
		defer zr.Close()
		inflated, err := io.ReadAll(zr)
		if err != nil {
			return errors.Wrap(err, "store: inflate chunk")
		}
		data = inflated
	}

	gotDigest := rdedup.Digest(sha256.Sum256(data))
	if gotDigest != digest {
		s.log.Warnw("chunk failed integrity check", "digest", digest, "kind", kind, "got", gotDigest)
		return fmt.Errorf("%w: %s read back as %s", rdedup.ErrCorrupted, digest, gotDigest)
	}

	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, "store: write plaintext to caller")
	}
	return nil
}

// Classify reports whether digest names an INDEX chunk or a DATA chunk,
// probing index/ then chunks/. It returns rdedup.ErrNotFound if neither
// exists.
func (s *Store) Classify(digest rdedup.Digest) (rdedup.Kind, error) {
	for _, kind := range []rdedup.Kind{rdedup.IndexKind, rdedup.DataKind} {
		if _, err := os.Stat(s.Path(digest, kind)); err == nil {
			return kind, nil
		}
	}
	return 0, rdedup.ErrNotFound
}

// ListDigests walks kind's subtree and returns every digest stored
// there, recovered from the path scheme in Path.
func (s *Store) ListDigests(kind rdedup.Kind) ([]rdedup.Digest, error) {
	root := filepath.Join(s.root, kind.Dir())
	var digests []rdedup.Digest
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		b, err := hex.DecodeString(d.Name())
		if err != nil || len(b) != rdedup.DigestSize {
			return nil
		}
		digest, _ := rdedup.DigestFromBytes(b)
		digests = append(digests, digest)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "store: walk %s", root)
	}
	return digests, nil
}
