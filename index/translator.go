// Package index implements the reader side of the index tree: given a
// root digest, classify and expand it, recursing through INDEX chunks
// until DATA chunks are reached and streamed to the caller's writer.
package index

import (
	"io"

	"github.com/fabyulshi/rdedup"
)

// reader is the contract index needs from the chunk store: enough to
// classify a digest and stream its plaintext. package repo supplies the
// concrete *store.Store.
type reader interface {
	Classify(digest rdedup.Digest) (rdedup.Kind, error)
	Get(digest rdedup.Digest, kind rdedup.Kind, w io.Writer, secretKey *rdedup.SecretKey) error
}

// Reader expands a backup's root digest depth-first, left-to-right,
// writing the reconstructed byte stream to a caller-supplied writer.
type Reader struct {
	store reader
}

// NewReader returns a Reader that resolves chunks through store.
func NewReader(store reader) *Reader {
	return &Reader{store: store}
}

// ReadBackup reconstructs the byte stream rooted at digest, writing it
// to w. secretKey is required to decrypt the DATA chunks encountered.
// Every backup written by this module, an empty one included, reaches at
// least one DATA chunk, and store.Get rejects a nil key when it does.
func (r *Reader) ReadBackup(digest rdedup.Digest, w io.Writer, secretKey *rdedup.SecretKey) error {
	return r.readRec(digest, w, secretKey)
}

func (r *Reader) readRec(digest rdedup.Digest, w io.Writer, secretKey *rdedup.SecretKey) error {
	kind, err := r.store.Classify(digest)
	if err != nil {
		return err
	}

	if kind == rdedup.DataKind {
		return r.store.Get(digest, rdedup.DataKind, w, secretKey)
	}

	var blob indexBlob
	if err := r.store.Get(digest, rdedup.IndexKind, &blob, nil); err != nil {
		return err
	}
	if blob.Len()%rdedup.DigestSize != 0 {
		return rdedup.ErrCorrupted
	}

	t := &Translator{reader: r, writer: w, secretKey: secretKey}
	_, err = t.Write(blob.Bytes())
	return err
}

// indexBlob is an io.Writer that simply accumulates bytes, used to pull
// an INDEX chunk's full plaintext out of store.Get before walking it.
// Index blobs are bounded by chunk size clamps, so buffering one is
// cheap; with one buffered blob and one 32-byte pending digest per level
// of the walk, the tree-wide memory cost is O(depth x max chunk size)
// rather than O(tree size).
type indexBlob struct {
	buf []byte
}

func (b *indexBlob) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *indexBlob) Len() int      { return len(b.buf) }
func (b *indexBlob) Bytes() []byte { return b.buf }

// Translator is a write-sink that groups incoming bytes into 32-byte
// digests; each time a full digest accumulates, it recurses into the
// reader for that child and resets. Flush is unnecessary: the tree
// invariant guarantees every index blob's length is an exact multiple
// of 32, so Write always leaves the buffer empty once the blob driving
// it has been fully consumed.
type Translator struct {
	reader    *Reader
	writer    io.Writer
	secretKey *rdedup.SecretKey
	pending   []byte
}

// Write implements io.Writer.
func (t *Translator) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		need := rdedup.DigestSize - len(t.pending)
		if len(p) < need {
			t.pending = append(t.pending, p...)
			return total, nil
		}

		t.pending = append(t.pending, p[:need]...)
		p = p[need:]

		var child rdedup.Digest
		copy(child[:], t.pending)
		t.pending = t.pending[:0]

		if err := t.reader.readRec(child, t.writer, t.secretKey); err != nil {
			return total - len(p), err
		}
	}
	return total, nil
}
