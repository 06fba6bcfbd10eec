package pipeline

import (
	"bytes"
	"io"

	"github.com/fabyulshi/rdedup"
	"github.com/fabyulshi/rdedup/rollsum"
)

// readBufSize is the size of buffers read from the producer's input and
// fed to the chunker per iteration.
const readBufSize = 16 * 1024

// ChunkAndSend drives the producer side of a write: it chunks r with a
// fresh rollsum.Chunker, sending each buffer and the edges found in it
// to p's consumer under kind, and accumulates the resulting leaf
// digests into an index blob.
//
// If the stream fit in a single chunk, that chunk's own digest is
// returned directly: a backup's root digest points straight at a DATA
// chunk in this case (spec's single-leaf root). Otherwise the leaf
// digests are recursively re-chunked and stored as INDEX chunks until
// exactly one digest remains, and that digest is wrapped in one more
// single-slot INDEX chunk so a reader's recursion is uniform: every
// multi-chunk backup's root always classifies as INDEX and its
// plaintext is always exactly one more digest to follow.
func ChunkAndSend(p *Pipeline, r io.Reader, kind rdedup.Kind) (rdedup.Digest, error) {
	leaves, err := p.feedAndCollect(r, kind)
	if err != nil {
		return rdedup.Digest{}, err
	}
	if len(leaves) == rdedup.DigestSize {
		var d rdedup.Digest
		copy(d[:], leaves)
		return d, nil
	}

	inner, err := p.reduceToSingleDigest(leaves, 1)
	if err != nil {
		return rdedup.Digest{}, err
	}

	wrapped, err := p.store.Put(inner.Bytes(), rdedup.IndexKind)
	if err != nil {
		return rdedup.Digest{}, err
	}
	return wrapped, nil
}

// reduceToSingleDigest repeatedly re-chunks a flat digest list under
// IndexKind until only one digest remains, which is the caller's to
// wrap (ChunkAndSend) or interpret. It never wraps itself: each
// recursive pass's own single-chunk terminus is already a real,
// persisted INDEX chunk and needs no indirection of its own.
func (p *Pipeline) reduceToSingleDigest(leaves []byte, depth int) (rdedup.Digest, error) {
	if len(leaves) == rdedup.DigestSize {
		var d rdedup.Digest
		copy(d[:], leaves)
		return d, nil
	}

	p.log.Debugw("chunking index layer", "depth", depth, "digests", len(leaves)/rdedup.DigestSize)
	next, err := p.feedAndCollect(bytes.NewReader(leaves), rdedup.IndexKind)
	if err != nil {
		return rdedup.Digest{}, err
	}
	return p.reduceToSingleDigest(next, depth+1)
}

// feedAndCollect reads r in readBufSize pieces, feeding each to a fresh
// Chunker and forwarding every (bytes, edges) pair to the consumer —
// even when edges is empty, since the consumer must still accumulate
// those bytes into the currently open chunk. It returns the
// concatenation of every edge digest produced, in stream order: the
// index blob for this level of the tree.
func (p *Pipeline) feedAndCollect(r io.Reader, kind rdedup.Kind) ([]byte, error) {
	chunker := rollsum.NewChunker(p.params())

	var leaves []byte
	buf := make([]byte, readBufSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			piece := make([]byte, n)
			copy(piece, buf[:n])

			edges := chunker.Feed(piece)
			for _, e := range edges {
				leaves = append(leaves, e.Digest[:]...)
			}
			p.send(message{bytes: piece, edges: edges, kind: kind})
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	edges := chunker.Finish()
	for _, e := range edges {
		leaves = append(leaves, e.Digest[:]...)
	}
	p.send(message{bytes: nil, edges: edges, kind: kind})

	if p.failed() {
		return nil, errConsumerFailed
	}
	return leaves, nil
}
