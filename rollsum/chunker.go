package rollsum

import (
	"crypto/sha256"
	"hash"

	"github.com/fabyulshi/rdedup"
)

// Edge is a chunk boundary: the offset within the buffer passed to Feed
// at which the chunk ended, and the SHA-256 digest of that chunk's
// plaintext.
type Edge struct {
	Offset int
	Digest rdedup.Digest
}

// Chunker consumes a byte stream incrementally and reports chunk
// boundaries as it goes, so a caller can interleave cutting with I/O
// instead of buffering the whole input. It maintains a rolling-hash
// engine over the trailing window plus a running SHA-256 of the
// currently open chunk.
type Chunker struct {
	params Params
	roll   *engine
	sha    hash.Hash

	bytesTotal int
	bytesChunk int

	edges []Edge
}

// NewChunker returns a Chunker using the given Params. Params must match
// exactly between every writer and reader of a repository.
func NewChunker(params Params) *Chunker {
	return &Chunker{
		params: params,
		roll:   newEngine(params.WindowSize),
		sha:    sha256.New(),
	}
}

// Feed scans buf for chunk edges, returning those found during this call
// with offsets relative to buf's start. Bytes belonging to a chunk that
// has not yet been closed are absorbed into the running SHA-256 state
// only; no edge is emitted for them until a future Feed or Finish call
// closes the chunk.
func (c *Chunker) Feed(buf []byte) []Edge {
	mask := c.params.mask()
	ofs := 0
	n := len(buf)
	for ofs < n {
		c.roll.roll(buf[ofs])
		c.bytesChunk++
		ofs++
		c.sha.Write(buf[ofs-1 : ofs])

		cut := c.bytesChunk >= c.params.MaxSize
		if !cut && c.bytesChunk >= c.params.MinSize && c.roll.digest()&mask == 0 {
			cut = true
		}
		if cut {
			c.edgeFound(ofs)
		}
	}
	c.bytesTotal += n
	return c.drainEdges()
}

// Finish closes any chunk still open. If the stream was empty, it emits
// a single edge for the empty chunk (SHA-256 of zero bytes), so every
// stream — including an empty one — produces at least one chunk.
func (c *Chunker) Finish() []Edge {
	if c.bytesChunk != 0 || c.bytesTotal == 0 {
		c.edgeFound(0)
	}
	return c.drainEdges()
}

func (c *Chunker) edgeFound(bufOfs int) {
	var digest rdedup.Digest
	copy(digest[:], c.sha.Sum(nil))
	c.edges = append(c.edges, Edge{Offset: bufOfs, Digest: digest})

	c.bytesChunk = 0
	c.sha.Reset()
	c.roll.reset()
}

func (c *Chunker) drainEdges() []Edge {
	e := c.edges
	c.edges = nil
	return e
}
