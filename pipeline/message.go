package pipeline

import (
	"github.com/fabyulshi/rdedup"
	"github.com/fabyulshi/rdedup/rollsum"
)

// message is what the producer posts to the consumer. bytes is the
// buffer the chunker just scanned (nil for the trailing Finish call);
// edges are the chunk boundaries found while scanning it; kind governs
// both where resulting chunks are persisted and how they are
// compressed/encrypted (store.Store ties both to a single rdedup.Kind).
type message struct {
	bytes []byte
	edges []rollsum.Edge
	kind  rdedup.Kind
}
