package pipeline

import "errors"

// errOpenChunkAtClose signals a producer bug: Exit arrived with an
// unterminated chunk still queued. A correct producer always closes its
// trailing chunk via Chunker.Finish before closing the pipeline.
var errOpenChunkAtClose = errors.New("pipeline: open chunk still queued at close")

// errDigestMismatch signals the chunker's reported edge digest disagreed
// with the digest the store computed over the same bytes; this would
// indicate a chunker or message-assembly bug, not a data-dependent error.
var errDigestMismatch = errors.New("pipeline: edge digest does not match assembled plaintext")

// errConsumerFailed is returned to the producer once the consumer has
// recorded an error and is only draining messages. The real error is
// retrieved from Pipeline.Close after the producer finishes sending.
var errConsumerFailed = errors.New("pipeline: consumer failed, see Close error")
