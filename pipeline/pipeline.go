// Package pipeline implements the producer/consumer chunk-writing
// coroutine (a single dedicated consumer goroutine fed by a bounded
// channel) and the recursive index-tree construction that rides on top
// of it.
package pipeline

import (
	"sync"

	"go.uber.org/zap"

	"github.com/fabyulshi/rdedup"
	"github.com/fabyulshi/rdedup/rollsum"
	"github.com/fabyulshi/rdedup/store"
)

// DefaultChannelCapacity is the bounded channel size used when Options
// does not specify one: a modest bound sufficient to decouple the
// producer from filesystem latency without buffering the whole input.
const DefaultChannelCapacity = 64

// Pipeline owns the consumer goroutine and the channel connecting it to
// a producer. A Pipeline is used for exactly one write operation: it is
// created, driven by ChunkAndSend, and closed.
type Pipeline struct {
	store         *store.Store
	log           *zap.SugaredLogger
	chunkerParams rollsum.Params

	msgCh chan message
	wg    sync.WaitGroup

	mu  sync.Mutex
	err error
}

// New starts a Pipeline's consumer goroutine, writing chunks through s
// and chunking with chunkerParams. capacity <= 0 selects
// DefaultChannelCapacity. A nil logger is replaced with a no-op logger.
func New(s *store.Store, chunkerParams rollsum.Params, capacity int, log *zap.SugaredLogger) *Pipeline {
	if capacity <= 0 {
		capacity = DefaultChannelCapacity
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	p := &Pipeline{
		store:         s,
		log:           log,
		chunkerParams: chunkerParams,
		msgCh:         make(chan message, capacity),
	}
	p.wg.Add(1)
	go p.consume()
	return p
}

func (p *Pipeline) params() rollsum.Params {
	return p.chunkerParams
}

// consume is the single consumer goroutine: it owns previousParts, the
// queue of byte buffers belonging to the currently open (not yet
// edge-terminated) chunk.
func (p *Pipeline) consume() {
	defer p.wg.Done()

	var previousParts [][]byte
	for msg := range p.msgCh {
		if p.failed() {
			continue // drain the rest so the producer never blocks on send
		}
		if err := p.handle(msg, &previousParts); err != nil {
			p.log.Errorw("pipeline consumer failed", "err", err)
			p.setErr(err)
		}
	}
	if len(previousParts) != 0 && !p.failed() {
		p.setErr(errOpenChunkAtClose)
	}
}

func (p *Pipeline) handle(msg message, previousParts *[][]byte) error {
	if len(msg.edges) == 0 {
		*previousParts = append(*previousParts, msg.bytes)
		return nil
	}

	prevOfs := 0
	for _, edge := range msg.edges {
		parts := make([][]byte, 0, len(*previousParts)+1)
		parts = append(parts, *previousParts...)
		if edge.Offset != prevOfs {
			parts = append(parts, msg.bytes[prevOfs:edge.Offset])
		}
		*previousParts = (*previousParts)[:0]

		size := 0
		for _, part := range parts {
			size += len(part)
		}
		plaintext := make([]byte, 0, size)
		for _, part := range parts {
			plaintext = append(plaintext, part...)
		}

		digest, err := p.store.Put(plaintext, msg.kind)
		if err != nil {
			return err
		}
		if digest != edge.Digest {
			return errDigestMismatch
		}

		prevOfs = edge.Offset
	}

	if prevOfs != len(msg.bytes) {
		*previousParts = append(*previousParts, msg.bytes[prevOfs:])
	}
	return nil
}

func (p *Pipeline) send(msg message) {
	p.msgCh <- msg
}

func (p *Pipeline) failed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err != nil
}

func (p *Pipeline) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err == nil {
		p.err = err
	}
}

// Close signals Exit to the consumer and waits for it to join, returning
// the first error the consumer encountered, if any.
func (p *Pipeline) Close() error {
	close(p.msgCh)
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
