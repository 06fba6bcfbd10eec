package repo

import (
	"go.uber.org/zap"

	"github.com/fabyulshi/rdedup/pipeline"
	"github.com/fabyulshi/rdedup/rollsum"
)

// Options configures a Repo. The zero value is valid: it uses
// rollsum.DefaultParams, pipeline.DefaultChannelCapacity, and a no-op
// logger.
type Options struct {
	// ChunkerParams governs chunk-boundary placement. It must be the
	// same for every write and read against a given repository, since
	// digests (and thus addressing) depend on where chunks are cut.
	ChunkerParams rollsum.Params
	// ChannelCapacity bounds the writer pipeline's producer/consumer
	// channel. <= 0 selects pipeline.DefaultChannelCapacity.
	ChannelCapacity int
	// Log receives structured events for chunk writes, dedup hits, and
	// index recursion. A nil Log is replaced with a no-op logger.
	Log *zap.SugaredLogger
}

func (o Options) withDefaults() Options {
	if o.ChunkerParams == (rollsum.Params{}) {
		o.ChunkerParams = rollsum.DefaultParams()
	}
	if o.Log == nil {
		o.Log = zap.NewNop().Sugar()
	}
	return o
}
