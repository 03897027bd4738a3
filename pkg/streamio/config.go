package streamio

import (
	"github.com/vnykmshr/webstreams/pkg/common/validation"
	"github.com/vnykmshr/webstreams/pkg/streams"
)

const (
	defaultChunkSize     = 32 * 1024
	defaultHighWaterMark = 64 * 1024
)

// Config holds configuration for the io adapters.
type Config struct {
	// ChunkSize is the read buffer size of FromReader. Chunks are never
	// larger than this.
	ChunkSize int

	// Stream configures the underlying stream. Its strategy counts bytes by
	// default.
	Stream streams.Config[[]byte]
}

// DefaultConfig returns 32KiB reads and a 64KiB byte-length high water mark.
func DefaultConfig() Config {
	stream := streams.DefaultConfig[[]byte]()
	stream.Strategy = streams.ByteLengthQueuingStrategy[[]byte](defaultHighWaterMark)
	return Config{
		ChunkSize: defaultChunkSize,
		Stream:    stream,
	}
}

func (c Config) validate() error {
	return validation.ValidatePositive("streamio", "ChunkSize", c.ChunkSize)
}
