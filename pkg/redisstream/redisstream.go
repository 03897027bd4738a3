package redisstream

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	wserrors "github.com/vnykmshr/webstreams/pkg/common/errors"
	"github.com/vnykmshr/webstreams/pkg/common/validation"
	"github.com/vnykmshr/webstreams/pkg/streams"
)

// Message is one Redis stream entry.
type Message struct {
	ID     string
	Values map[string]interface{}
}

// RedisError wraps a failed Redis command.
type RedisError struct {
	Op  string
	Err error
}

func (e *RedisError) Error() string {
	return "redisstream: " + e.Op + ": " + e.Err.Error()
}

func (e *RedisError) Unwrap() error {
	return e.Err
}

// ErrNoClient is returned when a constructor gets a nil client.
var ErrNoClient = errors.New("redisstream: nil redis client")

// Config holds configuration for sources and sinks.
type Config struct {
	// Key is the Redis stream key.
	Key string

	// StartID is where a source starts reading: "0" for the beginning of
	// the stream or "$" for entries added after the source was created.
	StartID string

	// Count is the maximum number of entries read per pull.
	Count int64

	// Block bounds how long a single XREAD waits. A pull keeps issuing
	// reads until entries arrive or the stream is cancelled.
	Block time.Duration

	// MaxLen trims the stream to about this many entries on every XADD.
	// Zero disables trimming.
	MaxLen int64

	// RedisTimeout bounds each XADD and the start-up lookup of "$".
	RedisTimeout time.Duration

	// Stream configures the underlying stream.
	Stream streams.Config[Message]
}

// DefaultConfig returns a configuration reading from the beginning of the
// stream in batches of 100.
func DefaultConfig() Config {
	stream := streams.DefaultConfig[Message]()
	stream.Name = "redis"
	return Config{
		StartID:      "0",
		Count:        100,
		Block:        time.Second,
		RedisTimeout: 500 * time.Millisecond,
		Stream:       stream,
	}
}

func (c Config) validate(client redis.UniversalClient) error {
	if client == nil {
		return ErrNoClient
	}
	if err := validation.ValidateNotEmpty("redisstream", "Key", c.Key); err != nil {
		return err
	}
	if c.Count <= 0 {
		return wserrors.NewValidationError("redisstream", "Count", c.Count, "must be positive")
	}
	if c.Block <= 0 {
		return wserrors.NewValidationError("redisstream", "Block", c.Block, "must be positive").
			WithHint("XREAD BLOCK 0 waits forever and cannot observe cancellation")
	}
	if c.MaxLen < 0 {
		return wserrors.NewValidationError("redisstream", "MaxLen", c.MaxLen, "must not be negative")
	}
	return nil
}
