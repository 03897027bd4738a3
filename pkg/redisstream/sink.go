package redisstream

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/webstreams/pkg/streams"
)

// NewSink returns a WritableStream that appends every Message to
// config.Key with an ID assigned by Redis.
func NewSink(client redis.UniversalClient, config Config) (*streams.WritableStream[Message], error) {
	if err := config.validate(client); err != nil {
		return nil, err
	}
	return streams.NewWritableStreamWithConfig[Message](&sink{client: client, config: config}, config.Stream)
}

type sink struct {
	client redis.UniversalClient
	config Config
}

func (s *sink) Start(context.Context, streams.WritableController) error {
	return nil
}

func (s *sink) Write(ctx context.Context, msg Message, _ streams.WritableController) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.RedisTimeout)
	defer cancel()

	err := s.client.XAdd(ctx, xaddArgs(s.config, msg)).Err()
	if err != nil {
		return &RedisError{"xadd", err}
	}
	return nil
}

func (s *sink) Close(context.Context) error {
	return nil
}

func (s *sink) Abort(context.Context, error) error {
	return nil
}

func xaddArgs(config Config, msg Message) *redis.XAddArgs {
	args := &redis.XAddArgs{
		Stream: config.Key,
		ID:     "*",
		Values: msg.Values,
	}
	if config.MaxLen > 0 {
		args.MaxLen = config.MaxLen
		args.Approx = true
	}
	return args
}
