package redisstream

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/webstreams/pkg/streams"
)

// NewSource returns a ReadableStream of the entries of config.Key.
func NewSource(client redis.UniversalClient, config Config) (*streams.ReadableStream[Message], error) {
	if err := config.validate(client); err != nil {
		return nil, err
	}
	if config.StartID == "" {
		config.StartID = "0"
	}
	src := &source{client: client, config: config, lastID: config.StartID}
	return streams.NewReadableStreamWithConfig[Message](src, config.Stream)
}

type source struct {
	client redis.UniversalClient
	config Config
	lastID string // only touched by Start and Pull, which never overlap
}

// Start pins "$" to the current last entry so that entries added between
// two pulls are not skipped.
func (s *source) Start(ctx context.Context, _ streams.ReadableController[Message]) error {
	if s.lastID != "$" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.RedisTimeout)
	defer cancel()

	entries, err := s.client.XRevRangeN(ctx, s.config.Key, "+", "-", 1).Result()
	if err != nil {
		return &RedisError{"xrevrange", err}
	}
	s.lastID = "0-0"
	if len(entries) > 0 {
		s.lastID = entries[0].ID
	}
	return nil
}

func (s *source) Pull(ctx context.Context, c streams.ReadableController[Message]) error {
	for {
		res, err := s.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{s.config.Key, s.lastID},
			Count:   s.config.Count,
			Block:   s.config.Block,
		}).Result()

		switch {
		case errors.Is(err, redis.Nil):
			// block timed out without entries
			if ctx.Err() != nil {
				return nil
			}
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			return &RedisError{"xread", err}
		}

		for _, stream := range res {
			for _, entry := range stream.Messages {
				s.lastID = entry.ID
				if err := c.Enqueue(Message{ID: entry.ID, Values: entry.Values}); err != nil {
					return err
				}
			}
		}
		return nil
	}
}

func (s *source) Cancel(context.Context, error) error {
	return nil
}
