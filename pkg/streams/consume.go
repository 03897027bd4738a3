package streams

import (
	"context"
	"sync"
)

// ReadAll reads s to completion and returns every chunk in order.
func ReadAll[T any](ctx context.Context, s *ReadableStream[T]) ([]T, error) {
	var out []T
	err := ForEach(ctx, s, func(chunk T) error {
		out = append(out, chunk)
		return nil
	})
	return out, err
}

// ForEach calls action for every chunk of s until the stream closes. When
// action fails the stream is cancelled with that error, which is returned.
// When ctx ends the stream is cancelled with context.Cause(ctx).
func ForEach[T any](ctx context.Context, s *ReadableStream[T], action func(T) error) error {
	reader, err := s.GetReader()
	if err != nil {
		return err
	}
	defer reader.ReleaseLock()

	stop := func() error {
		cause := context.Cause(ctx)
		_ = reader.Cancel(context.WithoutCancel(ctx), cause)
		return cause
	}

	for {
		if ctx.Err() != nil {
			return stop()
		}
		result, err := reader.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return stop()
			}
			return err
		}
		if result.Done {
			return nil
		}
		if err := action(result.Value); err != nil {
			_ = reader.Cancel(ctx, err)
			return err
		}
	}
}

// Reduce folds every chunk of s into an accumulator starting at identity.
func Reduce[T, A any](ctx context.Context, s *ReadableStream[T], identity A, accumulator func(A, T) A) (A, error) {
	acc := identity
	err := ForEach(ctx, s, func(chunk T) error {
		acc = accumulator(acc, chunk)
		return nil
	})
	return acc, err
}

// CollectSink is an UnderlyingSink that records every chunk it receives.
type CollectSink[T any] struct {
	mu          sync.Mutex
	items       []T
	closed      bool
	abortReason error
}

// NewCollectSink creates an empty CollectSink.
func NewCollectSink[T any]() *CollectSink[T] {
	return &CollectSink[T]{}
}

func (c *CollectSink[T]) Start(_ context.Context, _ WritableController) error {
	return nil
}

func (c *CollectSink[T]) Write(_ context.Context, chunk T, _ WritableController) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, chunk)
	return nil
}

func (c *CollectSink[T]) Close(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *CollectSink[T]) Abort(_ context.Context, reason error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abortReason = reason
	return nil
}

// Items returns a copy of the chunks written so far.
func (c *CollectSink[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T(nil), c.items...)
}

// Closed reports whether the sink was closed.
func (c *CollectSink[T]) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// AbortReason returns the reason the sink was aborted with, if any.
func (c *CollectSink[T]) AbortReason() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.abortReason
}

// FuncSink returns an UnderlyingSink that calls fn for every chunk.
func FuncSink[T any](fn func(ctx context.Context, chunk T) error) UnderlyingSink[T] {
	return SinkFuncs[T]{
		WriteFunc: func(ctx context.Context, chunk T, _ WritableController) error {
			return fn(ctx, chunk)
		},
	}
}
