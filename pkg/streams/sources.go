package streams

import (
	"context"
	"sync/atomic"
)

// Source is a pull-based iterator that can back a ReadableStream.
type Source[T any] interface {
	// Next returns the next element and true, or the zero value and false
	// once the source is exhausted.
	Next(ctx context.Context) (T, bool, error)

	// Close releases the source's resources.
	Close() error
}

// FromSource creates a ReadableStream that pulls one element from src each
// time it wants more data. Exhaustion closes the stream and src; a Next
// error errors it. Cancelling the stream closes src.
func FromSource[T any](src Source[T], config Config[T]) (*ReadableStream[T], error) {
	return NewReadableStreamWithConfig[T](&iteratorSource[T]{src: src}, config)
}

// FromSlice creates a ReadableStream of the elements of slice.
func FromSlice[T any](slice []T) *ReadableStream[T] {
	return mustFromSource[T](&sliceSource[T]{slice: slice})
}

// FromChannel creates a ReadableStream of the values received from ch. The
// stream closes when ch is closed.
func FromChannel[T any](ch <-chan T) *ReadableStream[T] {
	return mustFromSource[T](&channelSource[T]{ch: ch})
}

// Generate creates an endless ReadableStream of generator's results. Only
// as many values are generated as the consumer has room for.
func Generate[T any](generator func() T) *ReadableStream[T] {
	return mustFromSource[T](&generatorSource[T]{generator: generator})
}

// Empty creates a ReadableStream that is already closed.
func Empty[T any]() *ReadableStream[T] {
	return mustFromSource[T](&emptySource[T]{})
}

// mustFromSource builds a stream with DefaultConfig, which cannot fail
// validation, over a source whose Start is a no-op.
func mustFromSource[T any](src Source[T]) *ReadableStream[T] {
	s, err := FromSource(src, DefaultConfig[T]())
	if err != nil {
		panic(err)
	}
	return s
}

// iteratorSource drives a Source from an UnderlyingSource's Pull.
type iteratorSource[T any] struct {
	src    Source[T]
	closed int32
}

func (s *iteratorSource[T]) Start(_ context.Context, _ ReadableController[T]) error {
	return nil
}

func (s *iteratorSource[T]) Pull(ctx context.Context, controller ReadableController[T]) error {
	value, ok, err := s.src.Next(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// the stream ended while Next was waiting
			return nil
		}
		_ = s.close()
		return err
	}
	if !ok {
		_ = controller.Close()
		return s.close()
	}
	return controller.Enqueue(value)
}

func (s *iteratorSource[T]) Cancel(_ context.Context, _ error) error {
	return s.close()
}

func (s *iteratorSource[T]) close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	return s.src.Close()
}

// sliceSource implements Source for slices.
type sliceSource[T any] struct {
	slice []T
	index int64
}

func (s *sliceSource[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T

	currentIndex := atomic.AddInt64(&s.index, 1) - 1
	if currentIndex >= int64(len(s.slice)) {
		return zero, false, nil
	}

	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	default:
		return s.slice[currentIndex], true, nil
	}
}

func (s *sliceSource[T]) Close() error {
	return nil
}

// channelSource implements Source for channels.
type channelSource[T any] struct {
	ch <-chan T
}

func (s *channelSource[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T

	select {
	case value, ok := <-s.ch:
		if !ok {
			return zero, false, nil
		}
		return value, true, nil
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}

func (s *channelSource[T]) Close() error {
	return nil
}

// generatorSource implements Source for generator functions.
type generatorSource[T any] struct {
	generator func() T
}

func (s *generatorSource[T]) Next(ctx context.Context) (T, bool, error) {
	select {
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	default:
		return s.generator(), true, nil
	}
}

func (s *generatorSource[T]) Close() error {
	return nil
}

// emptySource implements Source for empty streams.
type emptySource[T any] struct{}

func (s *emptySource[T]) Next(_ context.Context) (T, bool, error) {
	var zero T
	return zero, false, nil
}

func (s *emptySource[T]) Close() error {
	return nil
}
