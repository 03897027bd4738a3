package transforms

import (
	"context"
	"fmt"

	"github.com/vnykmshr/webstreams/pkg/common/validation"
	"github.com/vnykmshr/webstreams/pkg/streams"
)

func newStream[I, O any](name string, transformer streams.Transformer[I, O]) *streams.TransformStream[I, O] {
	config := streams.DefaultTransformConfig[I, O]()
	config.Name = name
	// only a failing Start or an invalid strategy can fail construction
	t, err := streams.NewTransformStreamWithConfig(transformer, config)
	if err != nil {
		panic(fmt.Sprintf("transforms: %s: %v", name, err))
	}
	return t
}

// Map emits fn(chunk) for every chunk.
func Map[I, O any](fn func(I) O) *streams.TransformStream[I, O] {
	return newStream("map", streams.TransformerFuncs[I, O]{
		TransformFunc: func(_ context.Context, chunk I, c streams.TransformController[O]) error {
			return c.Enqueue(fn(chunk))
		},
	})
}

// MapErr emits fn(chunk) and errors both sides with the first error fn returns.
func MapErr[I, O any](fn func(context.Context, I) (O, error)) *streams.TransformStream[I, O] {
	return newStream("map", streams.TransformerFuncs[I, O]{
		TransformFunc: func(ctx context.Context, chunk I, c streams.TransformController[O]) error {
			out, err := fn(ctx, chunk)
			if err != nil {
				return err
			}
			return c.Enqueue(out)
		},
	})
}

// Filter emits only the chunks for which predicate returns true.
func Filter[T any](predicate func(T) bool) *streams.TransformStream[T, T] {
	return newStream("filter", streams.TransformerFuncs[T, T]{
		TransformFunc: func(_ context.Context, chunk T, c streams.TransformController[T]) error {
			if !predicate(chunk) {
				return nil
			}
			return c.Enqueue(chunk)
		},
	})
}

// FlatMap emits every element of fn(chunk) in order.
func FlatMap[I, O any](fn func(I) []O) *streams.TransformStream[I, O] {
	return newStream("flatmap", streams.TransformerFuncs[I, O]{
		TransformFunc: func(_ context.Context, chunk I, c streams.TransformController[O]) error {
			for _, out := range fn(chunk) {
				if err := c.Enqueue(out); err != nil {
					return err
				}
			}
			return nil
		},
	})
}

// batcher collects chunks until it holds size of them.
type batcher[T any] struct {
	size    int
	pending []T
}

func (b *batcher[T]) Start(context.Context, streams.TransformController[[]T]) error {
	return nil
}

func (b *batcher[T]) Transform(_ context.Context, chunk T, c streams.TransformController[[]T]) error {
	b.pending = append(b.pending, chunk)
	if len(b.pending) < b.size {
		return nil
	}
	batch := b.pending
	b.pending = make([]T, 0, b.size)
	return c.Enqueue(batch)
}

func (b *batcher[T]) Flush(_ context.Context, c streams.TransformController[[]T]) error {
	if len(b.pending) == 0 {
		return nil
	}
	batch := b.pending
	b.pending = nil
	return c.Enqueue(batch)
}

// Batch groups chunks into slices of size. A partial batch is emitted when
// the writable side closes.
func Batch[T any](size int) (*streams.TransformStream[T, []T], error) {
	if err := validation.ValidatePositive("transforms", "size", size); err != nil {
		return nil, err
	}
	return newStream[T, []T]("batch", &batcher[T]{size: size, pending: make([]T, 0, size)}), nil
}
