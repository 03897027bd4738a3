// Package transforms provides ready-made TransformStreams for common chunk
// operations.
//
// Every constructor returns a *streams.TransformStream that can be used with
// streams.PipeThrough or written to directly:
//
//	evens := transforms.Filter(func(n int) bool { return n%2 == 0 })
//	out, err := streams.PipeThrough[int, int](ctx, numbers, evens, streams.PipeOptions{})
//
// # Operations
//
//   - Map, Filter and FlatMap apply a function per chunk
//   - Batch groups chunks into slices of a fixed size, emitting a short final batch
//   - Throttle paces chunks with a token bucket from golang.org/x/time/rate
//   - SplitLines and JoinLines frame byte chunks as lines and back
//
// Readable sides default to a high water mark of zero, so a slow consumer
// holds back writers of the transform.
package transforms
