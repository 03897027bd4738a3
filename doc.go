/*
Package webstreams provides readable, writable and transform streams with
backpressure, and the pipes that connect them.

Core (pkg/streams):
  - ReadableStream: pull-based source with a queue bounded by a high water mark
  - WritableStream: ordered sink writes with ready signalling
  - TransformStream: writable input mapped onto readable output
  - PipeTo, PipeThrough, Tee: connect and fan out streams

Building blocks:
  - transforms: Map, Filter, FlatMap, Batch, Throttle, line splitting
  - compression: gzip, deflate, deflate-raw, brotli and zstd transforms
  - streamio: adapters between streams and io.Reader / io.Writer
  - redisstream: Redis Streams sources and sinks, distributed throttling
  - schedule: cron tick streams

The webstreams command (cmd/webstreams) pipes files or stdin through these
stages from the shell.

Example usage:

	import (
		"github.com/vnykmshr/webstreams/pkg/streams"
		"github.com/vnykmshr/webstreams/pkg/transforms"
	)

	doubled, _ := streams.PipeThrough[int, int](ctx, streams.FromSlice([]int{1, 2, 3}),
		transforms.Map(func(n int) int { return n * 2 }), streams.PipeOptions{})
	values, _ := streams.ReadAll(ctx, doubled) // [2 4 6]
*/
package webstreams
