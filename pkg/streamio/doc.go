// Package streamio adapts io.Reader and io.Writer to byte streams.
//
// FromReader turns a reader into a ReadableStream that reads one chunk per
// pull, so nothing is read while the consumer is applying backpressure.
// ToWriter turns a writer into a WritableStream whose sink writes every
// chunk in full, flushes writers with a Flush() error method on close and
// closes io.Closers on close and abort.
//
//	src, _ := streamio.FromReader(os.Stdin)
//	dst, _ := streamio.ToWriter(bufio.NewWriter(os.Stdout))
//	err := src.PipeTo(ctx, dst, streams.PipeOptions{})
package streamio
