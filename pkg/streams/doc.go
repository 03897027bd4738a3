/*
Package streams implements readable, writable and transform streams with
backpressure, cancellation and error propagation.

Core Concepts:

A ReadableStream wraps an UnderlyingSource. The source pushes chunks through a
ReadableController; the stream buffers them in a queue sized by a
QueuingStrategy and asks the source for more (Pull) only while the queue is
below its high water mark or a read is waiting.

A WritableStream wraps an UnderlyingSink. Writes are queued and handed to the
sink strictly one at a time, in order. Once the queue reaches its high water
mark the writer's Ready blocks, which is the signal producers use to slow down.

A TransformStream joins a WritableStream to a ReadableStream through a
Transformer. Writes do not complete until the readable side has room, so
backpressure flows from the final consumer all the way to the first producer.

Readers and writers hold an exclusive lock on their stream:

	r, err := s.GetReader()
	if err != nil {
		return err // ErrLocked
	}
	defer r.ReleaseLock()

	for {
		res, err := r.Read(ctx)
		if err != nil {
			return err
		}
		if res.Done {
			break
		}
		fmt.Println(res.Value)
	}

Sources and Sinks:

	src, _ := streams.NewReadableStream[int](streams.SourceFuncs[int]{
		PullFunc: func(ctx context.Context, c streams.ReadableController[int]) error {
			return c.Enqueue(next())
		},
	})

	sink := streams.NewCollectSink[int]()
	dst, _ := streams.NewWritableStream[int](sink)

FromSlice, FromChannel, Generate and FromSource build readable streams over
iterators; ReadAll, ForEach and Reduce consume them.

Piping:

PipeTo drains a readable stream into a writable one, honouring the writer's
backpressure, and propagates termination between the two ends:

	err := src.PipeTo(ctx, dst, streams.PipeOptions{})

  - source errors: the destination is aborted with the same reason
  - destination errors: the source is cancelled with the same reason
  - source closes: the destination is closed after pending writes
  - destination already closing: the source is cancelled with ErrPipeDestinationClosed
  - ctx ends: both ends are cancelled with context.Cause(ctx)

PreventClose, PreventAbort and PreventCancel suppress the respective action.
PipeThrough starts a pipe into a TransformStream and returns its readable side.

Cancellation:

Every callback receives a context that is canceled, with the reason as its
cause, when its stream is cancelled, aborted or finished. Blocking sources and
sinks should select on it.

Observability:

Config carries a logrus.FieldLogger that receives lifecycle events at debug
level and an optional metrics.Registry for queue, backpressure and pipe metrics.
*/
package streams
