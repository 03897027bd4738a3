package streams

import (
	"context"
)

// Writer is the exclusive producer handle of a WritableStream.
type Writer[T any] struct {
	stream   *WritableStream[T]
	released chan struct{}
}

func (w *Writer[T]) isReleased() bool {
	select {
	case <-w.released:
		return true
	default:
		return false
	}
}

// Write queues chunk and blocks until the sink has processed it, or ctx is
// done. Under backpressure it therefore waits for earlier chunks to drain.
// A chunk whose wait was abandoned through ctx stays queued.
func (w *Writer[T]) Write(ctx context.Context, chunk T) error {
	done := w.WriteAsync(chunk)
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WriteAsync queues chunk without waiting. The returned channel yields the
// sink's result for the chunk exactly once.
func (w *Writer[T]) WriteAsync(chunk T) <-chan error {
	if w.isReleased() {
		done := make(chan error, 1)
		done <- ErrWriterReleased
		return done
	}
	return w.stream.writeAsync(chunk)
}

// Ready blocks while the stream signals backpressure. It returns the stored
// reason once the stream is erroring or errored.
func (w *Writer[T]) Ready(ctx context.Context) error {
	s := w.stream

	s.mu.Lock()
	if w.isReleased() {
		s.mu.Unlock()
		return ErrWriterReleased
	}
	if s.state == stateErroring || s.state == stateErrored {
		err := s.storedErr
		s.mu.Unlock()
		return err
	}
	ready := s.ready
	s.mu.Unlock()

	select {
	case <-ready:
	case <-w.released:
		return ErrWriterReleased
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.erroringErr()
}

// DesiredSize returns the high water mark minus the queued size. It returns
// the stored reason once the stream errored and 0 once it closed.
func (w *Writer[T]) DesiredSize() (float64, error) {
	if w.isReleased() {
		return 0, ErrWriterReleased
	}
	s := w.stream
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state == stateErroring || s.state == stateErrored:
		return 0, s.storedErr
	case s.state == stateClosed:
		return 0, nil
	}
	return s.desiredSizeLocked(), nil
}

// Close closes the stream after every queued write drained, then closes
// the sink. It fails with ErrStreamClosing when Close was already requested.
func (w *Writer[T]) Close(ctx context.Context) error {
	if w.isReleased() {
		return ErrWriterReleased
	}
	return w.stream.close(ctx)
}

// Abort discards queued writes, errors the stream with reason and runs the
// sink's Abort. A nil reason becomes ErrAborted.
func (w *Writer[T]) Abort(ctx context.Context, reason error) error {
	if w.isReleased() {
		return ErrWriterReleased
	}
	return w.stream.abort(ctx, reason)
}

// Closed blocks until the stream closed (nil) or errored (the stored reason).
func (w *Writer[T]) Closed(ctx context.Context) error {
	select {
	case <-w.released:
		return ErrWriterReleased
	default:
	}

	select {
	case <-w.stream.done:
	case <-w.released:
		return ErrWriterReleased
	case <-ctx.Done():
		return ctx.Err()
	}
	return w.stream.erroringErr()
}

// ReleaseLock unlocks the stream. Queued writes still reach the sink.
func (w *Writer[T]) ReleaseLock() {
	s := w.stream
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.isReleased() {
		return
	}
	close(w.released)
	s.writer = nil
	_ = s.lock.transition(unlocked)
}
