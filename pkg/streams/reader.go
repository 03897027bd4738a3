package streams

import (
	"context"
)

// Reader is the exclusive consumer handle of a ReadableStream.
type Reader[T any] struct {
	stream   *ReadableStream[T]
	released chan struct{}

	// guarded by stream.mu
	isReleased bool
}

// Read returns the next chunk. It blocks until a chunk is enqueued, the
// stream closes (Done) or errors (the stored reason), or ctx is done.
// Concurrent reads are served in call order.
//
// When ctx ends after a chunk was already handed to this read, the chunk is
// returned rather than dropped.
func (r *Reader[T]) Read(ctx context.Context) (ReadResult[T], error) {
	s := r.stream

	s.mu.Lock()
	if r.isReleased {
		s.mu.Unlock()
		return ReadResult[T]{}, ErrReaderReleased
	}
	req, result, err := s.readLocked()
	s.mu.Unlock()

	if req == nil {
		return result, err
	}

	select {
	case out := <-req.ch:
		return out.result, out.err
	case <-ctx.Done():
		s.mu.Lock()
		removed := s.removeReadRequestLocked(req)
		s.mu.Unlock()
		if removed {
			return ReadResult[T]{}, ctx.Err()
		}
		out := <-req.ch
		return out.result, out.err
	}
}

// Cancel cancels the stream through this reader. See ReadableStream.cancel.
func (r *Reader[T]) Cancel(ctx context.Context, reason error) error {
	r.stream.mu.Lock()
	released := r.isReleased
	r.stream.mu.Unlock()
	if released {
		return ErrReaderReleased
	}
	return r.stream.cancel(ctx, reason)
}

// Closed blocks until the stream closes (nil) or errors (the stored reason).
// It returns ErrReaderReleased once the lock is released.
func (r *Reader[T]) Closed(ctx context.Context) error {
	select {
	case <-r.released:
		return ErrReaderReleased
	default:
	}

	select {
	case <-r.stream.done:
	case <-r.released:
		return ErrReaderReleased
	case <-ctx.Done():
		return ctx.Err()
	}

	r.stream.mu.Lock()
	defer r.stream.mu.Unlock()
	return r.stream.storedErr
}

// ReleaseLock unlocks the stream. Reads still waiting fail with
// ErrReaderReleased. Calling it more than once is a no-op.
func (r *Reader[T]) ReleaseLock() {
	s := r.stream
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.isReleased {
		return
	}
	r.isReleased = true
	close(r.released)

	for _, req := range s.readRequests {
		req.ch <- readOutcome[T]{err: ErrReaderReleased}
	}
	s.readRequests = nil
	_ = s.lock.transition(unlocked)
}
