package streams

import (
	"context"
	"errors"
	"testing"

	"github.com/vnykmshr/webstreams/internal/testutil"
)

var errBoom = errors.New("boom")

func pendingReads[T any](s *ReadableStream[T]) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.readRequests)
}

func mustRead[T any](t *testing.T, r *Reader[T]) ReadResult[T] {
	t.Helper()
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()
	res, err := r.Read(ctx)
	testutil.AssertNoError(t, err)
	return res
}

// startedSource returns a source that hands its controller to the test.
func startedSource[T any](controller *ReadableController[T]) SourceFuncs[T] {
	return SourceFuncs[T]{
		StartFunc: func(_ context.Context, c ReadableController[T]) error {
			*controller = c
			return nil
		},
	}
}

// gate blocks callers until opened.
type gate chan struct{}

func (g gate) open() { close(g) }

func (g gate) wait(ctx context.Context) error {
	select {
	case <-g:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}
