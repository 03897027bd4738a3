package streams

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/vnykmshr/webstreams/internal/testutil"
)

func TestTransformStream_IdentityRoundTrip(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	sink := NewCollectSink[string]()
	dest, err := NewWritableStream[string](sink)
	testutil.AssertNoError(t, err)

	out, err := PipeThrough[string, string](ctx, FromSlice([]string{"a", "b", "c"}), NewIdentityTransformStream[string](), PipeOptions{})
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, out.PipeTo(ctx, dest, PipeOptions{}))
	testutil.AssertSliceEqual(t, sink.Items(), []string{"a", "b", "c"})
	testutil.AssertEqual(t, sink.Closed(), true)
}

func TestTransformStream_ManyOutputsAndFlush(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	ts, err := NewTransformStream[string, string](TransformerFuncs[string, string]{
		TransformFunc: func(_ context.Context, chunk string, c TransformController[string]) error {
			for _, part := range strings.Split(chunk, ",") {
				if part == "" {
					continue
				}
				if err := c.Enqueue(part); err != nil {
					return err
				}
			}
			return nil
		},
		FlushFunc: func(_ context.Context, c TransformController[string]) error {
			return c.Enqueue("end")
		},
	})
	testutil.AssertNoError(t, err)

	out, err := PipeThrough[string, string](ctx, FromSlice([]string{"a,b", "", "c"}), ts, PipeOptions{})
	testutil.AssertNoError(t, err)

	got, err := ReadAll(ctx, out)
	testutil.AssertNoError(t, err)
	testutil.AssertSliceEqual(t, got, []string{"a", "b", "c", "end"})
}

func TestTransformStream_BackpressureHoldsWrites(t *testing.T) {
	ts := NewIdentityTransformStream[int]()

	w, err := ts.Writable().GetWriter()
	testutil.AssertNoError(t, err)
	r, err := ts.Readable().GetReader()
	testutil.AssertNoError(t, err)

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	written := make(chan error, 1)
	go func() { written <- w.Write(ctx, 1) }()
	testutil.AssertBlocked(t, written, 30*time.Millisecond)

	testutil.AssertEqual(t, mustRead(t, r).Value, 1)
	testutil.AssertNoError(t, testutil.Receive(t, written))

	closed := make(chan error, 1)
	go func() { closed <- w.Close(ctx) }()
	testutil.AssertEqual(t, mustRead(t, r).Done, true)
	testutil.AssertNoError(t, testutil.Receive(t, closed))
}

func TestTransformStream_TransformErrorErrorsBothSides(t *testing.T) {
	ts, err := NewTransformStream[int, int](TransformerFuncs[int, int]{
		TransformFunc: func(context.Context, int, TransformController[int]) error {
			return errBoom
		},
	})
	testutil.AssertNoError(t, err)

	w, err := ts.Writable().GetWriter()
	testutil.AssertNoError(t, err)
	r, err := ts.Readable().GetReader()
	testutil.AssertNoError(t, err)

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	// a pending read lifts backpressure so the transform runs
	readErr := make(chan error, 1)
	go func() {
		_, err := r.Read(ctx)
		readErr <- err
	}()

	testutil.AssertErrorIs(t, w.Write(ctx, 1), errBoom)
	testutil.AssertErrorIs(t, testutil.Receive(t, readErr), errBoom)
	testutil.AssertEqual(t, ts.Readable().State(), ReadableStateErrored)
	testutil.AssertEqual(t, ts.Writable().State(), WritableStateErrored)
}

func TestTransformStream_FlushErrorErrorsBothSides(t *testing.T) {
	ts, err := NewTransformStream[int, int](TransformerFuncs[int, int]{
		FlushFunc: func(context.Context, TransformController[int]) error {
			return errBoom
		},
	})
	testutil.AssertNoError(t, err)

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	testutil.AssertErrorIs(t, ts.Writable().Close(ctx), errBoom)
	r, err := ts.Readable().GetReader()
	testutil.AssertNoError(t, err)
	_, err = r.Read(ctx)
	testutil.AssertErrorIs(t, err, errBoom)
}

func TestTransformStream_Terminate(t *testing.T) {
	ts, err := NewTransformStream[int, int](TransformerFuncs[int, int]{
		TransformFunc: func(_ context.Context, chunk int, c TransformController[int]) error {
			if err := c.Enqueue(chunk); err != nil {
				return err
			}
			c.Terminate()
			return nil
		},
	})
	testutil.AssertNoError(t, err)

	w, err := ts.Writable().GetWriter()
	testutil.AssertNoError(t, err)
	r, err := ts.Readable().GetReader()
	testutil.AssertNoError(t, err)

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	w.WriteAsync(7)
	testutil.AssertEqual(t, mustRead(t, r).Value, 7)
	testutil.AssertEqual(t, mustRead(t, r).Done, true)
	testutil.AssertErrorIs(t, w.Closed(ctx), ErrTransformTerminated)
	testutil.AssertErrorIs(t, w.Write(ctx, 8), ErrTransformTerminated)
}

func TestTransformStream_ReadableCancelErrorsWritable(t *testing.T) {
	ts := NewIdentityTransformStream[int]()

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	w, err := ts.Writable().GetWriter()
	testutil.AssertNoError(t, err)

	// this write waits on readable backpressure when the cancel lands
	pending := w.WriteAsync(1)
	testutil.AssertNoError(t, ts.Readable().Cancel(ctx, errBoom))

	testutil.AssertErrorIs(t, testutil.Receive(t, pending), errBoom)
	testutil.AssertErrorIs(t, w.Closed(ctx), errBoom)
}

func TestTransformStream_WritableAbortErrorsReadable(t *testing.T) {
	ts := NewIdentityTransformStream[int]()

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	testutil.AssertNoError(t, ts.Writable().Abort(ctx, errBoom))

	r, err := ts.Readable().GetReader()
	testutil.AssertNoError(t, err)
	_, err = r.Read(ctx)
	testutil.AssertErrorIs(t, err, errBoom)
}

func TestTransformStream_StartError(t *testing.T) {
	_, err := NewTransformStream[int, int](TransformerFuncs[int, int]{
		StartFunc: func(context.Context, TransformController[int]) error {
			return errBoom
		},
	})
	testutil.AssertErrorIs(t, err, errBoom)
}
