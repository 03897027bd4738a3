package streams

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vnykmshr/webstreams/internal/testutil"
	"github.com/vnykmshr/webstreams/pkg/metrics"
)

// countingSource enqueues increasing integers and records cancellation.
type countingSource struct {
	pulls     int32
	failAfter int32
	cancelled *testutil.CallbackTracker
}

func newCountingSource() *countingSource {
	return &countingSource{cancelled: testutil.NewCallbackTracker()}
}

func (c *countingSource) Start(context.Context, ReadableController[int]) error { return nil }

func (c *countingSource) Pull(_ context.Context, ctrl ReadableController[int]) error {
	n := atomic.AddInt32(&c.pulls, 1)
	if c.failAfter > 0 && n > c.failAfter {
		return errBoom
	}
	return ctrl.Enqueue(int(n))
}

func (c *countingSource) Cancel(_ context.Context, reason error) error {
	c.cancelled.Mark(reason)
	return nil
}

func TestPipeTo_SourceCloseClosesDest(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	sink := NewCollectSink[int]()
	dest, err := NewWritableStream[int](sink)
	testutil.AssertNoError(t, err)

	src := FromSlice([]int{1, 2, 3, 4, 5})
	testutil.AssertNoError(t, src.PipeTo(ctx, dest, PipeOptions{}))

	testutil.AssertSliceEqual(t, sink.Items(), []int{1, 2, 3, 4, 5})
	testutil.AssertEqual(t, sink.Closed(), true)
	testutil.AssertEqual(t, dest.State(), WritableStateClosed)
	testutil.AssertEqual(t, src.Locked(), false)
	testutil.AssertEqual(t, dest.Locked(), false)
	testutil.AssertEqual(t, src.Disturbed(), true)
}

func TestPipeTo_PreventClose(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	sink := NewCollectSink[int]()
	dest, err := NewWritableStream[int](sink)
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, FromSlice([]int{1, 2}).PipeTo(ctx, dest, PipeOptions{PreventClose: true}))
	testutil.AssertEqual(t, dest.State(), WritableStateWritable)

	// a second pipe can continue into the same destination
	testutil.AssertNoError(t, FromSlice([]int{3}).PipeTo(ctx, dest, PipeOptions{}))
	testutil.AssertSliceEqual(t, sink.Items(), []int{1, 2, 3})
}

func TestPipeTo_SourceErrorAbortsDest(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	src := newCountingSource()
	src.failAfter = 3
	s, err := NewReadableStream[int](src)
	testutil.AssertNoError(t, err)

	sink := NewCollectSink[int]()
	dest, err := NewWritableStream[int](sink)
	testutil.AssertNoError(t, err)

	testutil.AssertErrorIs(t, s.PipeTo(ctx, dest, PipeOptions{}), errBoom)
	testutil.AssertErrorIs(t, sink.AbortReason(), errBoom)
	testutil.AssertEqual(t, dest.State(), WritableStateErrored)
	src.cancelled.AssertNotCalled(t)
}

func TestPipeTo_SourceErrorWithPreventAbort(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	src := newCountingSource()
	src.failAfter = 1
	s, err := NewReadableStream[int](src)
	testutil.AssertNoError(t, err)

	sink := NewCollectSink[int]()
	dest, err := NewWritableStream[int](sink)
	testutil.AssertNoError(t, err)

	testutil.AssertErrorIs(t, s.PipeTo(ctx, dest, PipeOptions{PreventAbort: true}), errBoom)
	testutil.AssertEqual(t, dest.State(), WritableStateWritable)
	testutil.AssertNoError(t, sink.AbortReason())
	testutil.AssertNoError(t, dest.Close(ctx))
}

func TestPipeTo_DestErrorCancelsSource(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	src := newCountingSource()
	s, err := NewReadableStream[int](src)
	testutil.AssertNoError(t, err)

	var writes int32
	dest, err := NewWritableStream[int](SinkFuncs[int]{
		WriteFunc: func(context.Context, int, WritableController) error {
			if atomic.AddInt32(&writes, 1) == 2 {
				return errBoom
			}
			return nil
		},
	})
	testutil.AssertNoError(t, err)

	testutil.AssertErrorIs(t, s.PipeTo(ctx, dest, PipeOptions{}), errBoom)
	src.cancelled.AssertCallCount(t, 1)
	testutil.AssertEqual(t, src.cancelled.Value(), interface{}(errBoom))
	testutil.AssertEqual(t, s.State(), ReadableStateClosed)
}

func TestPipeTo_DestErrorWithPreventCancel(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	src := newCountingSource()
	s, err := NewReadableStream[int](src)
	testutil.AssertNoError(t, err)

	dest, err := NewWritableStream[int](SinkFuncs[int]{
		WriteFunc: func(context.Context, int, WritableController) error {
			return errBoom
		},
	})
	testutil.AssertNoError(t, err)

	testutil.AssertErrorIs(t, s.PipeTo(ctx, dest, PipeOptions{PreventCancel: true}), errBoom)

	testutil.AssertEqual(t, s.State(), ReadableStateReadable)
	testutil.AssertEqual(t, s.Locked(), false)
	src.cancelled.AssertNotCalled(t)

	testutil.AssertNoError(t, s.Cancel(ctx, nil))
}

func TestPipeTo_DestClosedAtStart(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	dest, err := NewWritableStream[int](NewCollectSink[int]())
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, dest.Close(ctx))

	src := newCountingSource()
	s, err := NewReadableStream[int](src)
	testutil.AssertNoError(t, err)

	testutil.AssertErrorIs(t, s.PipeTo(ctx, dest, PipeOptions{}), ErrPipeDestinationClosed)
	src.cancelled.AssertCallCount(t, 1)
	testutil.AssertErrorIs(t, src.cancelled.Value().(error), ErrPipeDestinationClosed)

	s2, err := NewReadableStream[int](newCountingSource())
	testutil.AssertNoError(t, err)
	testutil.AssertErrorIs(t, s2.PipeTo(ctx, dest, PipeOptions{PreventCancel: true}), ErrPipeDestinationClosed)
	testutil.AssertEqual(t, s2.State(), ReadableStateReadable)
	testutil.AssertNoError(t, s2.Cancel(ctx, nil))
}

func TestPipeTo_ContextAbort(t *testing.T) {
	src := newCountingSource()
	s, err := NewReadableStream[int](src)
	testutil.AssertNoError(t, err)

	sink := NewCollectSink[int]()
	dest, err := NewWritableStream[int](sink)
	testutil.AssertNoError(t, err)

	stop := errors.New("stop requested")
	ctx, cancel := context.WithCancelCause(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel(stop)
	}()

	testutil.AssertErrorIs(t, s.PipeTo(ctx, dest, PipeOptions{}), stop)
	testutil.AssertEqual(t, src.cancelled.Value(), interface{}(stop))
	testutil.AssertErrorIs(t, sink.AbortReason(), stop)
	testutil.AssertEqual(t, s.State(), ReadableStateClosed)
	testutil.AssertEqual(t, dest.State(), WritableStateErrored)
}

func TestPipeTo_ContextAbortWithPreventFlags(t *testing.T) {
	src := newCountingSource()
	s, err := NewReadableStream[int](src)
	testutil.AssertNoError(t, err)

	sink := NewCollectSink[int]()
	dest, err := NewWritableStream[int](sink)
	testutil.AssertNoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = s.PipeTo(ctx, dest, PipeOptions{PreventAbort: true, PreventCancel: true})
	testutil.AssertErrorIs(t, err, context.Canceled)
	src.cancelled.AssertNotCalled(t)
	testutil.AssertEqual(t, dest.State(), WritableStateWritable)

	bg, stop := testutil.WithTimeout(t)
	defer stop()
	testutil.AssertNoError(t, s.Cancel(bg, nil))
	testutil.AssertNoError(t, dest.Close(bg))
}

func TestPipe_StoppedPumpMovesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// a ready writer and a queued chunk must not tempt a stopped pump
	for i := 0; i < 20; i++ {
		var c ReadableController[int]
		config := DefaultConfig[int]()
		config.Strategy = CountQueuingStrategy[int](3)
		s, err := NewReadableStreamWithConfig[int](startedSource(&c), config)
		testutil.AssertNoError(t, err)
		for n := 1; n <= 3; n++ {
			testutil.AssertNoError(t, c.Enqueue(n))
		}

		sink := NewCollectSink[int]()
		dest, err := NewWritableStream[int](sink)
		testutil.AssertNoError(t, err)

		p, err := newPipe(s, dest, PipeOptions{PreventAbort: true, PreventCancel: true})
		testutil.AssertNoError(t, err)
		p.pump(ctx)

		testutil.AssertEqual(t, p.lastWrite == nil, true)
		p.writer.ReleaseLock()
		p.reader.ReleaseLock()

		testutil.AssertNoError(t, c.Close())
		bg, stop := testutil.WithTimeout(t)
		got, err := ReadAll(bg, s)
		stop()
		testutil.AssertNoError(t, err)
		testutil.AssertSliceEqual(t, got, []int{1, 2, 3})
		testutil.AssertEqual(t, len(sink.Items()), 0)
	}
}

func TestPipeTo_Locked(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	s := FromSlice([]int{1})
	dest, err := NewWritableStream[int](nil)
	testutil.AssertNoError(t, err)

	r, err := s.GetReader()
	testutil.AssertNoError(t, err)
	testutil.AssertErrorIs(t, s.PipeTo(ctx, dest, PipeOptions{}), ErrLocked)
	r.ReleaseLock()

	w, err := dest.GetWriter()
	testutil.AssertNoError(t, err)
	testutil.AssertErrorIs(t, s.PipeTo(ctx, dest, PipeOptions{}), ErrLocked)
	testutil.AssertEqual(t, s.Locked(), false)
	w.ReleaseLock()

	testutil.AssertNoError(t, s.PipeTo(ctx, dest, PipeOptions{}))
}

func TestPipeTo_RespectsBackpressure(t *testing.T) {
	src := newCountingSource()
	s, err := NewReadableStream[int](src)
	testutil.AssertNoError(t, err)

	release := make(gate)
	dest, err := NewWritableStream[int](SinkFuncs[int]{
		WriteFunc: func(ctx context.Context, _ int, _ WritableController) error {
			return release.wait(ctx)
		},
	})
	testutil.AssertNoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.PipeTo(ctx, dest, PipeOptions{}) }()

	// one chunk in the sink, one in the writable queue at most, one in the
	// readable queue and one being pulled
	time.Sleep(50 * time.Millisecond)
	if n := atomic.LoadInt32(&src.pulls); n > 4 {
		t.Fatalf("source pulled %d times while the sink was blocked", n)
	}

	cancel()
	testutil.AssertErrorIs(t, testutil.Receive(t, done), context.Canceled)
	release.open()
}

func TestPipeTo_RecordsMetrics(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	reg := metrics.NewRegistry(prometheus.NewRegistry())
	config := DefaultConfig[int]()
	config.Name = "numbers"
	config.Metrics = reg

	s, err := FromSource[int](&sliceSource[int]{slice: []int{1, 2, 3}}, config)
	testutil.AssertNoError(t, err)
	dest, err := NewWritableStream[int](nil)
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, s.PipeTo(ctx, dest, PipeOptions{}))

	testutil.AssertEqual(t, promtest.ToFloat64(reg.PipeCompletions.WithLabelValues(pipeResultClosed)), 1.0)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.ChunksEnqueued.WithLabelValues("numbers", "readable")), 3.0)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.ChunksDelivered.WithLabelValues("numbers", "readable")), 3.0)
}
