package transforms

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"


	"github.com/vnykmshr/webstreams/internal/testutil"
	wserrors "github.com/vnykmshr/webstreams/pkg/common/errors"
	"github.com/vnykmshr/webstreams/pkg/streams"
)

var errBoom = errors.New("boom")

func run[I, O any](t *testing.T, input []I, pair streams.ReadableWritablePair[I, O]) ([]O, error) {
	t.Helper()
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	out, err := streams.PipeThrough[I, O](ctx, streams.FromSlice(input), pair, streams.PipeOptions{})
	testutil.AssertNoError(t, err)
	return streams.ReadAll(ctx, out)
}

func TestMap(t *testing.T) {
	got, err := run[int, string](t, []int{1, 2, 3}, Map(strconv.Itoa))
	testutil.AssertNoError(t, err)
	testutil.AssertSliceEqual(t, got, []string{"1", "2", "3"})
}

func TestMapErr(t *testing.T) {
	got, err := run[int, int](t, []int{1, 2, 3}, MapErr(func(_ context.Context, n int) (int, error) {
		if n == 2 {
			return 0, errBoom
		}
		return n * 10, nil
	}))
	testutil.AssertErrorIs(t, err, errBoom)
	testutil.AssertSliceEqual(t, got, []int{10})
}

func TestFilter(t *testing.T) {
	got, err := run[int, int](t, []int{1, 2, 3, 4, 5, 6}, Filter(func(n int) bool { return n%2 == 0 }))
	testutil.AssertNoError(t, err)
	testutil.AssertSliceEqual(t, got, []int{2, 4, 6})
}

func TestFlatMap(t *testing.T) {
	got, err := run[int, int](t, []int{1, 2, 3}, FlatMap(func(n int) []int {
		out := make([]int, n)
		for i := range out {
			out[i] = n
		}
		return out
	}))
	testutil.AssertNoError(t, err)
	testutil.AssertSliceEqual(t, got, []int{1, 2, 2, 3, 3, 3})
}

func TestBatch(t *testing.T) {
	b, err := Batch[int](2)
	testutil.AssertNoError(t, err)

	got, err := run[int, []int](t, []int{1, 2, 3, 4, 5}, b)
	testutil.AssertNoError(t, err)
	testutil.AssertDeepEqual(t, got, [][]int{{1, 2}, {3, 4}, {5}})

	_, err = Batch[int](0)
	testutil.AssertEqual(t, wserrors.IsValidationError(err), true)
}

func TestThrottle(t *testing.T) {
	th, err := Throttle[int](100, 1)
	testutil.AssertNoError(t, err)

	start := time.Now()
	got, err := run[int, int](t, []int{1, 2, 3, 4, 5}, th)
	testutil.AssertNoError(t, err)
	testutil.AssertSliceEqual(t, got, []int{1, 2, 3, 4, 5})
	// the first chunk uses the burst, the other four wait 10ms each
	if elapsed := time.Since(start); elapsed < 35*time.Millisecond {
		t.Errorf("throttled run took %v, want at least 35ms", elapsed)
	}
}

func TestThrottle_InvalidArguments(t *testing.T) {
	_, err := Throttle[int](0, 1)
	testutil.AssertEqual(t, wserrors.IsValidationError(err), true)

	_, err = Throttle[int](10, 0)
	testutil.AssertEqual(t, wserrors.IsValidationError(err), true)
}

type countingWaiter struct {
	calls int32
	err   error
}

func (w *countingWaiter) Wait(context.Context) error {
	atomic.AddInt32(&w.calls, 1)
	return w.err
}

func TestThrottleWith(t *testing.T) {
	w := &countingWaiter{}
	got, err := run[string, string](t, []string{"a", "b"}, ThrottleWith[string](w))
	testutil.AssertNoError(t, err)
	testutil.AssertSliceEqual(t, got, []string{"a", "b"})
	testutil.AssertEqual(t, atomic.LoadInt32(&w.calls), int32(2))

	failing := &countingWaiter{err: errBoom}
	_, err = run[string, string](t, []string{"a"}, ThrottleWith[string](failing))
	testutil.AssertErrorIs(t, err, errBoom)
}

func TestSplitLines(t *testing.T) {
	chunks := [][]byte{[]byte("ab\ncd"), []byte("\r\nef\n\ng"), []byte("h")}
	got, err := run[[]byte, string](t, chunks, SplitLines())
	testutil.AssertNoError(t, err)
	testutil.AssertSliceEqual(t, got, []string{"ab", "cd", "ef", "", "gh"})
}

func TestJoinLines(t *testing.T) {
	got, err := run[string, []byte](t, []string{"x", "", "yz"}, JoinLines())
	testutil.AssertNoError(t, err)
	testutil.AssertDeepEqual(t, got, [][]byte{[]byte("x\n"), []byte("\n"), []byte("yz\n")})
}

func TestLinesRoundTrip(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	split, err := streams.PipeThrough[[]byte, string](ctx,
		streams.FromSlice([][]byte{[]byte("one\ntw"), []byte("o\n")}), SplitLines(), streams.PipeOptions{})
	testutil.AssertNoError(t, err)
	joined, err := streams.PipeThrough[string, []byte](ctx, split, JoinLines(), streams.PipeOptions{})
	testutil.AssertNoError(t, err)

	chunks, err := streams.ReadAll(ctx, joined)
	testutil.AssertNoError(t, err)

	var all []byte
	for _, c := range chunks {
		all = append(all, c...)
	}
	testutil.AssertEqual(t, string(all), "one\ntwo\n")
}
