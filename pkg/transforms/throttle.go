package transforms

import (
	"context"

	"golang.org/x/time/rate"

	wscontext "github.com/vnykmshr/webstreams/pkg/common/context"
	wserrors "github.com/vnykmshr/webstreams/pkg/common/errors"
	"github.com/vnykmshr/webstreams/pkg/common/validation"
	"github.com/vnykmshr/webstreams/pkg/streams"
)

// Waiter blocks until the caller may proceed. *rate.Limiter implements it.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Throttle passes chunks through at no more than limit per second, allowing
// bursts of up to burst chunks.
func Throttle[T any](limit float64, burst int) (*streams.TransformStream[T, T], error) {
	if err := validation.ValidatePositive("transforms", "burst", burst); err != nil {
		return nil, err
	}
	if !(limit > 0) {
		return nil, wserrors.NewValidationError("transforms", "limit", limit, "must be positive").
			WithHint("use math.Inf(1) to disable throttling")
	}
	return ThrottleWith[T](rate.NewLimiter(rate.Limit(limit), burst)), nil
}

// ThrottleWith passes each chunk through once waiter allows it. A pending
// wait ends when the stream is aborted or cancelled.
func ThrottleWith[T any](waiter Waiter) *streams.TransformStream[T, T] {
	return newStream("throttle", streams.TransformerFuncs[T, T]{
		TransformFunc: func(ctx context.Context, chunk T, c streams.TransformController[T]) error {
			if err := waiter.Wait(ctx); err != nil {
				if reason := wscontext.Reason(ctx); reason != nil {
					return reason
				}
				return err
			}
			return c.Enqueue(chunk)
		},
	})
}
