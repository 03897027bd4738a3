// Package context holds small helpers around cancellation causes shared by
// the stream implementations.
package context

import (
	"context"
)

// WithReason returns a child of parent that is canceled with a reason.
// Calling cancel more than once keeps the first reason.
func WithReason(parent context.Context) (context.Context, func(reason error)) {
	ctx, cancel := context.WithCancelCause(parent)
	return ctx, func(reason error) {
		if reason == nil {
			reason = context.Canceled
		}
		cancel(reason)
	}
}

// Reason returns why ctx was canceled: the cause it was canceled with, or
// ctx.Err() when no cause was recorded. It returns nil while ctx is live.
func Reason(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	return ctx.Err()
}
