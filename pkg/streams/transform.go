package streams

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Transformer maps chunks written to a TransformStream onto chunks read from it.
//
// Transform may enqueue zero, one or many outputs per input. Flush runs once
// after the writable side closed and before the readable side closes.
type Transformer[I, O any] interface {
	Start(ctx context.Context, controller TransformController[O]) error
	Transform(ctx context.Context, chunk I, controller TransformController[O]) error
	Flush(ctx context.Context, controller TransformController[O]) error
}

// TransformerFuncs adapts plain functions to Transformer. Nil Start and
// Flush are no-ops; a nil Transform passes chunks through unchanged and
// requires I and O to be the same type.
type TransformerFuncs[I, O any] struct {
	StartFunc     func(ctx context.Context, controller TransformController[O]) error
	TransformFunc func(ctx context.Context, chunk I, controller TransformController[O]) error
	FlushFunc     func(ctx context.Context, controller TransformController[O]) error
}

func (f TransformerFuncs[I, O]) Start(ctx context.Context, controller TransformController[O]) error {
	if f.StartFunc == nil {
		return nil
	}
	return f.StartFunc(ctx, controller)
}

func (f TransformerFuncs[I, O]) Transform(ctx context.Context, chunk I, controller TransformController[O]) error {
	if f.TransformFunc != nil {
		return f.TransformFunc(ctx, chunk, controller)
	}
	out, ok := any(chunk).(O)
	if !ok {
		return fmt.Errorf("streams: identity transform cannot convert %T", chunk)
	}
	return controller.Enqueue(out)
}

func (f TransformerFuncs[I, O]) Flush(ctx context.Context, controller TransformController[O]) error {
	if f.FlushFunc == nil {
		return nil
	}
	return f.FlushFunc(ctx, controller)
}

// TransformController is the handle a Transformer uses to emit output.
type TransformController[O any] interface {
	// Enqueue emits chunk on the readable side.
	Enqueue(chunk O) error

	// Error errors both sides with reason.
	Error(reason error)

	// Terminate closes the readable side and errors the writable side with
	// ErrTransformTerminated.
	Terminate()

	// DesiredSize returns the readable side's desired size.
	DesiredSize() float64
}

// ReadableWritablePair is anything with a writable input and a readable
// output, such as a TransformStream.
type ReadableWritablePair[I, O any] interface {
	Writable() *WritableStream[I]
	Readable() *ReadableStream[O]
}

// TransformStream connects a WritableStream of I to a ReadableStream of O
// through a Transformer. Backpressure on the readable side holds back writes.
type TransformStream[I, O any] struct {
	transformer Transformer[I, O]
	readable    *ReadableStream[O]
	writable    *WritableStream[I]
	controller  *transformController[I, O]

	mu           sync.Mutex
	backpressure bool
	bpChange     chan struct{}
}

// NewTransformStream creates a TransformStream with DefaultTransformConfig.
func NewTransformStream[I, O any](transformer Transformer[I, O]) (*TransformStream[I, O], error) {
	return NewTransformStreamWithConfig(transformer, DefaultTransformConfig[I, O]())
}

// NewIdentityTransformStream creates a TransformStream that passes chunks through.
func NewIdentityTransformStream[T any]() *TransformStream[T, T] {
	t, _ := NewTransformStream[T, T](TransformerFuncs[T, T]{})
	return t
}

// NewTransformStreamWithConfig creates a TransformStream. The transformer's
// Start runs before it returns; a Start error errors both sides and is returned.
func NewTransformStreamWithConfig[I, O any](transformer Transformer[I, O], config TransformConfig[I, O]) (*TransformStream[I, O], error) {
	if transformer == nil {
		transformer = TransformerFuncs[I, O]{}
	}

	t := &TransformStream[I, O]{
		transformer: transformer,
		bpChange:    make(chan struct{}),
	}
	t.controller = &transformController[I, O]{stream: t}
	t.setBackpressure(true)

	writable, err := NewWritableStreamWithConfig[I](SinkFuncs[I]{
		WriteFunc: t.sinkWrite,
		CloseFunc: t.sinkClose,
		AbortFunc: t.sinkAbort,
	}, config.writableConfig())
	if err != nil {
		return nil, err
	}
	t.writable = writable

	readable, err := NewReadableStreamWithConfig[O](SourceFuncs[O]{
		PullFunc:   t.sourcePull,
		CancelFunc: t.sourceCancel,
	}, config.readableConfig())
	if err != nil {
		return nil, err
	}
	t.readable = readable

	if err := transformer.Start(writable.ctx, t.controller); err != nil {
		t.errorBoth(err)
		return nil, err
	}
	return t, nil
}

// Readable returns the output side.
func (t *TransformStream[I, O]) Readable() *ReadableStream[O] {
	return t.readable
}

// Writable returns the input side.
func (t *TransformStream[I, O]) Writable() *WritableStream[I] {
	return t.writable
}

func (t *TransformStream[I, O]) setBackpressure(bp bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setBackpressureLocked(bp)
}

func (t *TransformStream[I, O]) setBackpressureLocked(bp bool) {
	close(t.bpChange)
	t.bpChange = make(chan struct{})
	t.backpressure = bp
}

func (t *TransformStream[I, O]) sinkWrite(ctx context.Context, chunk I, _ WritableController) error {
	t.mu.Lock()
	if t.backpressure {
		change := t.bpChange
		t.mu.Unlock()

		select {
		case <-change:
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	} else {
		t.mu.Unlock()
	}
	if err := t.writable.erroringErr(); err != nil {
		return err
	}

	if err := t.transformer.Transform(ctx, chunk, t.controller); err != nil {
		t.errorBoth(err)
		return err
	}
	return nil
}

func (t *TransformStream[I, O]) sinkAbort(_ context.Context, reason error) error {
	t.readable.errorStream(reason)
	return nil
}

func (t *TransformStream[I, O]) sinkClose(ctx context.Context) error {
	if err := t.transformer.Flush(ctx, t.controller); err != nil {
		t.errorBoth(err)
		return err
	}

	if err := t.readable.close(); err != nil && !errors.Is(err, ErrStreamClosed) {
		return err
	}
	return nil
}

func (t *TransformStream[I, O]) sourcePull(ctx context.Context, _ ReadableController[O]) error {
	t.mu.Lock()
	t.setBackpressureLocked(false)
	change := t.bpChange
	t.mu.Unlock()

	select {
	case <-change:
	case <-ctx.Done():
	}
	return nil
}

func (t *TransformStream[I, O]) sourceCancel(_ context.Context, reason error) error {
	t.errorWritableAndUnblockWrite(reason)
	return nil
}

func (t *TransformStream[I, O]) errorBoth(reason error) {
	t.readable.errorStream(reason)
	t.errorWritableAndUnblockWrite(reason)
}

func (t *TransformStream[I, O]) errorWritableAndUnblockWrite(reason error) {
	t.writable.errorIfNeeded(reason)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.backpressure {
		t.setBackpressureLocked(false)
	}
}

// transformController is the single TransformController implementation.
type transformController[I, O any] struct {
	stream *TransformStream[I, O]
}

func (c *transformController[I, O]) Enqueue(chunk O) error {
	t := c.stream
	if err := t.readable.enqueue(chunk); err != nil {
		t.errorWritableAndUnblockWrite(err)
		return err
	}

	if !t.readable.shouldCallPull() {
		t.mu.Lock()
		if !t.backpressure {
			t.setBackpressureLocked(true)
		}
		t.mu.Unlock()
	}
	return nil
}

func (c *transformController[I, O]) Error(reason error) {
	if reason == nil {
		reason = ErrStreamErrored
	}
	c.stream.errorBoth(reason)
}

func (c *transformController[I, O]) Terminate() {
	t := c.stream
	_ = t.readable.close()
	t.errorWritableAndUnblockWrite(ErrTransformTerminated)
}

func (c *transformController[I, O]) DesiredSize() float64 {
	return c.stream.readable.controller.DesiredSize()
}
