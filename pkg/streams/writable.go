package streams

import (
	"context"
	"sync"

	wscontext "github.com/vnykmshr/webstreams/pkg/common/context"
	wserrors "github.com/vnykmshr/webstreams/pkg/common/errors"
	"github.com/vnykmshr/webstreams/pkg/streams/queue"
)

// WritableState is the lifecycle state of a WritableStream.
type WritableState int

const (
	// WritableStateWritable accepts writes.
	WritableStateWritable WritableState = iota

	// WritableStateClosing drains queued writes before closing the sink.
	WritableStateClosing

	// WritableStateClosed is terminal: the sink closed successfully.
	WritableStateClosed

	// WritableStateErrored is terminal: writes fail with the stored reason.
	WritableStateErrored
)

func (s WritableState) String() string {
	switch s {
	case WritableStateWritable:
		return "writable"
	case WritableStateClosing:
		return "closing"
	case WritableStateClosed:
		return "closed"
	case WritableStateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// writableState adds the transient erroring state, during which an in-flight
// sink operation finishes before the stream settles as errored.
type writableState int

const (
	stateWritable writableState = iota
	stateErroring
	stateClosed
	stateErrored
)

// UnderlyingSink consumes the chunks of a WritableStream.
//
// Write is called strictly one chunk at a time in write order; an error
// errors the stream. Close runs once after every queued write succeeded.
// Abort runs once when a producer aborts the stream. The context passed to
// Start, Write and Close is the controller's Signal.
type UnderlyingSink[T any] interface {
	Start(ctx context.Context, controller WritableController) error
	Write(ctx context.Context, chunk T, controller WritableController) error
	Close(ctx context.Context) error
	Abort(ctx context.Context, reason error) error
}

// SinkFuncs adapts plain functions to UnderlyingSink. Nil functions are no-ops.
type SinkFuncs[T any] struct {
	StartFunc func(ctx context.Context, controller WritableController) error
	WriteFunc func(ctx context.Context, chunk T, controller WritableController) error
	CloseFunc func(ctx context.Context) error
	AbortFunc func(ctx context.Context, reason error) error
}

func (f SinkFuncs[T]) Start(ctx context.Context, controller WritableController) error {
	if f.StartFunc == nil {
		return nil
	}
	return f.StartFunc(ctx, controller)
}

func (f SinkFuncs[T]) Write(ctx context.Context, chunk T, controller WritableController) error {
	if f.WriteFunc == nil {
		return nil
	}
	return f.WriteFunc(ctx, chunk, controller)
}

func (f SinkFuncs[T]) Close(ctx context.Context) error {
	if f.CloseFunc == nil {
		return nil
	}
	return f.CloseFunc(ctx)
}

func (f SinkFuncs[T]) Abort(ctx context.Context, reason error) error {
	if f.AbortFunc == nil {
		return nil
	}
	return f.AbortFunc(ctx, reason)
}

// WritableController is the sink-facing handle of a WritableStream.
type WritableController interface {
	// Signal is canceled, with the reason as its cause, once the stream is
	// aborted or starts erroring.
	Signal() context.Context

	// Error errors the stream. A nil reason becomes ErrStreamErrored.
	Error(reason error)
}

type writeRecord[T any] struct {
	chunk T
	done  chan error
}

type abortRequest struct {
	ctx                context.Context
	reason             error
	wasAlreadyErroring bool
	done               chan struct{}
	err                error
}

func (a *abortRequest) settle(err error) {
	a.err = err
	close(a.done)
}

// WritableStream is a destination for chunks with queue-based backpressure.
// At most one Writer may be active at a time.
type WritableStream[T any] struct {
	mu       sync.Mutex
	strategy QueuingStrategy[T]
	sink     UnderlyingSink[T]
	tel      *telemetry

	state     writableState
	storedErr error
	queue     *queue.Queue[*writeRecord[T]]
	started   bool

	inFlightWrite  *writeRecord[T]
	closeRequested bool
	closeRequest   chan error
	inFlightClose  bool
	pendingAbort   *abortRequest

	backpressure bool
	ready        chan struct{}

	lock   lockState
	writer *Writer[T]

	ctx        context.Context
	cancelCtx  func(error)
	erroring   chan struct{}
	done       chan struct{}
	controller *writableController[T]
}

// NewWritableStream creates a WritableStream over sink with DefaultConfig.
func NewWritableStream[T any](sink UnderlyingSink[T]) (*WritableStream[T], error) {
	return NewWritableStreamWithConfig(sink, DefaultConfig[T]())
}

// NewWritableStreamWithConfig creates a WritableStream over sink. Start is
// invoked before it returns; a Start error is returned and no stream is made.
func NewWritableStreamWithConfig[T any](sink UnderlyingSink[T], config Config[T]) (*WritableStream[T], error) {
	if err := config.Strategy.validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = SinkFuncs[T]{}
	}

	s := &WritableStream[T]{
		strategy: config.Strategy,
		sink:     sink,
		tel:      newTelemetry(config.Name, "writable", config.Logger, config.Metrics),
		queue:    queue.New[*writeRecord[T]](),
		ready:    make(chan struct{}),
		erroring: make(chan struct{}),
		done:     make(chan struct{}),
	}
	close(s.ready)
	s.ctx, s.cancelCtx = wscontext.WithReason(context.Background())
	s.controller = &writableController[T]{stream: s}

	s.mu.Lock()
	s.updateBackpressureLocked()
	s.mu.Unlock()

	if err := sink.Start(s.ctx, s.controller); err != nil {
		s.mu.Lock()
		s.started = true
		s.startErroringLocked(err)
		s.mu.Unlock()
		return nil, err
	}

	s.mu.Lock()
	s.started = true
	s.advanceQueueIfNeededLocked()
	s.mu.Unlock()

	return s, nil
}

// GetWriter locks the stream and returns its Writer. It fails with ErrLocked
// when the stream already has a writer.
func (s *WritableStream[T]) GetWriter() (*Writer[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.transition(lockedByWriter); err != nil {
		return nil, err
	}
	w := &Writer[T]{stream: s, released: make(chan struct{})}
	s.writer = w
	return w, nil
}

// Locked reports whether a writer holds the stream.
func (s *WritableStream[T]) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lock != unlocked
}

// State returns the current lifecycle state. A stream that is erroring is
// reported as errored.
func (s *WritableStream[T]) State() WritableState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publicStateLocked()
}

func (s *WritableStream[T]) publicStateLocked() WritableState {
	switch s.state {
	case stateErroring, stateErrored:
		return WritableStateErrored
	case stateClosed:
		return WritableStateClosed
	}
	if s.closeRequested {
		return WritableStateClosing
	}
	return WritableStateWritable
}

// Abort aborts an unlocked stream. See Writer.Abort.
func (s *WritableStream[T]) Abort(ctx context.Context, reason error) error {
	if s.Locked() {
		return ErrLocked
	}
	return s.abort(ctx, reason)
}

// Close closes an unlocked stream. See Writer.Close.
func (s *WritableStream[T]) Close(ctx context.Context) error {
	if s.Locked() {
		return ErrLocked
	}
	return s.close(ctx)
}

func (s *WritableStream[T]) desiredSizeLocked() float64 {
	return s.strategy.HighWaterMark - s.queue.TotalSize()
}

// closeQueuedOrInFlightLocked reports whether Close was requested, which
// stops backpressure updates and pipe writes.
func (s *WritableStream[T]) closeQueuedOrInFlightLocked() bool {
	return s.closeRequested
}

func (s *WritableStream[T]) updateBackpressureLocked() {
	bp := s.desiredSizeLocked() <= 0
	if bp == s.backpressure {
		return
	}
	if bp {
		s.ready = make(chan struct{})
		s.tel.backpressure()
	} else {
		close(s.ready)
	}
	s.backpressure = bp
}

// releaseReadyLocked wakes everyone waiting on Ready.
func (s *WritableStream[T]) releaseReadyLocked() {
	if s.backpressure {
		close(s.ready)
		s.backpressure = false
	}
}

// writeAsync queues chunk and returns a channel that yields the sink's
// result for it.
func (s *WritableStream[T]) writeAsync(chunk T) <-chan error {
	done := make(chan error, 1)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state == stateErroring || s.state == stateErrored:
		done <- s.storedErr
		return done
	case s.state == stateClosed:
		done <- ErrStreamClosed
		return done
	case s.closeRequested:
		done <- ErrStreamClosing
		return done
	}

	if err := s.queue.Enqueue(&writeRecord[T]{chunk: chunk, done: done}, s.strategy.sizeOf(chunk)); err != nil {
		s.startErroringLocked(ErrInvalidChunkSize)
		done <- ErrInvalidChunkSize
		return done
	}
	s.tel.enqueued()
	s.tel.queue(s.queue.TotalSize(), s.desiredSizeLocked())

	s.updateBackpressureLocked()
	s.advanceQueueIfNeededLocked()
	return done
}

func (s *WritableStream[T]) advanceQueueIfNeededLocked() {
	if !s.started || s.inFlightWrite != nil || s.inFlightClose {
		return
	}
	if s.state == stateErroring {
		s.finishErroringLocked()
		return
	}
	if s.state != stateWritable {
		return
	}
	if s.queue.Len() == 0 {
		if s.closeRequested {
			s.processCloseLocked()
		}
		return
	}

	entry, _ := s.queue.Peek()
	s.inFlightWrite = entry.Value
	go s.runWrite(entry.Value)
}

func (s *WritableStream[T]) runWrite(rec *writeRecord[T]) {
	err := s.sink.Write(s.ctx, rec.chunk, s.controller)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.inFlightWrite = nil
	_, _ = s.queue.Dequeue()
	rec.done <- err

	if err != nil {
		s.dealWithRejectionLocked(err)
		return
	}

	s.tel.delivered()
	s.tel.queue(s.queue.TotalSize(), s.desiredSizeLocked())
	if s.state == stateWritable && !s.closeRequested {
		s.updateBackpressureLocked()
	}
	s.advanceQueueIfNeededLocked()
}

func (s *WritableStream[T]) processCloseLocked() {
	s.inFlightClose = true
	go func() {
		err := s.sink.Close(s.ctx)

		s.mu.Lock()
		defer s.mu.Unlock()

		s.inFlightClose = false
		req := s.closeRequest
		s.closeRequest = nil

		if err != nil {
			req <- err
			if s.pendingAbort != nil {
				s.pendingAbort.settle(err)
				s.pendingAbort = nil
			}
			s.dealWithRejectionLocked(err)
			return
		}

		if s.state == stateErroring {
			s.storedErr = nil
			if s.pendingAbort != nil {
				s.pendingAbort.settle(nil)
				s.pendingAbort = nil
			}
		}
		s.state = stateClosed
		req <- nil
		s.cancelCtx(wserrors.ErrClosed)
		s.tel.log.Debug("stream closed")
		close(s.done)
	}()
}

func (s *WritableStream[T]) dealWithRejectionLocked(err error) {
	if s.state == stateWritable {
		s.startErroringLocked(err)
		return
	}
	s.finishErroringLocked()
}

// startErroringLocked records reason, rejects every queued write that has
// not reached the sink and finishes erroring as soon as no sink operation is
// in flight.
func (s *WritableStream[T]) startErroringLocked(reason error) {
	if s.state != stateWritable {
		return
	}
	if reason == nil {
		reason = ErrStreamErrored
	}

	s.storedErr = reason
	s.state = stateErroring
	close(s.erroring)
	s.cancelCtx(reason)
	s.releaseReadyLocked()
	s.tel.errored(reason)

	// the in-flight record stays at the head until its write returns
	for _, entry := range s.queue.Drain() {
		if entry.Value == s.inFlightWrite {
			_ = s.queue.Enqueue(entry.Value, entry.Size)
			continue
		}
		entry.Value.done <- reason
	}

	if s.inFlightWrite == nil && !s.inFlightClose && s.started {
		s.finishErroringLocked()
	}
}

func (s *WritableStream[T]) finishErroringLocked() {
	if s.state != stateErroring {
		return
	}
	s.state = stateErrored

	for _, entry := range s.queue.Drain() {
		if entry.Value == s.inFlightWrite {
			_ = s.queue.Enqueue(entry.Value, entry.Size)
			continue
		}
		entry.Value.done <- s.storedErr
	}

	abort := s.pendingAbort
	s.pendingAbort = nil
	if abort == nil {
		s.rejectCloseAndClosedLocked()
		return
	}
	if abort.wasAlreadyErroring {
		abort.settle(s.storedErr)
		s.rejectCloseAndClosedLocked()
		return
	}

	go func() {
		err := s.sink.Abort(abort.ctx, abort.reason)

		s.mu.Lock()
		defer s.mu.Unlock()
		abort.settle(err)
		s.rejectCloseAndClosedLocked()
	}()
}

func (s *WritableStream[T]) rejectCloseAndClosedLocked() {
	if s.closeRequest != nil && !s.inFlightClose {
		s.closeRequest <- s.storedErr
		s.closeRequest = nil
	}
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

func (s *WritableStream[T]) abort(ctx context.Context, reason error) error {
	if reason == nil {
		reason = ErrAborted
	}

	s.mu.Lock()
	if s.state == stateClosed || s.state == stateErrored {
		s.mu.Unlock()
		return nil
	}
	if s.pendingAbort != nil {
		pending := s.pendingAbort
		s.mu.Unlock()
		return waitAbort(ctx, pending)
	}

	wasAlreadyErroring := s.state == stateErroring
	req := &abortRequest{
		ctx:                context.WithoutCancel(ctx),
		reason:             reason,
		wasAlreadyErroring: wasAlreadyErroring,
		done:               make(chan struct{}),
	}
	s.pendingAbort = req
	s.tel.cancelled("stream aborted", reason)
	if wasAlreadyErroring {
		req.reason = nil
	} else {
		s.startErroringLocked(reason)
		if s.inFlightWrite != nil {
			// the abort races the outstanding write instead of waiting for it
			s.finishErroringLocked()
		}
	}
	s.mu.Unlock()

	return waitAbort(ctx, req)
}

func waitAbort(ctx context.Context, req *abortRequest) error {
	select {
	case <-req.done:
		return req.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *WritableStream[T]) close(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.state == stateClosed:
		s.mu.Unlock()
		return ErrStreamClosed
	case s.state == stateErroring || s.state == stateErrored:
		err := s.storedErr
		s.mu.Unlock()
		return err
	case s.closeRequested:
		s.mu.Unlock()
		return ErrStreamClosing
	}

	s.closeRequested = true
	req := make(chan error, 1)
	s.closeRequest = req
	s.releaseReadyLocked()
	s.advanceQueueIfNeededLocked()
	s.mu.Unlock()

	select {
	case err := <-req:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *WritableStream[T]) errorIfNeeded(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startErroringLocked(reason)
}

// erroringErr returns the stored reason once the stream is erroring or errored.
func (s *WritableStream[T]) erroringErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateErroring || s.state == stateErrored {
		return s.storedErr
	}
	return nil
}

// writableController is the single WritableController implementation.
type writableController[T any] struct {
	stream *WritableStream[T]
}

func (c *writableController[T]) Signal() context.Context {
	return c.stream.ctx
}

func (c *writableController[T]) Error(reason error) {
	c.stream.errorIfNeeded(reason)
}
