package streams

import (
	"context"
	"sync"

	wscontext "github.com/vnykmshr/webstreams/pkg/common/context"
	wserrors "github.com/vnykmshr/webstreams/pkg/common/errors"
	"github.com/vnykmshr/webstreams/pkg/streams/queue"
)

// ReadableState is the lifecycle state of a ReadableStream.
type ReadableState int

const (
	// ReadableStateReadable accepts enqueues and serves reads.
	ReadableStateReadable ReadableState = iota

	// ReadableStateClosed is terminal: reads report Done.
	ReadableStateClosed

	// ReadableStateErrored is terminal: reads fail with the stored reason.
	ReadableStateErrored
)

func (s ReadableState) String() string {
	switch s {
	case ReadableStateReadable:
		return "readable"
	case ReadableStateClosed:
		return "closed"
	case ReadableStateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// UnderlyingSource produces the chunks of a ReadableStream.
//
// Start runs once during construction. Pull runs whenever the stream wants
// more data and no other Pull is outstanding; it runs on its own goroutine and
// may block. Cancel runs once when a consumer cancels the stream. The context
// passed to Start and Pull is canceled, with the cancel reason as its cause,
// when the stream is cancelled or reaches a terminal state.
type UnderlyingSource[T any] interface {
	Start(ctx context.Context, controller ReadableController[T]) error
	Pull(ctx context.Context, controller ReadableController[T]) error
	Cancel(ctx context.Context, reason error) error
}

// SourceFuncs adapts plain functions to UnderlyingSource. Nil functions are no-ops.
type SourceFuncs[T any] struct {
	StartFunc  func(ctx context.Context, controller ReadableController[T]) error
	PullFunc   func(ctx context.Context, controller ReadableController[T]) error
	CancelFunc func(ctx context.Context, reason error) error
}

func (f SourceFuncs[T]) Start(ctx context.Context, controller ReadableController[T]) error {
	if f.StartFunc == nil {
		return nil
	}
	return f.StartFunc(ctx, controller)
}

func (f SourceFuncs[T]) Pull(ctx context.Context, controller ReadableController[T]) error {
	if f.PullFunc == nil {
		return nil
	}
	return f.PullFunc(ctx, controller)
}

func (f SourceFuncs[T]) Cancel(ctx context.Context, reason error) error {
	if f.CancelFunc == nil {
		return nil
	}
	return f.CancelFunc(ctx, reason)
}

// ReadableController is the producer-facing handle of a ReadableStream.
type ReadableController[T any] interface {
	// Enqueue adds chunk to the stream, handing it straight to a waiting
	// read when there is one.
	Enqueue(chunk T) error

	// Close closes the stream once every queued chunk has been read.
	Close() error

	// Error moves the stream to errored. A nil reason becomes ErrStreamErrored.
	Error(reason error)

	// DesiredSize returns the high water mark minus the queued size.
	// It is 0 once the stream is closed or errored.
	DesiredSize() float64
}

// ReadResult is one step of a read: a chunk, or Done once the stream closed.
type ReadResult[T any] struct {
	Value T
	Done  bool
}

type readOutcome[T any] struct {
	result ReadResult[T]
	err    error
}

type readRequest[T any] struct {
	ch chan readOutcome[T]
}

// ReadableStream is a source of chunks with pull-driven backpressure. At most
// one Reader may be active at a time.
type ReadableStream[T any] struct {
	mu       sync.Mutex
	strategy QueuingStrategy[T]
	source   UnderlyingSource[T]
	tel      *telemetry

	state          ReadableState
	storedErr      error
	queue          *queue.Queue[T]
	closeRequested bool
	started        bool
	pulling        bool
	pullAgain      bool
	disturbed      bool
	cancelled      bool

	lock         lockState
	readRequests []*readRequest[T]

	ctx        context.Context
	cancelCtx  func(error)
	done       chan struct{}
	controller *readableController[T]
}

// NewReadableStream creates a ReadableStream over source with DefaultConfig.
func NewReadableStream[T any](source UnderlyingSource[T]) (*ReadableStream[T], error) {
	return NewReadableStreamWithConfig(source, DefaultConfig[T]())
}

// NewReadableStreamWithConfig creates a ReadableStream over source. Start is
// invoked before it returns; a Start error is returned and no stream is made.
func NewReadableStreamWithConfig[T any](source UnderlyingSource[T], config Config[T]) (*ReadableStream[T], error) {
	if err := config.Strategy.validate(); err != nil {
		return nil, err
	}
	if source == nil {
		source = SourceFuncs[T]{}
	}

	s := &ReadableStream[T]{
		strategy: config.Strategy,
		source:   source,
		tel:      newTelemetry(config.Name, "readable", config.Logger, config.Metrics),
		queue:    queue.New[T](),
		done:     make(chan struct{}),
	}
	s.ctx, s.cancelCtx = wscontext.WithReason(context.Background())
	s.controller = &readableController[T]{stream: s}

	if err := source.Start(s.ctx, s.controller); err != nil {
		s.errorStream(err)
		return nil, err
	}

	s.mu.Lock()
	s.started = true
	s.callPullIfNeededLocked()
	s.mu.Unlock()

	return s, nil
}

// GetReaderOptions selects the reader mode.
type GetReaderOptions struct {
	Mode ReaderMode
}

// ReaderMode selects between default and BYOB readers.
type ReaderMode int

const (
	// ReaderModeDefault returns a default reader.
	ReaderModeDefault ReaderMode = iota

	// ReaderModeBYOB is accepted for compatibility; a default reader is returned.
	ReaderModeBYOB
)

// GetReader locks the stream and returns its Reader. It fails with ErrLocked
// when the stream already has a reader.
func (s *ReadableStream[T]) GetReader(opts ...GetReaderOptions) (*Reader[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.transition(lockedByReader); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if opt.Mode == ReaderModeBYOB {
			s.tel.log.Debug("byob reader requested, returning default reader")
		}
	}

	return &Reader[T]{stream: s, released: make(chan struct{})}, nil
}

// Locked reports whether a reader holds the stream.
func (s *ReadableStream[T]) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lock != unlocked
}

// State returns the current lifecycle state.
func (s *ReadableStream[T]) State() ReadableState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Disturbed reports whether the stream has been read from or cancelled.
func (s *ReadableStream[T]) Disturbed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disturbed
}

// Cancel cancels an unlocked stream. See Reader.Cancel.
func (s *ReadableStream[T]) Cancel(ctx context.Context, reason error) error {
	s.mu.Lock()
	locked := s.lock != unlocked
	s.mu.Unlock()
	if locked {
		return ErrLocked
	}
	return s.cancel(ctx, reason)
}

// cancel closes the stream, discards the queue and runs the source's Cancel
// once. Later calls return nil; an errored stream returns its reason.
func (s *ReadableStream[T]) cancel(ctx context.Context, reason error) error {
	s.mu.Lock()
	s.disturbed = true
	switch {
	case s.state == ReadableStateErrored:
		err := s.storedErr
		s.mu.Unlock()
		return err
	case s.cancelled || s.state == ReadableStateClosed:
		s.mu.Unlock()
		return nil
	}

	s.cancelled = true
	s.queue.Reset()
	s.tel.cancelled("stream cancelled", reason)
	cause := reason
	if cause == nil {
		cause = wserrors.ErrCanceled
	}
	s.finalizeCloseLocked(cause)
	s.mu.Unlock()

	return s.source.Cancel(ctx, reason)
}

func (s *ReadableStream[T]) desiredSizeLocked() float64 {
	if s.state != ReadableStateReadable {
		return 0
	}
	return s.strategy.HighWaterMark - s.queue.TotalSize()
}

func (s *ReadableStream[T]) shouldCallPullLocked() bool {
	if !s.started || s.closeRequested || s.state != ReadableStateReadable {
		return false
	}
	if s.lock == lockedByReader && len(s.readRequests) > 0 {
		return true
	}
	return s.desiredSizeLocked() > 0
}

// shouldCallPull reports whether the stream would ask its source for more
// data, which TransformStream uses as its readable backpressure signal.
func (s *ReadableStream[T]) shouldCallPull() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shouldCallPullLocked()
}

func (s *ReadableStream[T]) callPullIfNeededLocked() {
	if !s.shouldCallPullLocked() {
		return
	}
	if s.pulling {
		s.pullAgain = true
		return
	}
	s.pulling = true
	s.tel.pull()
	go s.runPull()
}

func (s *ReadableStream[T]) runPull() {
	for {
		err := s.source.Pull(s.ctx, s.controller)

		s.mu.Lock()
		s.pulling = false
		if err != nil {
			s.errorLocked(err)
			s.mu.Unlock()
			return
		}
		if !s.pullAgain {
			s.mu.Unlock()
			return
		}
		s.pullAgain = false
		if !s.shouldCallPullLocked() {
			s.mu.Unlock()
			return
		}
		s.pulling = true
		s.tel.pull()
		s.mu.Unlock()
	}
}

func (s *ReadableStream[T]) enqueue(chunk T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state == ReadableStateErrored:
		return s.storedErr
	case s.closeRequested || s.state != ReadableStateReadable:
		return ErrStreamClosed
	}

	// sized even when handed straight to a waiting read
	size := s.strategy.sizeOf(chunk)
	if err := queue.ValidateSize(size); err != nil {
		s.errorLocked(ErrInvalidChunkSize)
		return ErrInvalidChunkSize
	}

	if s.lock == lockedByReader && len(s.readRequests) > 0 {
		req := s.readRequests[0]
		s.readRequests = s.readRequests[1:]
		req.ch <- readOutcome[T]{result: ReadResult[T]{Value: chunk}}
		s.tel.enqueued()
		s.tel.delivered()
	} else {
		wasBelow := s.desiredSizeLocked() > 0
		if err := s.queue.Enqueue(chunk, size); err != nil {
			s.errorLocked(ErrInvalidChunkSize)
			return ErrInvalidChunkSize
		}
		s.tel.enqueued()
		desired := s.desiredSizeLocked()
		s.tel.queue(s.queue.TotalSize(), desired)
		if wasBelow && desired <= 0 {
			s.tel.backpressure()
		}
	}

	s.callPullIfNeededLocked()
	return nil
}

func (s *ReadableStream[T]) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state == ReadableStateErrored:
		return s.storedErr
	case s.closeRequested || s.state != ReadableStateReadable:
		return ErrStreamClosed
	}

	s.closeRequested = true
	if s.queue.Len() == 0 {
		s.finalizeCloseLocked(wserrors.ErrClosed)
	}
	return nil
}

// finalizeCloseLocked moves the stream to closed and resolves every waiting
// read with Done.
func (s *ReadableStream[T]) finalizeCloseLocked(cause error) {
	if s.state != ReadableStateReadable {
		return
	}
	s.state = ReadableStateClosed
	for _, req := range s.readRequests {
		req.ch <- readOutcome[T]{result: ReadResult[T]{Done: true}}
	}
	s.readRequests = nil
	s.cancelCtx(cause)
	close(s.done)
	s.tel.log.Debug("stream closed")
}

func (s *ReadableStream[T]) errorStream(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorLocked(reason)
}

func (s *ReadableStream[T]) errorLocked(reason error) {
	if s.state != ReadableStateReadable {
		return
	}
	if reason == nil {
		reason = ErrStreamErrored
	}

	s.state = ReadableStateErrored
	s.storedErr = reason
	s.queue.Reset()
	for _, req := range s.readRequests {
		req.ch <- readOutcome[T]{err: reason}
	}
	s.readRequests = nil
	s.cancelCtx(reason)
	close(s.done)
	s.tel.errored(reason)
}

// readLocked serves one read. When no result is available yet it returns a
// pending request to wait on instead.
func (s *ReadableStream[T]) readLocked() (*readRequest[T], ReadResult[T], error) {
	s.disturbed = true

	switch s.state {
	case ReadableStateClosed:
		return nil, ReadResult[T]{Done: true}, nil
	case ReadableStateErrored:
		return nil, ReadResult[T]{}, s.storedErr
	}

	if s.queue.Len() > 0 {
		entry, _ := s.queue.Dequeue()
		s.tel.delivered()
		if s.closeRequested && s.queue.Len() == 0 {
			s.finalizeCloseLocked(wserrors.ErrClosed)
		} else {
			s.tel.queue(s.queue.TotalSize(), s.desiredSizeLocked())
			s.callPullIfNeededLocked()
		}
		return nil, ReadResult[T]{Value: entry.Value}, nil
	}

	req := &readRequest[T]{ch: make(chan readOutcome[T], 1)}
	s.readRequests = append(s.readRequests, req)
	s.callPullIfNeededLocked()
	return req, ReadResult[T]{}, nil
}

// removeReadRequestLocked drops req if it is still pending and reports
// whether it did. A request that is no longer pending has its outcome
// buffered in req.ch.
func (s *ReadableStream[T]) removeReadRequestLocked(req *readRequest[T]) bool {
	for i, pending := range s.readRequests {
		if pending == req {
			s.readRequests = append(s.readRequests[:i], s.readRequests[i+1:]...)
			return true
		}
	}
	return false
}

// readableController is the single ReadableController implementation.
type readableController[T any] struct {
	stream *ReadableStream[T]
}

func (c *readableController[T]) Enqueue(chunk T) error {
	return c.stream.enqueue(chunk)
}

func (c *readableController[T]) Close() error {
	return c.stream.close()
}

func (c *readableController[T]) Error(reason error) {
	c.stream.errorStream(reason)
}

func (c *readableController[T]) DesiredSize() float64 {
	c.stream.mu.Lock()
	defer c.stream.mu.Unlock()
	return c.stream.desiredSizeLocked()
}
