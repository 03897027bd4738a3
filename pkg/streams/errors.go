package streams

import (
	"errors"
	"fmt"

	wserrors "github.com/vnykmshr/webstreams/pkg/common/errors"
	"github.com/vnykmshr/webstreams/pkg/streams/queue"
)

var (
	// ErrLocked is returned when a reader or writer is requested for a stream
	// that is already locked, or when a locked stream is cancelled, aborted or
	// closed directly.
	ErrLocked = errors.New("streams: stream is locked")

	// ErrInvalidChunkSize is the stream error after the queuing strategy
	// returned a NaN, negative or infinite size.
	ErrInvalidChunkSize = fmt.Errorf("streams: %w", queue.ErrInvalidSize)

	// ErrReaderReleased is returned by reads outstanding when the reader's lock
	// was released, and by every reader method afterwards.
	ErrReaderReleased = errors.New("streams: reader lock released")

	// ErrWriterReleased is returned by writer methods after ReleaseLock.
	ErrWriterReleased = errors.New("streams: writer lock released")

	// ErrPipeDestinationClosed cancels the source of a pipe whose destination
	// is closing or closed.
	ErrPipeDestinationClosed = fmt.Errorf("streams: pipe destination closed: %w", wserrors.ErrClosed)

	// ErrStreamClosed is returned when enqueueing to, writing to or closing a
	// stream that is already closed.
	ErrStreamClosed = fmt.Errorf("streams: stream closed: %w", wserrors.ErrClosed)

	// ErrStreamClosing is returned by writes and closes after Close was requested.
	ErrStreamClosing = fmt.Errorf("streams: stream closing: %w", wserrors.ErrClosed)

	// ErrAborted is the reason used by Abort when none is given.
	ErrAborted = fmt.Errorf("streams: %w", wserrors.ErrAborted)

	// ErrStreamErrored is the reason used by a controller's Error when none is given.
	ErrStreamErrored = errors.New("streams: stream errored")

	// ErrInvalidHighWaterMark is returned by constructors given a negative,
	// NaN or infinite high water mark.
	ErrInvalidHighWaterMark = fmt.Errorf("streams: invalid high water mark: %w", wserrors.ErrInvalidConfiguration)

	// ErrTransformTerminated errors the writable side of a TransformStream
	// after its controller's Terminate.
	ErrTransformTerminated = errors.New("streams: transform stream terminated")
)
