package streamio

import (
	"context"
	"fmt"
	"io"

	wserrors "github.com/vnykmshr/webstreams/pkg/common/errors"
	"github.com/vnykmshr/webstreams/pkg/streams"
)

// Flusher is implemented by buffered writers such as *bufio.Writer.
type Flusher interface {
	Flush() error
}

// ToWriter returns a WritableStream that writes chunks to w using DefaultConfig.
func ToWriter(w io.Writer) (*streams.WritableStream[[]byte], error) {
	config := DefaultConfig()
	config.Stream.Name = "writer"
	return ToWriterWithConfig(w, config)
}

// ToWriterWithConfig returns a WritableStream that writes chunks to w. On
// close w is flushed when it is a Flusher and closed when it is an
// io.Closer; on abort it is only closed.
func ToWriterWithConfig(w io.Writer, config Config) (*streams.WritableStream[[]byte], error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	return streams.NewWritableStreamWithConfig[[]byte](&writerSink{w: w}, config.Stream)
}

type writerSink struct {
	w       io.Writer
	written int64
}

func (s *writerSink) Start(context.Context, streams.WritableController) error {
	return nil
}

func (s *writerSink) Write(_ context.Context, chunk []byte, _ streams.WritableController) error {
	n, err := s.w.Write(chunk)
	s.written += int64(n)
	if err == nil && n < len(chunk) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return wserrors.NewOperationError("streamio", "write", err).
			WithContext(fmt.Sprintf("at offset %d", s.written))
	}
	return nil
}

func (s *writerSink) Close(context.Context) error {
	if f, ok := s.w.(Flusher); ok {
		if err := f.Flush(); err != nil {
			return wserrors.NewOperationError("streamio", "flush", err)
		}
	}
	if c, ok := s.w.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return wserrors.NewOperationError("streamio", "close", err)
		}
	}
	return nil
}

func (s *writerSink) Abort(context.Context, error) error {
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
