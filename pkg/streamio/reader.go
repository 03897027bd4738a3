package streamio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	wserrors "github.com/vnykmshr/webstreams/pkg/common/errors"
	"github.com/vnykmshr/webstreams/pkg/streams"
)

// FromReader returns a ReadableStream of the bytes of r using DefaultConfig.
func FromReader(r io.Reader) (*streams.ReadableStream[[]byte], error) {
	config := DefaultConfig()
	config.Stream.Name = "reader"
	return FromReaderWithConfig(r, config)
}

// FromReaderWithConfig returns a ReadableStream of the bytes of r. The
// stream closes at io.EOF. When r is an io.Closer it is closed once the
// stream closes, errors or is cancelled.
func FromReaderWithConfig(r io.Reader, config Config) (*streams.ReadableStream[[]byte], error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	src := &readerSource{r: r, chunkSize: config.ChunkSize}
	return streams.NewReadableStreamWithConfig[[]byte](src, config.Stream)
}

type readerSource struct {
	r         io.Reader
	chunkSize int
	offset    int64
	closeOnce sync.Once
	closeErr  error
}

func (s *readerSource) Start(context.Context, streams.ReadableController[[]byte]) error {
	return nil
}

func (s *readerSource) Pull(ctx context.Context, c streams.ReadableController[[]byte]) error {
	buf := make([]byte, s.chunkSize)
	n, err := s.r.Read(buf)
	s.offset += int64(n)
	if n > 0 {
		if eerr := c.Enqueue(buf[:n]); eerr != nil {
			return eerr
		}
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		if cerr := s.close(); cerr != nil {
			return wserrors.NewOperationError("streamio", "close", cerr)
		}
		return c.Close()
	case ctx.Err() != nil:
		// the read failed because the stream was cancelled and r closed
		return nil
	}
	_ = s.close()
	return wserrors.NewOperationError("streamio", "read", err).
		WithContext(fmt.Sprintf("at offset %d", s.offset))
}

func (s *readerSource) Cancel(context.Context, error) error {
	return s.close()
}

func (s *readerSource) close() error {
	s.closeOnce.Do(func() {
		if c, ok := s.r.(io.Closer); ok {
			s.closeErr = c.Close()
		}
	})
	return s.closeErr
}
