package transforms

import (
	"bytes"
	"context"

	"github.com/vnykmshr/webstreams/pkg/streams"
)

// lineSplitter buffers bytes until a newline completes a line.
type lineSplitter struct {
	buf []byte
}

func (l *lineSplitter) Start(context.Context, streams.TransformController[string]) error {
	return nil
}

func (l *lineSplitter) Transform(_ context.Context, chunk []byte, c streams.TransformController[string]) error {
	l.buf = append(l.buf, chunk...)
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			return nil
		}
		line := string(bytes.TrimSuffix(l.buf[:i], []byte{'\r'}))
		l.buf = l.buf[i+1:]
		if err := c.Enqueue(line); err != nil {
			return err
		}
	}
}

func (l *lineSplitter) Flush(_ context.Context, c streams.TransformController[string]) error {
	if len(l.buf) == 0 {
		return nil
	}
	line := string(bytes.TrimSuffix(l.buf, []byte{'\r'}))
	l.buf = nil
	return c.Enqueue(line)
}

// SplitLines turns arbitrary byte chunks into lines without their "\n" or
// "\r\n" terminator. An unterminated last line is emitted on close.
func SplitLines() *streams.TransformStream[[]byte, string] {
	return newStream[[]byte, string]("split-lines", &lineSplitter{})
}

// JoinLines appends "\n" to each string chunk.
func JoinLines() *streams.TransformStream[string, []byte] {
	return newStream("join-lines", streams.TransformerFuncs[string, []byte]{
		TransformFunc: func(_ context.Context, line string, c streams.TransformController[[]byte]) error {
			out := make([]byte, 0, len(line)+1)
			out = append(out, line...)
			return c.Enqueue(append(out, '\n'))
		},
	})
}
