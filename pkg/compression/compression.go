// Package compression provides CompressionStream and DecompressionStream
// TransformStreams of byte chunks.
//
// Supported formats are gzip, deflate (zlib), deflate-raw, br (brotli) and
// zstd. Compressed output is emitted as the encoder produces it, which for
// most encoders means at close; decompressed output is emitted chunk by
// chunk as soon as the decoder has it.
package compression

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"

	wserrors "github.com/vnykmshr/webstreams/pkg/common/errors"
	"github.com/vnykmshr/webstreams/pkg/streams"
)

// Format names a compression format.
type Format string

const (
	Gzip       Format = "gzip"
	Deflate    Format = "deflate"
	DeflateRaw Format = "deflate-raw"
	Brotli     Format = "br"
	Zstd       Format = "zstd"
)

var (
	// ErrUnsupportedFormat is returned for formats other than the ones above.
	ErrUnsupportedFormat = fmt.Errorf("compression: unsupported format: %w", wserrors.ErrUnsupported)

	// ErrTrailingData is raised when input continues past the end of the
	// compressed stream.
	ErrTrailingData = errors.New("compression: trailing data after end of stream")
)

// Formats lists every supported format.
func Formats() []Format {
	return []Format{Gzip, Deflate, DeflateRaw, Brotli, Zstd}
}

// Supported reports whether f is a known format.
func (f Format) Supported() bool {
	for _, known := range Formats() {
		if f == known {
			return true
		}
	}
	return false
}

func unsupported(f Format) error {
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(f))
}

func newWriter(f Format, w io.Writer) (io.WriteCloser, error) {
	switch f {
	case Gzip:
		return gzip.NewWriter(w), nil
	case Deflate:
		return zlib.NewWriter(w), nil
	case DeflateRaw:
		return flate.NewWriter(w, flate.DefaultCompression)
	case Brotli:
		return brotli.NewWriter(w), nil
	case Zstd:
		// each stream already runs on its own goroutine
		return zstd.NewWriter(w, zstd.WithEncoderConcurrency(1))
	}
	return nil, unsupported(f)
}

func newReader(f Format, r io.Reader) (io.ReadCloser, error) {
	switch f {
	case Gzip:
		return gzip.NewReader(r)
	case Deflate:
		return zlib.NewReader(r)
	case DeflateRaw:
		return flate.NewReader(r), nil
	case Brotli:
		return io.NopCloser(brotli.NewReader(r)), nil
	case Zstd:
		dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		// zstd.Decoder.Close has no error result
		return dec.IOReadCloser(), nil
	}
	return nil, unsupported(f)
}

// NewCompressionStream returns a TransformStream that compresses the bytes
// written to it in format.
func NewCompressionStream(format Format) (*streams.TransformStream[[]byte, []byte], error) {
	if !format.Supported() {
		return nil, unsupported(format)
	}
	config := streams.DefaultTransformConfig[[]byte, []byte]()
	config.Name = "compress-" + string(format)
	return streams.NewTransformStreamWithConfig[[]byte, []byte](&compressor{format: format}, config)
}

// NewDecompressionStream returns a TransformStream that decompresses bytes
// in format. Corrupt or truncated input errors both sides.
func NewDecompressionStream(format Format) (*streams.TransformStream[[]byte, []byte], error) {
	if !format.Supported() {
		return nil, unsupported(format)
	}
	config := streams.DefaultTransformConfig[[]byte, []byte]()
	config.Name = "decompress-" + string(format)
	return streams.NewTransformStreamWithConfig[[]byte, []byte](&decompressor{format: format}, config)
}

// outputBuffer collects encoder or decoder output between emissions.
type outputBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (o *outputBuffer) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.Write(p)
}

// emit enqueues everything buffered so far as one chunk.
func (o *outputBuffer) emit(c streams.TransformController[[]byte]) error {
	o.mu.Lock()
	if o.buf.Len() == 0 {
		o.mu.Unlock()
		return nil
	}
	chunk := bytes.Clone(o.buf.Bytes())
	o.buf.Reset()
	o.mu.Unlock()
	return c.Enqueue(chunk)
}

type compressor struct {
	format Format
	out    outputBuffer
	w      io.WriteCloser
}

func (z *compressor) Start(context.Context, streams.TransformController[[]byte]) error {
	w, err := newWriter(z.format, &z.out)
	if err != nil {
		return err
	}
	z.w = w
	return nil
}

func (z *compressor) Transform(_ context.Context, chunk []byte, c streams.TransformController[[]byte]) error {
	if _, err := z.w.Write(chunk); err != nil {
		return fmt.Errorf("compression: %s: %w", z.format, err)
	}
	return z.out.emit(c)
}

func (z *compressor) Flush(_ context.Context, c streams.TransformController[[]byte]) error {
	if err := z.w.Close(); err != nil {
		return fmt.Errorf("compression: %s: %w", z.format, err)
	}
	return z.out.emit(c)
}

// decompressor feeds written chunks through an io.Pipe to a decoder running
// in its own goroutine.
type decompressor struct {
	format Format
	out    outputBuffer
	pw     *io.PipeWriter
	done   chan struct{}
	err    error // set before done is closed
}

func (d *decompressor) Start(ctx context.Context, _ streams.TransformController[[]byte]) error {
	pr, pw := io.Pipe()
	d.pw = pw
	d.done = make(chan struct{})
	go d.decode(pr)

	// the writable side's context ends on abort, error or after close
	go func() {
		select {
		case <-ctx.Done():
			_ = pw.CloseWithError(context.Cause(ctx))
		case <-d.done:
		}
	}()
	return nil
}

func (d *decompressor) decode(pr *io.PipeReader) {
	defer close(d.done)

	r, err := newReader(d.format, pr)
	if err == nil {
		_, err = io.Copy(&d.out, r)
		if cerr := r.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		d.err = fmt.Errorf("compression: %s: %w", d.format, err)
		_ = pr.CloseWithError(d.err)
		return
	}
	_ = pr.CloseWithError(ErrTrailingData)
}

func (d *decompressor) Transform(_ context.Context, chunk []byte, c streams.TransformController[[]byte]) error {
	if _, err := d.pw.Write(chunk); err != nil {
		<-d.done
		if d.err != nil {
			return d.err
		}
		return err
	}
	return d.out.emit(c)
}

func (d *decompressor) Flush(_ context.Context, c streams.TransformController[[]byte]) error {
	_ = d.pw.Close()
	<-d.done
	if d.err != nil {
		return d.err
	}
	return d.out.emit(c)
}
