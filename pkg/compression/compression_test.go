package compression

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"

	"github.com/vnykmshr/webstreams/internal/testutil"
	wserrors "github.com/vnykmshr/webstreams/pkg/common/errors"
	"github.com/vnykmshr/webstreams/pkg/streams"
)

func concat(chunks [][]byte) []byte {
	var out []byte
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

func through(ctx context.Context, t *testing.T, input [][]byte, pair streams.ReadableWritablePair[[]byte, []byte]) ([]byte, error) {
	t.Helper()
	out, err := streams.PipeThrough[[]byte, []byte](ctx, streams.FromSlice(input), pair, streams.PipeOptions{})
	testutil.AssertNoError(t, err)
	chunks, err := streams.ReadAll(ctx, out)
	return concat(chunks), err
}

func split(data []byte, size int) [][]byte {
	var chunks [][]byte
	for len(data) > size {
		chunks = append(chunks, data[:size])
		data = data[size:]
	}
	return append(chunks, data)
}

func TestRoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog\n", 200))

	for _, format := range Formats() {
		format := format
		t.Run(string(format), func(t *testing.T) {
			ctx, cancel := testutil.WithTimeout(t)
			defer cancel()

			cs, err := NewCompressionStream(format)
			testutil.AssertNoError(t, err)
			compressed, err := through(ctx, t, split(payload, 512), cs)
			testutil.AssertNoError(t, err)
			if len(compressed) >= len(payload) {
				t.Errorf("compressed %d bytes into %d", len(payload), len(compressed))
			}

			ds, err := NewDecompressionStream(format)
			testutil.AssertNoError(t, err)
			restored, err := through(ctx, t, split(compressed, 7), ds)
			testutil.AssertNoError(t, err)
			testutil.AssertSliceEqual(t, restored, payload)
		})
	}
}

func TestCompressionIsStandardFormat(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	payload := []byte("hello, gzip")
	cs, err := NewCompressionStream(Gzip)
	testutil.AssertNoError(t, err)
	compressed, err := through(ctx, t, [][]byte{payload}, cs)
	testutil.AssertNoError(t, err)

	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	testutil.AssertNoError(t, err)
	got, err := io.ReadAll(zr)
	testutil.AssertNoError(t, err)
	testutil.AssertSliceEqual(t, got, payload)
}

func TestDecompressBrotliFromLibrary(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	_, err := bw.Write([]byte("brotli payload"))
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, bw.Close())

	ds, err := NewDecompressionStream(Brotli)
	testutil.AssertNoError(t, err)
	got, err := through(ctx, t, split(buf.Bytes(), 3), ds)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, string(got), "brotli payload")
}

func TestDecompressCorruptInput(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	ds, err := NewDecompressionStream(Gzip)
	testutil.AssertNoError(t, err)
	_, err = through(ctx, t, [][]byte{[]byte("definitely not gzip")}, ds)
	testutil.AssertError(t, err)
	testutil.Eventually(t, func() bool {
		return ds.Writable().State() == streams.WritableStateErrored
	}, time.Second, 5*time.Millisecond)
}

func TestDecompressTruncatedInput(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	cs, err := NewCompressionStream(Gzip)
	testutil.AssertNoError(t, err)
	compressed, err := through(ctx, t, [][]byte{[]byte(strings.Repeat("abc", 100))}, cs)
	testutil.AssertNoError(t, err)

	ds, err := NewDecompressionStream(Gzip)
	testutil.AssertNoError(t, err)
	_, err = through(ctx, t, [][]byte{compressed[:len(compressed)/2]}, ds)
	testutil.AssertErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDecompressAbortStopsDecoder(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	ds, err := NewDecompressionStream(Zstd)
	testutil.AssertNoError(t, err)

	stop := errors.New("client went away")
	testutil.AssertNoError(t, ds.Writable().Abort(ctx, stop))

	r, err := ds.Readable().GetReader()
	testutil.AssertNoError(t, err)
	_, err = r.Read(ctx)
	testutil.AssertErrorIs(t, err, stop)
}

func TestUnsupportedFormat(t *testing.T) {
	_, err := NewCompressionStream("lzw")
	testutil.AssertErrorIs(t, err, ErrUnsupportedFormat)

	_, err = NewDecompressionStream("")
	testutil.AssertErrorIs(t, err, ErrUnsupportedFormat)
	testutil.AssertErrorIs(t, err, wserrors.ErrUnsupported)

	testutil.AssertEqual(t, Zstd.Supported(), true)
	testutil.AssertEqual(t, Format("snappy").Supported(), false)
}
