package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	wserrors "github.com/vnykmshr/webstreams/pkg/common/errors"
	"github.com/vnykmshr/webstreams/pkg/compression"
	"github.com/vnykmshr/webstreams/pkg/redisstream"
	"github.com/vnykmshr/webstreams/pkg/streamio"
	"github.com/vnykmshr/webstreams/pkg/streams"
	"github.com/vnykmshr/webstreams/pkg/transforms"
)

type pipeCommand struct {
	root *rootCommand

	in         string
	out        string
	compress   string
	decompress string
	lines      bool
	rate       float64
	burst      int
	rateKey    string
}

func newPipeCommand(root *rootCommand) *cobra.Command {
	p := &pipeCommand{root: root}
	cmd := &cobra.Command{
		Use:   "pipe",
		Short: "pipe input to output through optional transforms",
		Long: `Pipe copies the input to the output through a chain of streams.

Stages run in this order: decompress, split into lines, throttle, join lines,
compress. Every stage applies backpressure, so a slow output slows the
reading of the input.`,
		Example: `  webstreams pipe --in access.log.gz --decompress gzip --lines --rate 100
  cat data | webstreams pipe --compress zstd > data.zst`,
		Args: cobra.NoArgs,
		RunE: p.run,
	}

	flags := cmd.Flags()
	flags.StringVarP(&p.in, "in", "i", "", "input file (default stdin)")
	flags.StringVarP(&p.out, "out", "o", "", "output file (default stdout)")
	flags.StringVar(&p.compress, "compress", "", "compress the output: gzip, deflate, deflate-raw, br or zstd")
	flags.StringVar(&p.decompress, "decompress", "", "decompress the input: gzip, deflate, deflate-raw, br or zstd")
	flags.BoolVar(&p.lines, "lines", false, "frame the data as lines; throttling then applies per line")
	flags.Float64Var(&p.rate, "rate", 0, "maximum chunks (or lines) per second, 0 for unlimited")
	flags.IntVar(&p.burst, "burst", 1, "chunks allowed at once above --rate")
	flags.StringVar(&p.rateKey, "rate-key", "", "share the --rate limit through Redis under this key (needs --redis-addr)")
	return cmd
}

func (p *pipeCommand) ioConfig(name string) streamio.Config {
	config := streamio.DefaultConfig()
	config.ChunkSize = p.root.config.ChunkSize
	config.Stream.Name = name
	config.Stream.Strategy = streams.ByteLengthQueuingStrategy[[]byte](p.root.config.HighWaterMark)
	config.Stream.Logger = p.root.log(name)
	config.Stream.Metrics = p.root.metrics
	return config
}

func (p *pipeCommand) openInput(cmd *cobra.Command) (io.Reader, error) {
	if p.in == "" || p.in == "-" {
		// stdin stays open after the pipe
		return struct{ io.Reader }{cmd.InOrStdin()}, nil
	}
	f, err := os.Open(p.in)
	if err != nil {
		return nil, fmt.Errorf("opening input: %w", err)
	}
	return f, nil
}

func (p *pipeCommand) openOutput(cmd *cobra.Command) (io.Writer, error) {
	if p.out == "" || p.out == "-" {
		return struct{ io.Writer }{cmd.OutOrStdout()}, nil
	}
	f, err := os.Create(p.out)
	if err != nil {
		return nil, fmt.Errorf("creating output: %w", err)
	}
	return f, nil
}

func (p *pipeCommand) validate() error {
	for _, format := range []string{p.compress, p.decompress} {
		if format != "" && !compression.Format(format).Supported() {
			return fmt.Errorf("%w: %q", compression.ErrUnsupportedFormat, format)
		}
	}
	if p.rateKey != "" && p.root.config.RedisAddr == "" {
		return fmt.Errorf("--rate-key needs --redis-addr or WEBSTREAMS_REDIS_ADDR")
	}
	if p.rateKey != "" && p.rate <= 0 {
		return fmt.Errorf("--rate-key needs a positive --rate")
	}
	if p.rate < 0 || (p.rate > 0 && p.burst <= 0) {
		return fmt.Errorf("--rate must not be negative and --burst must be positive")
	}
	return nil
}

func (p *pipeCommand) run(cmd *cobra.Command, _ []string) error {
	if err := p.validate(); err != nil {
		return err
	}
	ctx := p.root.ctx
	log := p.root.log("pipe")

	in, err := p.openInput(cmd)
	if err != nil {
		return err
	}
	src, err := streamio.FromReaderWithConfig(in, p.ioConfig("input"))
	if err != nil {
		return err
	}

	out, err := p.openOutput(cmd)
	if err != nil {
		_ = src.Cancel(ctx, err)
		return err
	}
	dst, err := streamio.ToWriterWithConfig(out, p.ioConfig("output"))
	if err != nil {
		_ = src.Cancel(ctx, err)
		return err
	}

	waiter, closeWaiter, err := p.waiter()
	if err != nil {
		_ = src.Cancel(ctx, err)
		_ = dst.Abort(ctx, err)
		return err
	}
	defer closeWaiter()

	stream, err := p.chain(ctx, src, waiter)
	if err != nil {
		_ = dst.Abort(ctx, err)
		return err
	}

	start := time.Now()
	if err := stream.PipeTo(ctx, dst, streams.PipeOptions{}); err != nil {
		if wserrors.IsCancellation(err) || ctx.Err() != nil {
			log.WithField("duration", time.Since(start)).Info("pipe interrupted")
		}
		return fmt.Errorf("pipe: %w", err)
	}
	log.WithField("duration", time.Since(start)).Debug("pipe finished")
	return nil
}

// waiter returns the Redis limiter for --rate-key. Without a key it
// returns nil and throttle uses a local token bucket.
func (p *pipeCommand) waiter() (transforms.Waiter, func(), error) {
	nop := func() {}
	if p.rate <= 0 || p.rateKey == "" {
		return nil, nop, nil
	}

	client := redis.NewClient(&redis.Options{Addr: p.root.config.RedisAddr})
	limiter, err := redisstream.NewLimiter(client, p.rateKey, int64(p.rate), time.Second)
	if err != nil {
		_ = client.Close()
		return nil, nop, err
	}
	return limiter, func() { _ = client.Close() }, nil
}

func throttle[T any](rate float64, burst int, waiter transforms.Waiter) (*streams.TransformStream[T, T], error) {
	if waiter != nil {
		return transforms.ThrottleWith[T](waiter), nil
	}
	return transforms.Throttle[T](rate, burst)
}

func (p *pipeCommand) chain(ctx context.Context, stream *streams.ReadableStream[[]byte], waiter transforms.Waiter) (*streams.ReadableStream[[]byte], error) {
	opts := streams.PipeOptions{}

	if p.decompress != "" {
		ds, err := compression.NewDecompressionStream(compression.Format(p.decompress))
		if err != nil {
			return nil, err
		}
		if stream, err = streams.PipeThrough[[]byte, []byte](ctx, stream, ds, opts); err != nil {
			return nil, err
		}
	}

	if p.lines {
		lines, err := streams.PipeThrough[[]byte, string](ctx, stream, transforms.SplitLines(), opts)
		if err != nil {
			return nil, err
		}
		if p.rate > 0 {
			th, err := throttle[string](p.rate, p.burst, waiter)
			if err != nil {
				return nil, err
			}
			if lines, err = streams.PipeThrough[string, string](ctx, lines, th, opts); err != nil {
				return nil, err
			}
		}
		if stream, err = streams.PipeThrough[string, []byte](ctx, lines, transforms.JoinLines(), opts); err != nil {
			return nil, err
		}
	} else if p.rate > 0 {
		th, err := throttle[[]byte](p.rate, p.burst, waiter)
		if err != nil {
			return nil, err
		}
		if stream, err = streams.PipeThrough[[]byte, []byte](ctx, stream, th, opts); err != nil {
			return nil, err
		}
	}

	if p.compress != "" {
		cs, err := compression.NewCompressionStream(compression.Format(p.compress))
		if err != nil {
			return nil, err
		}
		if stream, err = streams.PipeThrough[[]byte, []byte](ctx, stream, cs, opts); err != nil {
			return nil, err
		}
	}
	return stream, nil
}
