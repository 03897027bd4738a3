package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/vnykmshr/webstreams/pkg/schedule"
	"github.com/vnykmshr/webstreams/pkg/streamio"
	"github.com/vnykmshr/webstreams/pkg/streams"
	"github.com/vnykmshr/webstreams/pkg/transforms"
)

type ticksCommand struct {
	root *rootCommand

	expr    string
	count   int
	seconds bool
	utc     bool
	layout  string
}

func newTicksCommand(root *rootCommand) *cobra.Command {
	t := &ticksCommand{root: root}
	cmd := &cobra.Command{
		Use:   "ticks",
		Short: "print the activation times of a cron expression as they happen",
		Example: `  webstreams ticks --cron "*/5 * * * *" --count 3
  webstreams ticks --cron "@every 10s" --utc`,
		Args: cobra.NoArgs,
		RunE: t.run,
	}

	flags := cmd.Flags()
	flags.StringVar(&t.expr, "cron", "", "cron expression or descriptor such as @hourly")
	flags.IntVarP(&t.count, "count", "n", 0, "stop after this many ticks, 0 for no limit")
	flags.BoolVar(&t.seconds, "seconds", false, "the expression starts with a seconds field")
	flags.BoolVar(&t.utc, "utc", false, "evaluate the expression in UTC instead of local time")
	flags.StringVar(&t.layout, "format", time.RFC3339, "Go time layout of the printed ticks")
	_ = cmd.MarkFlagRequired("cron")
	return cmd
}

func (t *ticksCommand) run(cmd *cobra.Command, _ []string) error {
	ctx := t.root.ctx

	config := schedule.DefaultConfig()
	config.Seconds = t.seconds
	config.MaxTicks = t.count
	config.Clock = t.root.clock
	config.Stream.Logger = t.root.log("ticks")
	config.Stream.Metrics = t.root.metrics
	if t.utc {
		config.Location = time.UTC
	}

	ticks, err := schedule.NewTickStream(t.expr, config)
	if err != nil {
		return err
	}

	layout := t.layout
	formatted, err := streams.PipeThrough[time.Time, []byte](ctx, ticks, transforms.Map(func(tick time.Time) []byte {
		return []byte(tick.Format(layout) + "\n")
	}), streams.PipeOptions{})
	if err != nil {
		return err
	}

	outConfig := streamio.DefaultConfig()
	outConfig.Stream.Name = "stdout"
	outConfig.Stream.Logger = t.root.log("ticks")
	dst, err := streamio.ToWriterWithConfig(struct{ io.Writer }{cmd.OutOrStdout()}, outConfig)
	if err != nil {
		return err
	}
	if err := formatted.PipeTo(ctx, dst, streams.PipeOptions{}); err != nil {
		return fmt.Errorf("ticks: %w", err)
	}
	return nil
}
