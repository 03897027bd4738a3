// Package cli implements the webstreams command.
package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	wserrors "github.com/vnykmshr/webstreams/pkg/common/errors"
	"github.com/vnykmshr/webstreams/pkg/metrics"
	"github.com/vnykmshr/webstreams/pkg/schedule"
)

type rootCommand struct {
	ctx    context.Context
	cmd    *cobra.Command
	logger *logrus.Logger
	clock  schedule.Clock

	flags  Config
	config Config

	promRegistry *prometheus.Registry
	metrics      *metrics.Registry
	server       *http.Server
}

// NewRootCommand builds the webstreams command tree. ctx ends every
// running pipeline when it is cancelled.
func NewRootCommand(ctx context.Context) *cobra.Command {
	return newRootCommand(ctx, logrus.New()).cmd
}

// ExitCode maps a command error to a process exit status: 0 on success,
// 2 for rejected flags or configuration, 1 for anything else.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case wserrors.IsValidationError(err):
		return 2
	default:
		return 1
	}
}

func newRootCommand(ctx context.Context, logger *logrus.Logger) *rootCommand {
	c := &rootCommand{ctx: ctx, logger: logger, clock: schedule.SystemClock{}}
	c.cmd = &cobra.Command{
		Use:                "webstreams",
		Short:              "move bytes through backpressured stream pipelines",
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  c.persistentPreRunE,
		PersistentPostRunE: c.persistentPostRunE,
	}
	c.flags.bindFlags(c.cmd.PersistentFlags())

	c.cmd.AddCommand(newPipeCommand(c), newTicksCommand(c))
	return c
}

func (c *rootCommand) persistentPreRunE(cmd *cobra.Command, _ []string) error {
	env, err := readEnvConfig()
	if err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}
	c.config = c.flags.applyFlags(env, cmd.Flags())
	if err := c.config.validate(); err != nil {
		return err
	}

	c.logger.SetOutput(cmd.ErrOrStderr())
	c.logger.SetLevel(logrus.InfoLevel)
	if c.config.Verbose {
		c.logger.SetLevel(logrus.DebugLevel)
	}

	c.promRegistry = prometheus.NewRegistry()
	c.metrics = metrics.Config{
		Enabled:  c.config.MetricsAddr != "",
		Registry: c.promRegistry,
	}.Build()
	if c.config.MetricsAddr != "" {
		return c.startMetricsServer()
	}
	return nil
}

func (c *rootCommand) persistentPostRunE(*cobra.Command, []string) error {
	if c.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.server.Shutdown(ctx)
}

func (c *rootCommand) startMetricsServer() error {
	ln, err := net.Listen("tcp", c.config.MetricsAddr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.promRegistry, promhttp.HandlerOpts{}))
	c.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	c.logger.WithField("addr", ln.Addr().String()).Info("serving metrics")
	go func() {
		if err := c.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.WithError(err).Error("metrics server stopped")
		}
	}()
	return nil
}

func (c *rootCommand) log(component string) logrus.FieldLogger {
	return c.logger.WithField("component", component)
}
