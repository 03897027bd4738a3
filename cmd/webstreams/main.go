// Command webstreams runs backpressured byte pipelines from the shell.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vnykmshr/webstreams/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(ctx).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "webstreams:", err)
		stop()
		os.Exit(cli.ExitCode(err))
	}
}
