// Command gotasks runs the task-list API server and its operator tools.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gotasks",
		Short:         "Task lists API with cookie-based refresh sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newHashPasswordCommand())
	cmd.AddCommand(newLoadtestCommand())
	cmd.AddCommand(newSecurityReportCommand())
	cmd.AddCommand(newBenchCompareCommand())
	return cmd
}
