package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/absmach/fedcoord/cli"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "fedcoord",
		Short: "Federated training coordinator CLI",
		Long:  "Command line tool for starting training jobs on a fedcoord coordinator and following their progress.",
	}
	rootCmd.PersistentFlags().StringP("addr", "a", cli.DefaultAddr, "Coordinator gRPC address")

	rootCmd.AddCommand(cli.NewFLCmds()...)
	rootCmd.AddCommand(cli.NewEventsCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
