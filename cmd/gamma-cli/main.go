package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/integrail/gamma-client/internal/build"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := &rootOpts{}
	rootCmd := &cobra.Command{
		Use:           "gamma",
		Version:       build.Version,
		Short:         "Gamma generates presentations from text",
		Long:          "Submit presentation generation jobs to the Gamma API, wait for them and download the result",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	opts.register(rootCmd)
	rootCmd.AddCommand(
		newCreateCmd(opts),
		newStatusCmd(opts),
		newFetchCmd(opts),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
