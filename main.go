// Command meridian ingests Malaysian news sources, clusters articles into stories and keeps each
// story's title and summary current.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "meridian",
		Short:         "Malaysian news ingestion and story clustering",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); environment variables override it")

	root.AddCommand(
		serveCommand(),
		workerCommand(),
		dispatchCommand(),
		scrapeCommand(),
		migrateCommand(),
	)
	return root
}
