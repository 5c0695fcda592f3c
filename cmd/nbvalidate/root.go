package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/neuronbridge/nbvalidate/internal/cli"
	"github.com/neuronbridge/nbvalidate/internal/cli/config"
	"github.com/neuronbridge/nbvalidate/pkg/validator"
)

// newRootCmd builds the command tree. Each call returns fresh commands with
// their own flag state.
func newRootCmd() *cobra.Command {
	var (
		cfgFile     string
		profileName string
		verbose     bool
	)

	rootCmd := &cobra.Command{
		Use:   "nbvalidate",
		Short: "Validates the metadata of a NeuronBridge data release.",
		Long: `nbvalidate checks every image lookup and precomputed match file of a
NeuronBridge release against the data model.

Image lookups are validated first and their published names are indexed; match
files are then validated in batches and checked against that index. Work runs
on local cores or on a cluster of "nbvalidate worker" servers.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			opts, logger, err := config.LoadAndValidate(cfgFile, profileName, version, verbose, cmd.Flags())
			if err != nil {
				return err
			}
			return cli.Run(ctx, opts, logger, cli.DefaultStreams(opts.Verbose))
		},
	}
	rootCmd.SetVersionTemplate(`{{.Use}} version {{.Version}}` + "\n")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Configuration file path (default is search ., $HOME/.config/nbvalidate/)")
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "Name of configuration profile to use")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose (debug) logging output (disables progress display)")
	config.RegisterFlags(rootCmd.Flags())

	rootCmd.AddCommand(newWorkerCmd(&verbose))
	return rootCmd
}

func newWorkerCmd(verbose *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Runs a worker server that executes validation tasks for a remote run.",
		Long: `worker serves validation tasks over HTTP until interrupted. Start one per
node and point the controlling run at it with --cluster, or export head_node
and port. Workers read the release from the same paths as the controller.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			opts, listen, _, err := config.LoadWorker(version, *verbose, cmd.Flags())
			if err != nil {
				return err
			}
			return validator.ServeWorker(ctx, listen, opts)
		},
	}
	config.RegisterWorkerFlags(cmd.Flags())
	return cmd
}

// Execute runs the root command with a background context.
func Execute() error {
	return newRootCmd().ExecuteContext(context.Background())
}
