// Package commands implements the modelctl command tree.
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath    string
	jsonOutput    bool
	verbose       bool
	principal     string
	groups        []string
	token         string
	clientVersion string
	metricsAddr   string
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	return newRootCommand(version, commit, buildDate).ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "modelctl",
		Short: "Resolve, compile and archive models",
		Long: `modelctl resolves model contexts into raw model data and compiled models.

A context is built from one or more sources:
  - published project versions from the depot (--version group:artifact:version)
  - SDLC workspaces and project revisions (--workspace, --revision)
  - versions held in the local archive (--archived name@version)
  - inline model text and data files (--text, --data)

Several sources form a combination whose members are merged in order.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file path")
	flags.BoolVar(&opts.jsonOutput, "json", false, "output in JSON format")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&opts.principal, "principal", os.Getenv("MODELCTL_PRINCIPAL"), "principal to resolve as (default anonymous)")
	flags.StringSliceVar(&opts.groups, "group", nil, "groups of the principal")
	flags.StringVar(&opts.token, "token", os.Getenv("MODELCTL_TOKEN"), "bearer token forwarded to remote stores")
	flags.StringVar(&opts.clientVersion, "client-version", "", "model protocol version sent to remote stores")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the command runs")

	rootCmd.AddCommand(newResolveCommand(opts))
	rootCmd.AddCommand(newDataCommand(opts))
	rootCmd.AddCommand(newReturnTypeCommand(opts))
	rootCmd.AddCommand(newArchiveCommand(opts))
	rootCmd.AddCommand(newPolicyCommand(opts))

	return rootCmd
}
