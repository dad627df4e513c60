package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/modelresolver/pkg/modelcontext"
)

func newPolicyCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect authorization policies",
	}
	cmd.AddCommand(newPolicyListCommand(opts))
	cmd.AddCommand(newPolicyCheckCommand(opts))
	return cmd
}

func newPolicyListCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the active policy modules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				modules := a.authz.Modules()
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), modules)
				}
				for _, m := range modules {
					fmt.Fprintln(cmd.OutOrStdout(), m)
				}
				return nil
			})
		},
	}
}

func newPolicyCheckCommand(opts *globalOptions) *cobra.Command {
	var ctxOpts contextOptions

	cmd := &cobra.Command{
		Use:     "check",
		Short:   "Check whether the principal may load a pointer",
		Example: `  modelctl policy check --principal alice --workspace PROD-1/feature-x`,
		RunE: func(cmd *cobra.Command, args []string) error {
			mctx, err := ctxOpts.build()
			if err != nil {
				return err
			}
			ptr, ok := mctx.(*modelcontext.Pointer)
			if !ok {
				return fmt.Errorf("policy check needs exactly one pointer source")
			}

			return withApp(cmd.Context(), opts, func(a *app) error {
				if err := a.authz.Authorize(cmd.Context(), opts.identity(), ptr); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "allowed: %s\n", ptr)
				return err
			})
		},
	}

	ctxOpts.register(cmd)
	return cmd
}
