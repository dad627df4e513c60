package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openfroyo/modelresolver/pkg/grammar"
	"github.com/openfroyo/modelresolver/pkg/model"
)

func newResolveCommand(opts *globalOptions) *cobra.Command {
	var (
		ctxOpts       contextOptions
		packageOffset string
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve and compile a model",
		Long: `Resolve a model context and compile it.

Prints the compiled elements. Compilation errors are reported with the
source location of the offending element when one is known.`,
		Example: `  # Compile a published version
  modelctl resolve --version org.finos:trades:1.2.0

  # Compile a workspace together with a local model file
  modelctl resolve --workspace PROD-1/feature-x --text extra.cue

  # Place relative paths under a package
  modelctl resolve --text model.cue --package-offset org::finos`,
		RunE: func(cmd *cobra.Command, args []string) error {
			mctx, err := ctxOpts.build()
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), opts, func(a *app) error {
				compiled, err := a.manager.ResolveModel(cmd.Context(), mctx, a.cfg.ClientVersion, opts.identity(), packageOffset)
				if err != nil {
					return err
				}

				summary := summarize(compiled)
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), summary)
				}
				return writeSummary(cmd.OutOrStdout(), summary)
			})
		},
	}

	ctxOpts.register(cmd)
	cmd.Flags().StringVar(&packageOffset, "package-offset", "", "package that relative element paths are placed under")
	return cmd
}

func newDataCommand(opts *globalOptions) *cobra.Command {
	var ctxOpts contextOptions

	cmd := &cobra.Command{
		Use:   "data",
		Short: "Resolve a model context to raw data",
		Long: `Resolve a model context to its raw, uncompiled data and print it as YAML
(or JSON with --json).`,
		Example: `  modelctl data --version org.finos:trades:latest --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			mctx, err := ctxOpts.build()
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), opts, func(a *app) error {
				data, err := a.manager.ResolveData(cmd.Context(), mctx, a.cfg.ClientVersion, opts.identity())
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), data)
				}
				return writeYAML(cmd.OutOrStdout(), data)
			})
		},
	}

	ctxOpts.register(cmd)
	return cmd
}

func newReturnTypeCommand(opts *globalOptions) *cobra.Command {
	var (
		ctxOpts contextOptions
		params  []string
	)

	cmd := &cobra.Command{
		Use:   "return-type BODY",
		Short: "Infer the return type of a lambda",
		Long: `Infer the static return type of a lambda body against a resolved model.

Parameters are declared as name=Type[multiplicity]; the body navigates from
a parameter, e.g. '$p.firm.name'.`,
		Example: `  modelctl return-type --version org.finos:hr:1.0.0 --param p=org::finos::Person '$p.firm.legalName'`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lambda, err := parseLambda(args[0], params)
			if err != nil {
				return err
			}
			mctx, err := ctxOpts.build()
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), opts, func(a *app) error {
				td, err := a.manager.LambdaReturnType(cmd.Context(), lambda, mctx, a.cfg.ClientVersion, opts.identity())
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), td)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), td.String())
				return err
			})
		},
	}

	ctxOpts.register(cmd)
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "lambda parameter name=Type[multiplicity]")
	return cmd
}

func parseLambda(body string, params []string) (model.Lambda, error) {
	lambda := model.Lambda{Body: body}
	for _, p := range params {
		name, typ, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return model.Lambda{}, fmt.Errorf("invalid parameter %q: want name=Type", p)
		}
		td, ok := grammar.ParseTypeRef(typ)
		if !ok {
			return model.Lambda{}, fmt.Errorf("invalid parameter type %q", typ)
		}
		lambda.Parameters = append(lambda.Parameters, model.Property{Name: name, Type: td.Path, Multiplicity: td.Multiplicity})
	}
	return lambda, nil
}
