package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/modelresolver/pkg/loaders/archive"
)

func newArchiveCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Manage the local archive of project versions",
		Long: `Manage the local SQLite archive. Archived versions are verified against
their BLAKE3 checksum whenever they are loaded.`,
	}

	cmd.AddCommand(newArchiveImportCommand(opts))
	cmd.AddCommand(newArchiveSaveCommand(opts))
	cmd.AddCommand(newArchiveListCommand(opts))
	cmd.AddCommand(newArchiveDeleteCommand(opts))
	return cmd
}

func parseArchiveTarget(s string) (name, version string, err error) {
	name, version, ok := strings.Cut(s, "@")
	if !ok || name == "" || version == "" {
		return "", "", fmt.Errorf("invalid archive target %q: want name@version", s)
	}
	return name, version, nil
}

func newArchiveImportCommand(opts *globalOptions) *cobra.Command {
	var (
		target    string
		overwrite bool
	)

	cmd := &cobra.Command{
		Use:     "import FILE",
		Short:   "Archive a model data file (YAML or JSON)",
		Example: `  modelctl archive import trades.yaml --to trades@1.0.0`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, version, err := parseArchiveTarget(target)
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), opts, func(a *app) error {
				store, err := a.requireArchive()
				if err != nil {
					return err
				}

				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", args[0], err)
				}
				defer f.Close()

				v, err := archive.NewImporter(store).ImportDocument(cmd.Context(), f, archive.ImportOptions{
					Name:      name,
					Version:   version,
					Origin:    "file:" + args[0],
					Overwrite: overwrite,
				})
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), v)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "archived %s@%s (%d elements, blake3 %s)\n", v.Name, v.Version, v.ElementCount, v.Checksum)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&target, "to", "", "archive target name@version")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing archived version")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newArchiveSaveCommand(opts *globalOptions) *cobra.Command {
	var (
		ctxOpts   contextOptions
		target    string
		overwrite bool
	)

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Resolve a model context and archive its data",
		Example: `  # Keep an offline copy of a published version
  modelctl archive save --version org.finos:trades:1.2.0 --to trades@1.2.0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, version, err := parseArchiveTarget(target)
			if err != nil {
				return err
			}
			mctx, err := ctxOpts.build()
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), opts, func(a *app) error {
				store, err := a.requireArchive()
				if err != nil {
					return err
				}

				data, err := a.manager.ResolveData(cmd.Context(), mctx, a.cfg.ClientVersion, opts.identity())
				if err != nil {
					return err
				}

				v, err := archive.NewImporter(store).Import(cmd.Context(), data, archive.ImportOptions{
					Name:      name,
					Version:   version,
					Overwrite: overwrite,
				})
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), v)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "archived %s@%s (%d elements, blake3 %s)\n", v.Name, v.Version, v.ElementCount, v.Checksum)
				return err
			})
		},
	}

	ctxOpts.register(cmd)
	cmd.Flags().StringVar(&target, "to", "", "archive target name@version")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing archived version")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newArchiveListCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list [NAME]",
		Short: "List archived versions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}

			return withApp(cmd.Context(), opts, func(a *app) error {
				store, err := a.requireArchive()
				if err != nil {
					return err
				}

				infos, err := store.List(cmd.Context(), name)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), infos)
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tVERSION\tELEMENTS\tARCHIVED\tORIGIN")
				for _, info := range infos {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
						info.Name, info.Version, info.ElementCount, info.CreatedAt.Format(time.RFC3339), info.Origin)
				}
				return tw.Flush()
			})
		},
	}
}

func newArchiveDeleteCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME@VERSION",
		Short: "Delete an archived version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, version, err := parseArchiveTarget(args[0])
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), opts, func(a *app) error {
				store, err := a.requireArchive()
				if err != nil {
					return err
				}
				if err := store.Delete(cmd.Context(), name, version); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s@%s\n", name, version)
				return err
			})
		},
	}
}
