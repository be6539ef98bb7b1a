package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newParseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <file.col>",
		Short: "Parse a configuration file and list its profiles",
		Long: `Parse a configuration file, its includes, and the conf directories of the
packages it uses, then list every package with its profiles and every
source file that was read.`,
		Example: `  # List the profiles of a file
  extconf parse deploy/prod.col

  # Machine readable, with source digests
  extconf parse --json deploy/prod.col`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			tree, err := env.parse(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			summary := tree.Summary()
			if jsonOutput {
				return printJSON(out, summary)
			}

			for _, pkg := range tree.Packages() {
				fmt.Fprintf(out, "%s: %s\n", pkg, strings.Join(summary.Packages[pkg], ", "))
			}
			fmt.Fprintln(out, "sources:")
			for _, src := range summary.Sources {
				fmt.Fprintf(out, "  %s  %s\n", short(src.Digest, 12), src.Path)
			}
			return nil
		},
	}

	return cmd
}
