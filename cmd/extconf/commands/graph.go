package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newGraphCommand() *cobra.Command {
	var dot bool

	cmd := &cobra.Command{
		Use:   "graph <file.col>",
		Short: "Show the embedding order of the profiles in a file",
		Long: `Show the profiles of a configuration file in start order. A profile is
placed after the profile it extends and after every profile of the file
that one of its output ports embeds. Profiles on the same level do not
depend on each other.

Profiles whose extends chain is broken are left out. An embedding cycle
is reported as an error.`,
		Example: `  # Levels, dependencies first
  extconf graph deploy/prod.col

  # Render with Graphviz
  extconf graph deploy/prod.col --dot | dot -Tsvg > embeddings.svg`,
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

			graph, err := tree.EmbeddingGraph()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case dot:
				_, err = io.WriteString(out, graph.ToDOT())
				return err
			case jsonOutput:
				return printJSON(out, graph)
			}

			for level, ids := range graph.Levels {
				fmt.Fprintf(out, "%d: %s\n", level, strings.Join(ids, ", "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dot, "dot", false, "Output in Graphviz DOT format")

	return cmd
}
