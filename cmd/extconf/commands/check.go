package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/openfroyo/extconf/pkg/engine"
	"github.com/spf13/cobra"
)

// checkReport is the --json output of check.
type checkReport struct {
	File     string   `json:"file"`
	Regions  int      `json:"regions"`
	Problems []string `json:"problems"`
}

func newCheckCommand() *cobra.Command {
	var parallel int

	cmd := &cobra.Command{
		Use:   "check <file.col>",
		Short: "Check a configuration file",
		Long: `Check a configuration file and report every problem found.

This command checks:
  - syntax, duplicate profiles and unknown packages (fatal)
  - extends targets and inheritance cycles
  - embedding cycles between profiles
  - every merged profile against the #Region schema and the region
    policies, embedded and extended profiles first`,
		Example: `  # Check a file
  extconf check deploy/prod.col

  # Check with custom policies
  extconf check --settings ci/extconf.yaml deploy/prod.col`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			ctx := cmd.Context()
			path := args[0]

			tree, err := env.parse(ctx, path)
			if err != nil {
				return err
			}

			policies, err := env.policies(ctx)
			if err != nil {
				return err
			}

			var problems *multierror.Error
			inheritance := tree.CheckInheritance()
			problems = multierror.Append(problems, inheritance)

			// Regions with a broken extends chain are left out of the
			// graph; they are reported above.
			units := tree.EmbeddingUnits()
			graph, err := engine.NewDAGBuilder().BuildGraph(units)
			if err != nil {
				problems = multierror.Append(problems, err)
				for i := range units {
					units[i].Dependencies = nil
				}
				if graph, err = engine.NewDAGBuilder().BuildGraph(units); err != nil {
					return err
				}
			}

			results, err := engine.NewParallelScheduler(parallel).Run(ctx, graph,
				func(ctx context.Context, node *engine.GraphNode) error {
					pkg, profile, _ := strings.Cut(node.ID, "/")
					merged, err := tree.Resolve(pkg, profile)
					if err != nil {
						return err
					}
					var result *multierror.Error
					result = multierror.Append(result, env.schemas.ValidateRegion(ctx, merged))
					if policies != nil {
						result = multierror.Append(result, policies.CheckRegion(ctx, merged))
					}
					return result.ErrorOrNil()
				},
				engine.ScheduleOptions{OnResult: func(r *engine.UnitResult) {
					env.logger.Debug().Str("region", r.ID).Str("status", string(r.Status)).Msg("Checked region")
				}},
			)
			if err != nil {
				return err
			}
			for _, r := range results {
				switch r.Status {
				case engine.UnitFailed:
					problems = multierror.Append(problems, r.Err)
				case engine.UnitSkipped:
					problems = multierror.Append(problems, fmt.Errorf(
						"%s: not checked, depends on failing region %s", r.ID, r.BlockedBy))
				}
			}
			regions := tree.Regions()

			// Append keeps nil errors out, so a clean run stays empty.
			result := problems.ErrorOrNil()

			out := cmd.OutOrStdout()
			if jsonOutput {
				report := checkReport{File: path, Regions: len(regions), Problems: []string{}}
				if result != nil {
					for _, p := range problems.Errors {
						report.Problems = append(report.Problems, p.Error())
					}
				}
				if err := printJSON(out, report); err != nil {
					return err
				}
			} else if result == nil {
				fmt.Fprintf(out, "%s: %d profile(s) OK\n", path, len(regions))
			}

			if result != nil {
				return engine.NewInvariantError(
					fmt.Sprintf("%s has %d problem(s)", path, len(problems.Errors)), result,
				).WithCode(engine.ErrCodeValidation)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&parallel, "parallel", 4, "Profiles checked concurrently")

	return cmd
}
