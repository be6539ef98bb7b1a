package commands

import (
	"context"

	"github.com/openfroyo/extconf/pkg/col"
	"github.com/openfroyo/extconf/pkg/resolver"
	"github.com/spf13/cobra"
)

func newShowCommand() *cobra.Command {
	var (
		pkg     string
		profile string
		format  string
	)

	cmd := &cobra.Command{
		Use:   "show <file.col>",
		Short: "Print the merged configuration of a profile",
		Long: `Print the region configuring a package after its extends chain has been
folded in. For a package in the package table the package default unit
(default.col in the package root) is merged as well.`,
		Example: `  # Show the prod profile of svc
  extconf show deploy/prod.col --package svc --profile prod

  # As JSON
  extconf show deploy/prod.col --package svc -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			region, err := env.region(cmd.Context(), args[0], pkg, profile, nil)
			if err != nil {
				return err
			}

			if jsonOutput {
				format = "json"
			}
			return printData(cmd.OutOrStdout(), format, region.Data())
		},
	}

	cmd.Flags().StringVarP(&pkg, "package", "p", "", "package to show (required)")
	cmd.Flags().StringVar(&profile, "profile", "", "profile to show (default: the package name)")
	cmd.Flags().StringVarP(&format, "output", "o", "yaml", "output format (yaml, json)")
	_ = cmd.MarkFlagRequired("package")

	return cmd
}

// region returns the merged region of pkg/profile in path. Known packages
// go through a resolver so their default unit is merged; others are
// resolved from the parsed tree alone.
func (e *environment) region(ctx context.Context, path, pkg, profile string, cache *resolver.TreeCache) (*col.Region, error) {
	if profile == "" {
		profile = pkg
	}

	if _, ok := e.settings.PackageTable()[pkg]; ok {
		r, err := resolver.New(resolver.Options{
			ThisPackage:  pkg,
			Packages:     e.settings.PackageTable(),
			ConfigFile:   path,
			Profile:      profile,
			IncludePaths: e.settings.IncludePaths,
			Cache:        cache,
			Telemetry:    e.telemetry,
			Logger:       e.logger,
		})
		if err != nil {
			return nil, err
		}
		return r.Region(ctx)
	}

	tree, err := e.cachedTree(ctx, path, cache)
	if err != nil {
		return nil, err
	}
	return tree.Resolve(pkg, profile)
}

// cachedTree parses path through cache when one is given.
func (e *environment) cachedTree(ctx context.Context, path string, cache *resolver.TreeCache) (*col.Tree, error) {
	if cache == nil {
		return e.parse(ctx, path)
	}
	return cache.Get(ctx, "tree:"+col.CanonicalPath(path), func(ctx context.Context) (*col.Tree, []string, error) {
		tree, err := e.parse(ctx, path)
		if err != nil {
			return nil, []string{col.CanonicalPath(path)}, err
		}
		return tree, tree.SourcePaths(), nil
	})
}
