package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/openfroyo/extconf/pkg/stores"
	"github.com/spf13/cobra"
)

func newHistoryCommand() *cobra.Command {
	var filter stores.Filter
	var status string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded resolutions",
		Long: `List the resolutions recorded in the journal, newest first.

The journal is written by apply when journal.enabled is set in the
settings file or --journal is given.`,
		Example: `  # Last 20 resolutions
  extconf history

  # Failed resolutions of svc
  extconf history --package svc --status failed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			ctx := cmd.Context()
			store, err := env.journal(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			filter.Status = stores.ResolutionStatus(status)
			list, err := store.ListResolutions(ctx, filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, list)
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPACKAGE\tPROFILE\tSTATUS\tSTARTED\tDURATION\tSNAPSHOT")
			for _, r := range list {
				snapshot := "-"
				if r.SnapshotDigest != "" {
					snapshot = short(r.SnapshotDigest, 12)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					short(r.ID, 8), r.Package, r.Profile, r.Status,
					r.StartedAt.Local().Format(time.DateTime), r.Duration, snapshot)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&filter.Package, "package", "p", "", "only this package")
	cmd.Flags().StringVar(&filter.Profile, "profile", "", "only this profile")
	cmd.Flags().StringVar(&status, "status", "", "only this status (succeeded, failed)")
	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", 20, "maximum entries; 0 lists all")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "entries to skip")

	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	var (
		pkg     string
		profile string
		format  string
	)

	cmd := &cobra.Command{
		Use:   "show [id]",
		Short: "Print a recorded resolution with its merged region",
		Long: `Print one journal entry and the merged region it applied. The ID may be
shortened to any unique prefix. Without an ID the latest successful
resolution of --package/--profile is shown.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && pkg == "" {
				return fmt.Errorf("either an ID or --package is required")
			}

			env, err := loadEnvironment(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			ctx := cmd.Context()
			store, err := env.journal(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			var rec *stores.Resolution
			if len(args) == 1 {
				rec, err = store.GetResolution(ctx, args[0])
			} else {
				if profile == "" {
					profile = pkg
				}
				rec, err = store.LatestResolution(ctx, pkg, profile)
			}
			if err != nil {
				return err
			}

			if jsonOutput {
				format = "json"
			}
			return printData(cmd.OutOrStdout(), format, rec)
		},
	}

	cmd.Flags().StringVarP(&pkg, "package", "p", "", "package of the latest resolution")
	cmd.Flags().StringVar(&profile, "profile", "", "profile of the latest resolution (default: the package name)")
	cmd.Flags().StringVarP(&format, "output", "o", "yaml", "output format (yaml, json)")

	return cmd
}

func newHistoryPruneCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old journal entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			ctx := cmd.Context()
			store, err := env.journal(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.PruneResolutions(ctx, time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d resolution(s)\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "delete entries started longer ago than this")

	return cmd
}
