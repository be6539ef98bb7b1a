package commands

import (
	"encoding/json"
	"errors"
	"os"
	"strings"

	"github.com/openfroyo/extconf/pkg/cache"
	"github.com/openfroyo/extconf/pkg/col"
	"github.com/openfroyo/extconf/pkg/engine"
	"github.com/openfroyo/extconf/pkg/events"
	"github.com/spf13/cobra"
)

func newWatchCommand() *cobra.Command {
	var (
		pkg        string
		profile    string
		format     string
		eventsMode bool
	)

	cmd := &cobra.Command{
		Use:   "watch <file.col>",
		Short: "Print a profile again whenever its sources change",
		Long: `Resolve a profile, print it, and resolve it again whenever one of the files
it was read from changes: the configuration file, its includes, the conf
directories of used packages, and the package default unit.

With --events the output is a stream of JSON lines (READY, RESOLVED,
ERROR, EXIT) meant for a supervising process.

When policy.watch is set, custom policies are reloaded on change too.
Stop with Ctrl-C.`,
		Example: `  # Print the prod profile of orders on every change
  extconf watch deploy/prod.col -p orders --profile prod

  # Feed a supervisor
  extconf watch deploy/prod.col -p orders --events | supervisor`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			ctx := cmd.Context()
			if jsonOutput {
				format = "json"
			}
			if profile == "" {
				profile = pkg
			}

			trees := cache.New[*col.Tree](cache.Options{
				Name:     "trees",
				Logger:   env.logger,
				Metrics:  env.telemetry.Metrics,
				Debounce: env.settings.Cache.Debounce,
			})

			policies, err := env.policies(ctx)
			if err != nil {
				return err
			}
			if policies != nil && env.settings.Policy.Watch && len(env.settings.Policy.Paths) > 0 {
				if err := policies.Watch(ctx); err != nil {
					return err
				}
			}

			var enc *events.Encoder
			if eventsMode {
				enc = events.NewEncoder(cmd.OutOrStdout())
				err := enc.EncodeReady(&events.ReadyMessage{
					Version: cmd.Root().Version,
					File:    col.CanonicalPath(args[0]),
					Package: pkg,
					Profile: profile,
					PID:     os.Getpid(),
				})
				if err != nil {
					return err
				}
			}

			var resolutions, failures int
			show := func(changed []string) {
				region, err := env.region(ctx, args[0], pkg, profile, trees)
				if err == nil && policies != nil {
					err = policies.CheckRegion(ctx, region)
				}
				if err != nil {
					failures++
					env.logger.Error().Err(err).Msg("Resolution failed")
					if enc != nil {
						if err := enc.EncodeError(errorEvent(err, changed)); err != nil {
							env.logger.Error().Err(err).Msg("Failed to write event")
						}
					}
					return
				}

				resolutions++
				data := region.Data()
				if enc != nil {
					err = encodeResolved(enc, region.String(), changed, data)
				} else {
					err = printData(cmd.OutOrStdout(), format, data)
				}
				if err != nil {
					env.logger.Error().Err(err).Msg("Failed to print region")
				}
			}
			show(nil)

			changes := make(chan []string, 1)
			err = trees.Watch(ctx, func(paths []string) {
				select {
				case changes <- paths:
				default:
				}
			})
			if err != nil {
				return err
			}

			for {
				select {
				case <-ctx.Done():
					if enc != nil {
						return enc.EncodeExit(&events.ExitMessage{
							Reason:      "interrupted",
							Resolutions: resolutions,
							Failures:    failures,
						})
					}
					return nil
				case paths := <-changes:
					env.logger.Info().
						Str("changed", strings.Join(paths, ", ")).
						Msg("Configuration changed")
					show(paths)
				}
			}
		},
	}

	cmd.Flags().StringVarP(&pkg, "package", "p", "", "package to watch (required)")
	cmd.Flags().StringVar(&profile, "profile", "", "profile to watch (default: the package name)")
	cmd.Flags().StringVarP(&format, "output", "o", "yaml", "output format (yaml, json)")
	cmd.Flags().BoolVar(&eventsMode, "events", false, "write a JSON event stream instead of documents")
	_ = cmd.MarkFlagRequired("package")

	return cmd
}

func encodeResolved(enc *events.Encoder, region string, changed []string, data map[string]interface{}) error {
	// Map keys are sorted, so equal regions give equal bytes.
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return enc.EncodeResolved(&events.ResolvedMessage{
		Region:  region,
		Changed: changed,
		Digest:  col.Digest(raw),
		Data:    data,
	})
}

func errorEvent(err error, changed []string) *events.ErrorMessage {
	msg := &events.ErrorMessage{
		Class:   string(engine.ClassOf(err)),
		Code:    engine.CodeOf(err),
		Message: err.Error(),
		Changed: changed,
	}
	var engErr *engine.EngineError
	if errors.As(err, &engErr) && engErr.Source.IsValid() {
		msg.Source = engErr.Source.String()
	}
	return msg
}
