package commands

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/openfroyo/extconf/pkg/col"
	"github.com/openfroyo/extconf/pkg/engine"
	"github.com/openfroyo/extconf/pkg/program"
	"github.com/openfroyo/extconf/pkg/resolver"
	"github.com/openfroyo/extconf/pkg/stores"
	"github.com/spf13/cobra"
)

func newApplyCommand() *cobra.Command {
	var (
		pkg     string
		conf    string
		profile string
		parent  string
		outPath string
		journal bool
	)

	cmd := &cobra.Command{
		Use:   "apply <program.yaml>",
		Short: "Apply a configuration profile to a service program",
		Long: `Resolve the profile configuring a package and rewrite the package program
with it:
  - configured ports get their location and protocol
  - embedding output ports gain an embed-service declaration
  - external interfaces receive the operations and types of their real interface
  - parameters are assigned at the start of the init block

Without --conf only the package default unit is applied. The rewritten
program is written to stdout unless --out is given.`,
		Example: `  # Apply the prod profile of svc
  extconf apply services/svc/main.yaml --package svc --conf deploy/prod.col --profile prod

  # Record the resolution in the journal
  extconf apply services/svc/main.yaml -p svc --conf deploy/prod.col --journal`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			ctx := cmd.Context()

			prog, err := program.DecodeFile(args[0])
			if err != nil {
				return err
			}

			opts := resolver.Options{
				ThisPackage:   pkg,
				Packages:      env.settings.PackageTable(),
				ConfigFile:    conf,
				Profile:       profile,
				ParentPackage: parent,
				IncludePaths:  env.settings.IncludePaths,
				Telemetry:     env.telemetry,
				Logger:        env.logger,
			}
			policies, err := env.policies(ctx)
			if err != nil {
				return err
			}
			if policies != nil {
				opts.Policies = policies
			}

			r, err := resolver.New(opts)
			if err != nil {
				return err
			}

			if _, ok := r.Package(); !ok {
				env.logger.Warn().
					Str("package", pkg).
					Msg("Package is not in the package table, writing the program unchanged")
				return writeProgram(cmd, outPath, prog)
			}

			started := time.Now()
			res, err := r.Resolve(ctx, prog)

			var encoded []byte
			if err == nil {
				var buf bytes.Buffer
				if err = program.Encode(&buf, res.Program); err == nil {
					encoded = buf.Bytes()
				}
			}

			if journal || (env.settings.Journal.Enabled && !cmd.Flags().Changed("journal")) {
				rec := resolution(r, res, err, encoded, started)
				if jerr := env.record(ctx, rec); jerr != nil {
					if err == nil {
						return jerr
					}
					return multierror.Append(err, jerr)
				}
				jlog := env.telemetry.Logger.NewComponentLogger("journal").
					WithPackage(rec.Package, rec.Profile).
					WithResolutionID(rec.ID).
					Zerolog()
				jlog.Debug().
					Str("status", string(rec.Status)).
					Msg("Recorded resolution")
			}
			if err != nil {
				return err
			}

			if outPath == "" {
				_, err = cmd.OutOrStdout().Write(encoded)
				return err
			}
			if err := os.WriteFile(outPath, encoded, 0o644); err != nil {
				return engine.NewIOError(fmt.Sprintf("failed to write %s", outPath), err)
			}
			env.logger.Info().Str("file", outPath).Msg("Wrote configured program")
			return nil
		},
	}

	cmd.Flags().StringVarP(&pkg, "package", "p", "", "package the program belongs to (required)")
	cmd.Flags().StringVar(&conf, "conf", "", "configuration file")
	cmd.Flags().StringVar(&profile, "profile", "", "profile to apply (default: the package name)")
	cmd.Flags().StringVar(&parent, "parent", "", "package embedding this one; a relative --conf is taken from its root")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the program to a file instead of stdout")
	cmd.Flags().BoolVar(&journal, "journal", false, "record the resolution in the journal (default from settings)")
	_ = cmd.MarkFlagRequired("package")

	return cmd
}

func writeProgram(cmd *cobra.Command, outPath string, prog *program.Program) error {
	if outPath == "" {
		return program.Encode(cmd.OutOrStdout(), prog)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return engine.NewIOError(fmt.Sprintf("failed to create %s", outPath), err)
	}
	if err := program.Encode(f, prog); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// resolution builds the journal entry of one apply.
func resolution(r *resolver.Resolver, res *resolver.Result, err error, encoded []byte, started time.Time) *stores.Resolution {
	pkg, _ := r.Package()
	rec := &stores.Resolution{
		Package:    pkg.Name,
		Profile:    r.Profile(),
		ConfigPath: r.ConfigPath(),
		Status:     stores.ResolutionSucceeded,
		StartedAt:  started,
		Duration:   time.Since(started),
	}
	if err != nil {
		msg := err.Error()
		rec.Status = stores.ResolutionFailed
		rec.Error = &msg
		if class := engine.ClassOf(err); class != "" {
			c := string(class)
			rec.ErrorClass = &c
		}
		return rec
	}
	rec.Fingerprint = res.Fingerprint
	rec.InjectedTypes = res.InjectedTypes
	rec.Region = res.Region.Data()
	rec.ProgramDigest = col.Digest(encoded)
	return rec
}

func (e *environment) record(ctx context.Context, rec *stores.Resolution) error {
	store, err := e.journal(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.RecordResolution(ctx, rec)
}
