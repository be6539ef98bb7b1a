package commands

import (
	"context"
	"time"

	"github.com/openfroyo/extconf/pkg/col"
	"github.com/openfroyo/extconf/pkg/config"
	"github.com/openfroyo/extconf/pkg/engine"
	"github.com/openfroyo/extconf/pkg/policy"
	"github.com/openfroyo/extconf/pkg/stores"
	"github.com/openfroyo/extconf/pkg/telemetry"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// environment is what every command needs after the settings are read.
type environment struct {
	settings  *config.Settings
	schemas   *config.SchemaRegistry
	telemetry *telemetry.Telemetry
	logger    zerolog.Logger
}

// loadEnvironment reads the settings, applies --pkg and --verbose, and
// starts telemetry.
func loadEnvironment(cmd *cobra.Command) (*environment, error) {
	ctx := cmd.Context()
	schemas := config.NewSchemaRegistry()

	settings, err := config.Load(ctx, config.Find(settingsPath), schemas)
	if err != nil {
		return nil, err
	}
	for _, spec := range packageSpecs {
		pkg, err := config.ParsePackage(spec)
		if err != nil {
			return nil, err
		}
		settings.AddPackage(pkg)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	tcfg := telemetry.DefaultConfig()
	if settings.Telemetry != nil {
		c := *settings.Telemetry
		tcfg = &c
	}
	if verbose {
		tcfg.Logging.Level = "debug"
	}
	tel, err := telemetry.NewTelemetry(tcfg)
	if err != nil {
		return nil, engine.NewInvariantError("invalid telemetry settings", err).
			WithCode(engine.ErrCodeValidation)
	}
	if err := tel.StartMetricsServer(); err != nil {
		return nil, err
	}

	env := &environment{
		settings:  settings,
		schemas:   schemas,
		telemetry: tel,
		logger:    tel.Logger.NewComponentLogger("cli").Zerolog(),
	}
	env.logger.Debug().
		Str("settings", settings.Source()).
		Int("packages", len(settings.Packages)).
		Msg("Loaded settings")
	return env, nil
}

// close flushes pending spans.
func (e *environment) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.telemetry.Shutdown(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to shut down telemetry")
	}
}

// parse reads a configuration file into a tree. When packages are
// configured, regions for unknown packages are rejected.
func (e *environment) parse(ctx context.Context, path string) (*col.Tree, error) {
	op := e.telemetry.StartParse(ctx, path)
	tree, err := col.ParseFile(path, col.Options{
		Packages: e.settings.PackageTable(),
		Logger:   e.logger,
	})
	op.End(err)
	return tree, err
}

// policies returns the policy engine, or nil when policies are disabled.
func (e *environment) policies(ctx context.Context) (*policy.Engine, error) {
	if !e.settings.Policy.Enabled {
		return nil, nil
	}
	eng, err := policy.NewEngine(e.logger)
	if err != nil {
		return nil, err
	}
	if len(e.settings.Policy.Paths) > 0 {
		if err := eng.LoadPolicies(ctx, e.settings.Policy.Paths); err != nil {
			return nil, err
		}
	}
	return eng, nil
}

// journal opens and migrates the resolution journal.
func (e *environment) journal(ctx context.Context) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: e.settings.Journal.Path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}
