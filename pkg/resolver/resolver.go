// Package resolver applies external configuration to a service program.
//
// A Resolver selects the region configuring its package, folds the
// region's extends chain and the package default unit into it, and then
// rewrites the program's top-level declarations:
//
//   - configured output and input ports get their location and protocol,
//   - embedding output ports are followed by an embed-service declaration,
//   - external interfaces receive the operations of a real interface from
//     another package, together with the types those operations use,
//   - parameters are assigned under the global params path at the start
//     of the init block.
//
// The input program is never modified.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/openfroyo/extconf/pkg/col"
	"github.com/openfroyo/extconf/pkg/engine"
	"github.com/openfroyo/extconf/pkg/program"
	"github.com/openfroyo/extconf/pkg/telemetry"
	"github.com/rs/zerolog"
)

// DefaultUnitFile is the per-package file holding the default region.
const DefaultUnitFile = "default.col"

// DefaultUnitProfile is the only profile allowed in DefaultUnitFile.
const DefaultUnitProfile = "default"

// EmptyUnitPrefix names the region used when no configuration file is given.
const EmptyUnitPrefix = "empty-unit-"

// Resolver resolves and applies the configuration of one package.
type Resolver struct {
	opts   Options
	logger zerolog.Logger
	cache  *TreeCache
	loader PackageLoader
}

// Result is the outcome of a full resolution.
type Result struct {
	Region  *col.Region
	Program *program.Program

	// ConfigPath is the absolute configuration file, or "" when none was used.
	ConfigPath string

	// Fingerprint identifies the configuration sources. It is empty when
	// no configuration file was used.
	Fingerprint string

	// InjectedTypes counts the type definitions copied into the program.
	InjectedTypes int
}

// New validates opts and creates a resolver.
func New(opts Options) (*Resolver, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Profile == "" {
		opts.Profile = opts.ThisPackage
	}

	r := &Resolver{
		opts: opts,
		logger: opts.Logger.With().
			Str("component", "resolver").
			Str("package", opts.ThisPackage).
			Str("profile", opts.Profile).
			Logger(),
		cache:  opts.Cache,
		loader: opts.Loader,
	}
	if r.cache == nil {
		r.cache = NewTreeCache(opts.Logger, r.metrics())
	}
	if r.loader == nil {
		r.loader = &program.FileLoader{IncludePaths: opts.IncludePaths, Logger: opts.Logger}
	}
	return r, nil
}

func (r *Resolver) metrics() *telemetry.Metrics {
	if r.opts.Telemetry == nil {
		return nil
	}
	return r.opts.Telemetry.Metrics
}

// Package returns the descriptor of the configured package.
func (r *Resolver) Package() (engine.PackageInfo, bool) {
	pkg, ok := r.opts.Packages[r.opts.ThisPackage]
	return pkg, ok
}

// Profile returns the selected profile name.
func (r *Resolver) Profile() string {
	return r.opts.Profile
}

// ConfigPath returns the absolute path of the configuration file. A
// relative file is taken from the parent package root when the package is
// embedded, and from the working directory otherwise.
func (r *Resolver) ConfigPath() string {
	file := r.opts.ConfigFile
	if file == "" {
		return ""
	}
	if !filepath.IsAbs(file) && r.opts.ParentPackage != "" {
		if parent, ok := r.opts.Packages[r.opts.ParentPackage]; ok {
			file = filepath.Join(parent.Root, file)
		}
	}
	return col.CanonicalPath(file)
}

// Tree returns the parsed configuration tree of the configuration file.
// Trees are cached by path and shared by every resolver using the cache.
func (r *Resolver) Tree(ctx context.Context) (*col.Tree, error) {
	path := r.ConfigPath()
	if path == "" {
		return nil, engine.NewInvariantError("no configuration file given", nil)
	}
	return r.cache.Get(ctx, "tree:"+path, func(ctx context.Context) (*col.Tree, []string, error) {
		return r.parse(ctx, path, col.Options{Packages: r.opts.Packages, Logger: r.opts.Logger})
	})
}

func (r *Resolver) parse(ctx context.Context, path string, opts col.Options) (*col.Tree, []string, error) {
	op := r.opts.Telemetry.StartParse(ctx, path)
	tree, err := col.ParseFile(path, opts)
	op.End(err)
	if err != nil {
		return nil, []string{path}, err
	}
	if op.Span != nil {
		op.Span.SetAttributes(telemetry.AttrSources.Int(len(tree.Sources)))
	}
	r.logger.Debug().
		Str("file", path).
		Int("sources", len(tree.Sources)).
		Strs("packages", tree.Packages()).
		Msg("Parsed configuration")
	return tree, tree.SourcePaths(), nil
}

// Region returns the merged region configuring this package: the
// selected profile, its extends chain, and the package default unit.
func (r *Resolver) Region(ctx context.Context) (region *col.Region, err error) {
	pkg, ok := r.Package()
	if !ok {
		return nil, r.unknownPackage(r.opts.ThisPackage)
	}

	op := r.opts.Telemetry.StartPhase(ctx, telemetry.SpanRegion, pkg.Name, r.opts.Profile)
	defer func() { op.End(err) }()

	region, err = r.selectRegion(op.Ctx, pkg)
	if err != nil {
		return nil, err
	}

	def, err := r.defaultRegion(op.Ctx, pkg)
	if err != nil {
		return nil, err
	}
	if def != nil {
		region, err = col.Merge(region, def)
		if err != nil {
			return nil, err
		}
	}
	return region, nil
}

func (r *Resolver) selectRegion(ctx context.Context, pkg engine.PackageInfo) (*col.Region, error) {
	if r.opts.ConfigFile == "" {
		return col.NewRegion(pkg.Name, EmptyUnitPrefix+pkg.Name), nil
	}

	tree, err := r.Tree(ctx)
	if err != nil {
		return nil, err
	}
	if !tree.HasPackage(pkg.Name) {
		return nil, engine.NewLookupError(
			fmt.Sprintf("could not find profile configuring %s", pkg.Name), nil,
		).WithCode(engine.ErrCodeUnknownPackage).WithDetail("file", r.ConfigPath())
	}
	region, ok := tree.Region(pkg.Name, r.opts.Profile)
	if !ok {
		return nil, engine.NewLookupError(fmt.Sprintf(
			"could not find requested configuration region. Was requested to find '%s' from '%s'. "+
				"This configuration should match package '%s'.%s",
			r.opts.Profile, r.opts.ConfigFile, pkg.Name,
			col.DidYouMean(r.opts.Profile, tree.Profiles(pkg.Name)),
		), nil).WithCode(engine.ErrCodeUnknownProfile).WithDetail("profile", r.opts.Profile)
	}
	return tree.ResolveRegion(region)
}

// defaultRegion returns the default unit of pkg, or nil when the package
// has no default file.
func (r *Resolver) defaultRegion(ctx context.Context, pkg engine.PackageInfo) (*col.Region, error) {
	path := filepath.Join(pkg.Root, DefaultUnitFile)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, engine.NewIOError(fmt.Sprintf("failed to stat %s", path), err)
	}
	path = col.CanonicalPath(path)

	tree, err := r.cache.Get(ctx, "default:"+path, func(ctx context.Context) (*col.Tree, []string, error) {
		return r.parse(ctx, path, col.Options{Logger: r.opts.Logger})
	})
	if err != nil {
		return nil, err
	}

	profiles := tree.Profiles(pkg.Name)
	if len(profiles) != 1 {
		return nil, engine.NewPolicyError(fmt.Sprintf(
			"default configuration unit (%s) contains more than one unit or no units. "+
				"Only one unit named '%s' is allowed", path, DefaultUnitProfile,
		), nil).WithCode(engine.ErrCodeInvalidDefault).WithSource(engine.Position{File: path})
	}
	if profiles[0] != DefaultUnitProfile {
		region, _ := tree.Region(pkg.Name, profiles[0])
		return nil, engine.NewPolicyError(fmt.Sprintf(
			"default configuration unit (%s) is not named correctly. "+
				"Only one unit named '%s' is allowed", path, DefaultUnitProfile,
		), nil).WithCode(engine.ErrCodeInvalidDefault).WithSource(region.Pos)
	}

	region, _ := tree.Region(pkg.Name, DefaultUnitProfile)
	r.logger.Debug().Str("file", path).Msg("Merging package default unit")
	return region, nil
}

// Process configures prog. A program of a package that is not in the
// package table is returned unchanged.
func (r *Resolver) Process(ctx context.Context, prog *program.Program) (*program.Program, error) {
	if _, ok := r.Package(); !ok {
		r.logger.Debug().Msg("Package is not known, leaving program unconfigured")
		return prog, nil
	}
	res, err := r.Resolve(ctx, prog)
	if err != nil {
		return nil, err
	}
	return res.Program, nil
}

// Resolve runs region selection, policy checks and apply, and reports
// the details of the resolution.
func (r *Resolver) Resolve(ctx context.Context, prog *program.Program) (res *Result, err error) {
	defer func() {
		status := "success"
		if err != nil {
			status = "failure"
		}
		r.metrics().RecordResolution(status)
	}()

	region, err := r.Region(ctx)
	if err != nil {
		return nil, err
	}

	if r.opts.Policies != nil {
		op := r.opts.Telemetry.StartPhase(ctx, telemetry.SpanPolicy, region.Package, region.Profile)
		err = r.opts.Policies.CheckRegion(op.Ctx, region)
		op.End(err)
		if err != nil {
			return nil, err
		}
	}

	out, injected, err := r.apply(ctx, prog, region)
	if err != nil {
		return nil, err
	}

	res = &Result{
		Region:        region,
		Program:       out,
		ConfigPath:    r.ConfigPath(),
		InjectedTypes: injected,
	}
	if res.ConfigPath != "" {
		tree, err := r.Tree(ctx)
		if err != nil {
			return nil, err
		}
		res.Fingerprint = tree.Fingerprint()
	}

	r.logger.Info().
		Str("region", region.String()).
		Int("injected_types", injected).
		Msg("Applied configuration")
	return res, nil
}

func (r *Resolver) unknownPackage(name string) error {
	return engine.NewLookupError(fmt.Sprintf(
		"attempting to parse package '%s'. But this package is not known. "+
			"Did you forget to configure it with --pkg?%s",
		name, col.DidYouMean(name, r.opts.Packages.Names()),
	), nil).WithCode(engine.ErrCodeUnknownPackage).WithDetail("package", name)
}
