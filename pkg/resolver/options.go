package resolver

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/openfroyo/extconf/pkg/cache"
	"github.com/openfroyo/extconf/pkg/col"
	"github.com/openfroyo/extconf/pkg/engine"
	"github.com/openfroyo/extconf/pkg/program"
	"github.com/openfroyo/extconf/pkg/telemetry"
	"github.com/rs/zerolog"
)

// PackageLoader loads the program of a known package. It is used to find
// the real interfaces injected by configuration.
type PackageLoader interface {
	Load(ctx context.Context, pkg engine.PackageInfo) (*program.Program, error)
}

// RegionPolicy vets a merged region before it is applied.
type RegionPolicy interface {
	CheckRegion(ctx context.Context, region *col.Region) error
}

// TreeCache holds parsed configuration trees keyed by canonical path.
type TreeCache = cache.Cache[*col.Tree]

// NewTreeCache returns an empty tree cache.
func NewTreeCache(logger zerolog.Logger, metrics *telemetry.Metrics) *TreeCache {
	return cache.New[*col.Tree](cache.Options{Name: "trees", Logger: logger, Metrics: metrics})
}

// Options are the construction inputs of a Resolver.
type Options struct {
	// ThisPackage is the package whose program is being configured.
	ThisPackage string `validate:"required"`

	// Packages is the table of known packages.
	Packages engine.PackageTable `validate:"dive"`

	// ConfigFile is the configuration file. When empty, the resolver
	// applies only the package default unit, if any.
	ConfigFile string

	// Profile selects the region in ConfigFile. It defaults to ThisPackage.
	Profile string

	// ParentPackage is set when this package is embedded by another one.
	// A relative ConfigFile is resolved against its root.
	ParentPackage string

	// IncludePaths are searched for packages with a relative root.
	IncludePaths []string

	// Loader loads foreign package programs. It defaults to a
	// program.FileLoader over IncludePaths.
	Loader PackageLoader `validate:"-"`

	// Cache is shared between resolvers. A private cache is used when nil.
	Cache *TreeCache `validate:"-"`

	// Policies, when set, is consulted between region selection and apply.
	Policies RegionPolicy `validate:"-"`

	Telemetry *telemetry.Telemetry `validate:"-"`
	Logger    zerolog.Logger       `validate:"-"`
}

var validate = validator.New()

func (o *Options) validate() error {
	if err := validate.Struct(o); err != nil {
		return engine.NewInvariantError("invalid resolver options", err).
			WithCode(engine.ErrCodeValidation)
	}
	if o.ParentPackage != "" {
		if _, ok := o.Packages[o.ParentPackage]; !ok {
			return engine.NewLookupError(
				fmt.Sprintf("parent package '%s' is not known.%s",
					o.ParentPackage, col.DidYouMean(o.ParentPackage, o.Packages.Names())),
				nil,
			).WithCode(engine.ErrCodeUnknownPackage)
		}
	}
	return nil
}
