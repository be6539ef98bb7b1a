package col

import (
	"fmt"
	"sort"

	"github.com/openfroyo/extconf/pkg/engine"
	"github.com/openfroyo/extconf/pkg/value"
)

// Direction distinguishes input and output ports.
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// Port is the configuration of an external port: *EmbeddingPort or *ConcretePort.
type Port interface {
	isPort()
	Name() string
	Position() engine.Position
}

// EmbeddingPort binds an output port to an embedded sub-service.
type EmbeddingPort struct {
	PortName string
	Module   string
	Profile  string
	Pos      engine.Position
}

func (*EmbeddingPort) isPort() {}

// Name returns the port name.
func (p *EmbeddingPort) Name() string { return p.PortName }

// Position returns the configuration site.
func (p *EmbeddingPort) Position() engine.Position { return p.Pos }

// Protocol is a protocol override. Both fields are optional.
type Protocol struct {
	Type       *string
	Properties value.Expr
}

// ConcretePort overrides location and protocol. Every field is optional.
type ConcretePort struct {
	PortName string
	Location *string
	Protocol *Protocol
	Pos      engine.Position
}

func (*ConcretePort) isPort() {}

// Name returns the port name.
func (p *ConcretePort) Name() string { return p.PortName }

// Position returns the configuration site.
func (p *ConcretePort) Position() engine.Position { return p.Pos }

// Interface replaces a local interface with one defined in another package.
type Interface struct {
	Local   string
	Real    string
	Package string
	Pos     engine.Position
}

// Param assigns a value to a parameter path.
type Param struct {
	Path  value.Path
	Value value.Expr
	Pos   engine.Position
}

// Region is one profile block of a configuration file.
// Regions are never modified after parsing; merging produces a new Region.
type Region struct {
	Profile     string
	Package     string
	Extends     string
	InputPorts  map[string]Port
	OutputPorts map[string]Port
	Interfaces  map[string]*Interface
	Params      []*Param
	Pos         engine.Position
}

// NewRegion returns an empty region for the given package and profile.
func NewRegion(pkg, profile string) *Region {
	return &Region{
		Profile:     profile,
		Package:     pkg,
		InputPorts:  make(map[string]Port),
		OutputPorts: make(map[string]Port),
		Interfaces:  make(map[string]*Interface),
	}
}

// Ports returns the port map for the given direction.
func (r *Region) Ports(dir Direction) map[string]Port {
	if dir == DirectionInput {
		return r.InputPorts
	}
	return r.OutputPorts
}

// IsEmpty reports whether the region declares nothing.
func (r *Region) IsEmpty() bool {
	return len(r.InputPorts) == 0 && len(r.OutputPorts) == 0 &&
		len(r.Interfaces) == 0 && len(r.Params) == 0
}

// String identifies the region as package/profile.
func (r *Region) String() string {
	return r.Package + "/" + r.Profile
}

// Source is a file that contributed to a tree.
type Source struct {
	Path   string `json:"path"`
	Digest string `json:"digest"`
}

// Tree maps package names to profiles to regions.
type Tree struct {
	packages map[string]map[string]*Region
	order    []*Region

	// Sources lists every file read while building the tree, in read order.
	Sources []Source
}

// NewTree returns an empty configuration tree.
func NewTree() *Tree {
	return &Tree{packages: make(map[string]map[string]*Region)}
}

// Add registers a region. A second region with the same package and
// profile is rejected with both definition sites.
func (t *Tree) Add(r *Region) error {
	profiles, ok := t.packages[r.Package]
	if !ok {
		profiles = make(map[string]*Region)
		t.packages[r.Package] = profiles
	}
	if prev, exists := profiles[r.Profile]; exists {
		return engine.NewSyntaxError(fmt.Sprintf(
			"attempting to redefine configuration unit '%s' of '%s', first defined at %s",
			r.Profile, r.Package, prev.Pos,
		), nil).
			WithSource(r.Pos).
			WithRelated(prev.Pos).
			WithCode(engine.ErrCodeDuplicateRegion)
	}
	profiles[r.Profile] = r
	t.order = append(t.order, r)
	return nil
}

// Region returns the region for (pkg, profile) without resolving inheritance.
func (t *Tree) Region(pkg, profile string) (*Region, bool) {
	r, ok := t.packages[pkg][profile]
	return r, ok
}

// HasPackage reports whether any region configures pkg.
func (t *Tree) HasPackage(pkg string) bool {
	_, ok := t.packages[pkg]
	return ok
}

// Packages returns the configured package names, sorted.
func (t *Tree) Packages() []string {
	names := make([]string, 0, len(t.packages))
	for name := range t.packages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Profiles returns the profile names of pkg, sorted.
func (t *Tree) Profiles(pkg string) []string {
	names := make([]string, 0, len(t.packages[pkg]))
	for name := range t.packages[pkg] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Regions returns every region in definition order.
func (t *Tree) Regions() []*Region {
	out := make([]*Region, len(t.order))
	copy(out, t.order)
	return out
}

// SourcePaths returns the paths of all contributing files.
func (t *Tree) SourcePaths() []string {
	paths := make([]string, len(t.Sources))
	for i, s := range t.Sources {
		paths[i] = s.Path
	}
	return paths
}
