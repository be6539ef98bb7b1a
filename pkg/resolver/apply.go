package resolver

import (
	"context"
	"fmt"
	"net/url"

	"github.com/openfroyo/extconf/pkg/col"
	"github.com/openfroyo/extconf/pkg/engine"
	"github.com/openfroyo/extconf/pkg/program"
	"github.com/openfroyo/extconf/pkg/telemetry"
	"github.com/openfroyo/extconf/pkg/typelink"
	"github.com/openfroyo/extconf/pkg/value"
)

// ParamsRoot is the global variable holding configured parameters.
const ParamsRoot = "params"

// Apply returns a copy of prog with region applied to its top-level
// declarations. Only top-level declarations are visited; statement bodies
// other than the init block are left untouched.
func (r *Resolver) Apply(ctx context.Context, prog *program.Program, region *col.Region) (*program.Program, error) {
	out, _, err := r.apply(ctx, prog, region)
	return out, err
}

// applier holds the state of one Apply call.
type applier struct {
	r      *Resolver
	ctx    context.Context
	region *col.Region

	// declared are the type names of the target program.
	declared map[string]bool
	// emitted are the type names injected so far.
	emitted map[string]bool
	// packages caches foreign programs loaded during this call.
	packages map[string]*foreign

	injected int
}

type foreign struct {
	prog  *program.Program
	types *typelink.Table
}

func (r *Resolver) apply(ctx context.Context, prog *program.Program, region *col.Region) (out *program.Program, injected int, err error) {
	op := r.opts.Telemetry.StartPhase(ctx, telemetry.SpanApply, region.Package, region.Profile)
	defer func() {
		if op.Span != nil {
			op.Span.SetAttributes(telemetry.AttrInjected.Int(injected))
		}
		op.End(err)
	}()

	a := &applier{
		r:        r,
		ctx:      op.Ctx,
		region:   region,
		declared: make(map[string]bool),
		emitted:  make(map[string]bool),
		packages: make(map[string]*foreign),
	}
	for _, t := range prog.Types() {
		a.declared[t.Def.TypeName()] = true
	}

	out, err = a.run(program.Clone(prog))
	if err != nil {
		return nil, 0, err
	}
	r.metrics().AddInjectedTypes(a.injected)
	return out, a.injected, nil
}

func (a *applier) run(prog *program.Program) (*program.Program, error) {
	out := &program.Program{Source: prog.Source, Nodes: make([]program.Node, 0, len(prog.Nodes)+1)}

	var (
		oldInit []program.Statement
		initPos engine.Position
		initAt  = -1
	)
	seen := map[col.Direction]map[string]bool{
		col.DirectionInput:  {},
		col.DirectionOutput: {},
	}
	seenIfaces := make(map[string]bool)

	for _, node := range prog.Nodes {
		var (
			nodes []program.Node
			err   error
		)
		switch n := node.(type) {
		case *program.OutputPort:
			seen[col.DirectionOutput][n.Name] = true
			nodes, err = a.outputPort(n)
		case *program.InputPort:
			seen[col.DirectionInput][n.Name] = true
			nodes, err = a.inputPort(n)
		case *program.Interface:
			seenIfaces[n.Name] = true
			nodes, err = a.iface(n)
		case *program.Init:
			// Every init body is folded into the first init block, after
			// the parameter assignments.
			if initAt < 0 {
				initAt, initPos = len(out.Nodes), n.Pos
				nodes = []program.Node{nil}
			}
			oldInit = append(oldInit, n.Body...)
		default:
			nodes = []program.Node{node}
		}
		if err != nil {
			return nil, err
		}
		out.Nodes = append(out.Nodes, nodes...)
	}

	if initAt >= 0 || len(a.region.Params) > 0 {
		body := a.paramStatements()
		body = append(body, oldInit...)
		init := &program.Init{Body: body, Pos: initPos}
		if initAt >= 0 {
			out.Nodes[initAt] = init
		} else {
			out.Nodes = append(out.Nodes, init)
		}
	}

	a.warnUnused(seen, seenIfaces)
	return out, nil
}

func (a *applier) outputPort(n *program.OutputPort) ([]program.Node, error) {
	port, ok := a.region.OutputPorts[n.Name]
	if !ok {
		return []program.Node{n}, nil
	}
	if !n.External {
		return nil, staticPortError("output", n.Name, n.Pos, port.Position())
	}
	n.External = false

	switch p := port.(type) {
	case *col.ConcretePort:
		if err := bind(&n.Binding, p); err != nil {
			return nil, err
		}
		return []program.Node{n}, nil
	case *col.EmbeddingPort:
		embed, err := a.embed(n, p)
		if err != nil {
			return nil, err
		}
		// The embedding follows the port it binds.
		return []program.Node{n, embed}, nil
	default:
		panic(fmt.Sprintf("resolver: unknown port %T", port))
	}
}

func (a *applier) inputPort(n *program.InputPort) ([]program.Node, error) {
	port, ok := a.region.InputPorts[n.Name]
	if !ok {
		return []program.Node{n}, nil
	}
	if !n.External {
		return nil, staticPortError("input", n.Name, n.Pos, port.Position())
	}
	n.External = false

	// The parser never produces embedding input ports.
	if p, ok := port.(*col.ConcretePort); ok {
		if err := bind(&n.Binding, p); err != nil {
			return nil, err
		}
	}
	return []program.Node{n}, nil
}

// bind copies the fields set in p onto b.
func bind(b *program.Binding, p *col.ConcretePort) error {
	if p.Location != nil {
		if _, err := url.Parse(*p.Location); err != nil {
			return engine.NewSyntaxError(
				fmt.Sprintf("invalid location '%s' for port '%s'", *p.Location, p.PortName), err,
			).WithSource(p.Pos).WithCode(engine.ErrCodeInvalidLocation)
		}
		b.Location = *p.Location
	}
	// Properties only travel with a protocol type.
	if p.Protocol != nil && p.Protocol.Type != nil {
		b.Protocol = *p.Protocol.Type
		if p.Protocol.Properties != nil {
			b.Properties = value.Clone(p.Protocol.Properties)
		}
	}
	return nil
}

// embed builds the embed-service declaration for an embedding port. The
// embedded profile must be configured in the same configuration tree.
func (a *applier) embed(n *program.OutputPort, p *col.EmbeddingPort) (*program.EmbedService, error) {
	var target *col.Region
	if a.r.opts.ConfigFile != "" {
		tree, err := a.r.Tree(a.ctx)
		if err != nil {
			return nil, err
		}
		target, _ = tree.Region(p.Module, p.Profile)
	}
	if target == nil {
		return nil, engine.NewLookupError(fmt.Sprintf(
			"attempting to embed profile '%s', but could not find profile.\n  Configuration took place at %s",
			p.Profile, p.Pos,
		), nil).WithSource(p.Pos).WithCode(engine.ErrCodeUnknownEmbedding)
	}

	return &program.EmbedService{
		Kind:    program.EmbedKindService,
		Command: EmbedCommand(p.Profile, a.r.ConfigPath(), target.Package),
		Port:    n.Name,
		Pos:     n.Pos,
	}, nil
}

// EmbedCommand returns the argument string an embedded service receives
// to configure itself.
func EmbedCommand(profile, configPath, pkg string) string {
	return fmt.Sprintf("--conf %s %s %s.pkg", profile, configPath, pkg)
}

func (a *applier) iface(n *program.Interface) ([]program.Node, error) {
	conf, ok := a.region.Interfaces[n.Name]
	if !ok {
		return []program.Node{n}, nil
	}
	if !n.External {
		return nil, engine.NewPolicyError(fmt.Sprintf(
			"attempting to configure non-external interface %s defined at %s.\n  Configuration took place at %s",
			n.Name, n.Pos, conf.Pos,
		), nil).WithSource(conf.Pos).WithRelated(n.Pos).WithCode(engine.ErrCodeStaticInterface)
	}

	src, err := a.load(conf.Package)
	if err != nil {
		return nil, err
	}
	found, ok := program.Find[*program.Interface](src.prog, conf.Real)
	if !ok {
		return nil, engine.NewLookupError(
			fmt.Sprintf("unable to find interface '%s' from package '%s'", conf.Real, conf.Package), nil,
		).WithSource(conf.Pos).WithCode(engine.ErrCodeUnknownInterface)
	}
	if found.External || len(found.Operations) == 0 {
		return nil, engine.NewPolicyError(fmt.Sprintf(
			"attempting to inject the empty interface %s [%s] into %s [%s].\n  Configuration took place at %s",
			conf.Real, found.Pos, n.Name, n.Pos, conf.Pos,
		), nil).WithSource(conf.Pos).WithRelated(found.Pos).WithCode(engine.ErrCodeEmptyInterface)
	}

	types, err := a.closure(src, found)
	if err != nil {
		return nil, err
	}

	n.External = false
	n.Operations = program.CloneOperations(found.Operations)

	a.r.logger.Debug().
		Str("interface", n.Name).
		Str("from", conf.Package+"."+conf.Real).
		Int("operations", len(n.Operations)).
		Int("types", len(types)).
		Msg("Injected interface")

	return append(types, n), nil
}

// load returns the program and type table of a known package.
func (a *applier) load(name string) (*foreign, error) {
	if f, ok := a.packages[name]; ok {
		return f, nil
	}
	pkg, ok := a.r.opts.Packages[name]
	if !ok {
		return nil, a.r.unknownPackage(name)
	}
	prog, err := a.r.loader.Load(a.ctx, pkg)
	if err != nil {
		return nil, fmt.Errorf("unable to parse package '%s': %w", name, err)
	}

	table := typelink.Resolve(prog.Types(), a.r.logger)
	a.r.metrics().AddUnresolvedLinks(len(table.Unresolved))

	f := &foreign{prog: prog, types: table}
	a.packages[name] = f
	return f, nil
}

func (a *applier) paramStatements() []program.Statement {
	out := make([]program.Statement, 0, len(a.region.Params))
	for _, p := range a.region.Params {
		out = append(out, &program.DeepCopy{
			Target: p.Path.Prepend(ParamsRoot),
			Global: true,
			Value:  value.Clone(p.Value),
		})
	}
	return out
}

func (a *applier) warnUnused(ports map[col.Direction]map[string]bool, ifaces map[string]bool) {
	for _, dir := range []col.Direction{col.DirectionOutput, col.DirectionInput} {
		for name, port := range a.region.Ports(dir) {
			if !ports[dir][name] {
				a.r.logger.Warn().
					Str("port", name).
					Str("direction", string(dir)).
					Str("configured_at", port.Position().String()).
					Msg("Configured port is not declared by the program")
			}
		}
	}
	for name, conf := range a.region.Interfaces {
		if !ifaces[name] {
			a.r.logger.Warn().
				Str("interface", name).
				Str("configured_at", conf.Pos.String()).
				Msg("Configured interface is not declared by the program")
		}
	}
}

func staticPortError(kind, name string, declared, configured engine.Position) error {
	return engine.NewPolicyError(fmt.Sprintf(
		"attempting to configure non-external %s port '%s' defined at %s.\n  Configuration took place at %s",
		kind, name, declared, configured,
	), nil).WithSource(configured).WithRelated(declared).WithCode(engine.ErrCodeStaticPort)
}
