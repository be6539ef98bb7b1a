package col

import (
	"fmt"

	"github.com/openfroyo/extconf/pkg/engine"
	"github.com/openfroyo/extconf/pkg/value"
)

// Merge returns a new region in which child overrides parent.
// Neither argument is modified. Both regions must configure the same package.
// The result takes its identity from child: profile, extends and position.
// Merging an empty child therefore equals parent in everything but those.
func Merge(child, parent *Region) (*Region, error) {
	if child.Package != parent.Package {
		return nil, engine.NewInvariantError(fmt.Sprintf(
			"cannot merge region '%s' with region '%s' of a different package", child, parent,
		), nil).WithSource(child.Pos).WithRelated(parent.Pos).WithCode(engine.ErrCodePackageMismatch)
	}

	out := &Region{
		Profile:     child.Profile,
		Package:     child.Package,
		Extends:     child.Extends,
		InputPorts:  mergePorts(child.InputPorts, parent.InputPorts),
		OutputPorts: mergePorts(child.OutputPorts, parent.OutputPorts),
		Interfaces:  make(map[string]*Interface, len(child.Interfaces)+len(parent.Interfaces)),
		Params:      make([]*Param, 0, len(parent.Params)+len(child.Params)),
		Pos:         child.Pos,
	}

	for name, iface := range parent.Interfaces {
		c := *iface
		out.Interfaces[name] = &c
	}
	for name, iface := range child.Interfaces {
		c := *iface
		out.Interfaces[name] = &c
	}

	for _, param := range parent.Params {
		out.Params = append(out.Params, cloneParam(param))
	}
	for _, param := range child.Params {
		out.Params = append(out.Params, cloneParam(param))
	}

	return out, nil
}

func mergePorts(child, parent map[string]Port) map[string]Port {
	out := make(map[string]Port, len(child)+len(parent))
	for name, port := range child {
		out[name] = ClonePort(port)
	}
	for name, pp := range parent {
		cp, exists := out[name]
		if !exists {
			out[name] = ClonePort(pp)
			continue
		}
		out[name] = mergePort(cp, pp)
	}
	return out
}

// mergePort fills unset fields of child from parent. An embedding child
// wins as a whole. A concrete child over an embedding parent keeps only its
// own fields.
func mergePort(child, parent Port) Port {
	cc, ok := child.(*ConcretePort)
	if !ok {
		return child
	}
	pc, ok := parent.(*ConcretePort)
	if !ok {
		return child
	}

	if cc.Location == nil && pc.Location != nil {
		loc := *pc.Location
		cc.Location = &loc
	}
	switch {
	case cc.Protocol == nil && pc.Protocol != nil:
		cc.Protocol = cloneProtocol(pc.Protocol)
	case cc.Protocol != nil && pc.Protocol != nil:
		if cc.Protocol.Type == nil && pc.Protocol.Type != nil {
			t := *pc.Protocol.Type
			cc.Protocol.Type = &t
		}
		if cc.Protocol.Properties == nil && pc.Protocol.Properties != nil {
			cc.Protocol.Properties = value.Clone(pc.Protocol.Properties)
		}
	}
	return cc
}

// ClonePort returns a deep copy of port.
func ClonePort(port Port) Port {
	switch p := port.(type) {
	case *EmbeddingPort:
		c := *p
		return &c
	case *ConcretePort:
		c := &ConcretePort{PortName: p.PortName, Pos: p.Pos}
		if p.Location != nil {
			loc := *p.Location
			c.Location = &loc
		}
		if p.Protocol != nil {
			c.Protocol = cloneProtocol(p.Protocol)
		}
		return c
	default:
		panic(fmt.Sprintf("col: unknown port type %T", port))
	}
}

func cloneProtocol(p *Protocol) *Protocol {
	c := &Protocol{Properties: value.Clone(p.Properties)}
	if p.Type != nil {
		t := *p.Type
		c.Type = &t
	}
	return c
}

func cloneParam(p *Param) *Param {
	return &Param{Path: p.Path.Clone(), Value: value.Clone(p.Value), Pos: p.Pos}
}
