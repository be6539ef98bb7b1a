package program

import (
	"fmt"

	"github.com/openfroyo/extconf/pkg/value"
)

// Clone returns a deep copy of p.
func Clone(p *Program) *Program {
	if p == nil {
		return nil
	}
	out := &Program{Source: p.Source, Nodes: make([]Node, len(p.Nodes))}
	for i, n := range p.Nodes {
		out.Nodes[i] = CloneNode(n)
	}
	return out
}

// CloneNode returns a deep copy of n.
func CloneNode(n Node) Node {
	switch n := n.(type) {
	case *OutputPort:
		c := *n
		c.Binding = cloneBinding(n.Binding)
		c.Interfaces = cloneStrings(n.Interfaces)
		return &c
	case *InputPort:
		c := *n
		c.Binding = cloneBinding(n.Binding)
		c.Interfaces = cloneStrings(n.Interfaces)
		c.Operations = CloneOperations(n.Operations)
		return &c
	case *Interface:
		c := *n
		c.Operations = CloneOperations(n.Operations)
		return &c
	case *TypeDecl:
		return &TypeDecl{Def: CloneType(n.Def)}
	case *Init:
		c := &Init{Pos: n.Pos, Body: make([]Statement, len(n.Body))}
		for i, s := range n.Body {
			c.Body[i] = CloneStatement(s)
		}
		return c
	case *EmbedService:
		c := *n
		return &c
	case *Service:
		c := *n
		return &c
	default:
		panic(fmt.Sprintf("program: unknown node type %T", n))
	}
}

// CloneOperations returns a deep copy of ops.
func CloneOperations(ops []*Operation) []*Operation {
	if ops == nil {
		return nil
	}
	out := make([]*Operation, len(ops))
	for i, op := range ops {
		c := *op
		out[i] = &c
	}
	return out
}

// CloneType returns a deep copy of t.
func CloneType(t TypeDef) TypeDef {
	switch t := t.(type) {
	case nil:
		return nil
	case *InlineType:
		c := &InlineType{Name: t.Name, Native: t.Native, Pos: t.Pos}
		for _, sub := range t.Subtypes {
			c.Subtypes = append(c.Subtypes, CloneType(sub))
		}
		return c
	case *ChoiceType:
		return &ChoiceType{Name: t.Name, Left: CloneType(t.Left), Right: CloneType(t.Right), Pos: t.Pos}
	case *LinkType:
		c := *t
		return &c
	default:
		panic(fmt.Sprintf("program: unknown type definition %T", t))
	}
}

// CloneStatement returns a deep copy of s.
func CloneStatement(s Statement) Statement {
	switch s := s.(type) {
	case *DeepCopy:
		return &DeepCopy{Target: s.Target.Clone(), Global: s.Global, Value: value.Clone(s.Value)}
	case *RawStatement:
		c := *s
		return &c
	default:
		panic(fmt.Sprintf("program: unknown statement %T", s))
	}
}

func cloneBinding(b Binding) Binding {
	return Binding{Location: b.Location, Protocol: b.Protocol, Properties: value.Clone(b.Properties)}
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
