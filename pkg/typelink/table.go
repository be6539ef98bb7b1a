// Package typelink builds a name-indexed table of the type definitions of
// one program and resolves the links between them.
//
// Nodes live in an arena and refer to each other by Ref, so cyclic type
// graphs need no pointer cycles.
package typelink

import (
	"github.com/openfroyo/extconf/pkg/engine"
	"github.com/openfroyo/extconf/pkg/program"
	"github.com/rs/zerolog"
)

// Ref addresses a node in a Table.
type Ref int

const (
	// NoRef marks a link whose target could not be resolved.
	NoRef Ref = -1

	// UndefinedRef is the built-in undefined type. It is always present.
	UndefinedRef Ref = 0
)

// Kind is the shape of a node.
type Kind int

const (
	KindBuiltin Kind = iota
	KindInline
	KindChoice
	KindLink
)

func (k Kind) String() string {
	switch k {
	case KindBuiltin:
		return "builtin"
	case KindInline:
		return "inline"
	case KindChoice:
		return "choice"
	case KindLink:
		return "link"
	default:
		return "unknown"
	}
}

// Node is one type definition.
type Node struct {
	Kind Kind
	Name string

	// Def is the definition the node was built from. It is nil for builtins.
	Def program.TypeDef

	// Children are the subtypes of an inline node, or the left and right
	// alternatives of a choice node.
	Children []Ref

	// Linked and Target describe a link node. Target is NoRef until resolved.
	Linked string
	Target Ref

	// TopLevel is set for definitions declared at program level.
	TopLevel bool
}

// Unresolved records a link whose target is not in the table.
type Unresolved struct {
	Ref    Ref
	Linked string
	Pos    engine.Position
}

// Table is the arena of type nodes of one program.
type Table struct {
	nodes []Node
	names map[string]Ref

	// Unresolved lists the links left without a target, in declaration order.
	Unresolved []Unresolved
}

// Resolve builds the table for types in two passes. The first pass
// materializes every definition, nested ones included. The second pass
// points each link at its target. A link that cannot be resolved is
// logged and left at NoRef.
func Resolve(types []*program.TypeDecl, log zerolog.Logger) *Table {
	t := &Table{
		nodes: []Node{{Kind: KindBuiltin, Name: program.UndefinedType, Target: NoRef, TopLevel: true}},
		names: make(map[string]Ref),
	}

	for _, decl := range types {
		ref := t.materialize(decl.Def, true)
		name := decl.Def.TypeName()
		if prev, exists := t.names[name]; exists {
			log.Debug().
				Str("type", name).
				Str("first", t.nodes[prev].Def.Position().String()).
				Msg("Ignoring redefinition of type")
			continue
		}
		t.names[name] = ref
	}

	for i := range t.nodes {
		n := &t.nodes[i]
		if n.Kind != KindLink {
			continue
		}
		if n.Linked == program.UndefinedType {
			n.Target = UndefinedRef
			continue
		}
		if target, ok := t.names[n.Linked]; ok {
			n.Target = target
			continue
		}
		pos := n.Def.Position()
		t.Unresolved = append(t.Unresolved, Unresolved{Ref: Ref(i), Linked: n.Linked, Pos: pos})
		log.Warn().
			Str("type", n.Name).
			Str("link", n.Linked).
			Msgf("%s: type link to %s cannot be resolved", pos, n.Linked)
	}

	return t
}

func (t *Table) materialize(def program.TypeDef, topLevel bool) Ref {
	ref := Ref(len(t.nodes))
	t.nodes = append(t.nodes, Node{Name: def.TypeName(), Def: def, Target: NoRef, TopLevel: topLevel})

	switch d := def.(type) {
	case *program.InlineType:
		children := make([]Ref, 0, len(d.Subtypes))
		for _, sub := range d.Subtypes {
			children = append(children, t.materialize(sub, false))
		}
		t.nodes[ref].Kind = KindInline
		t.nodes[ref].Children = children
	case *program.ChoiceType:
		left := t.materialize(d.Left, false)
		right := t.materialize(d.Right, false)
		t.nodes[ref].Kind = KindChoice
		t.nodes[ref].Children = []Ref{left, right}
	case *program.LinkType:
		t.nodes[ref].Kind = KindLink
		t.nodes[ref].Linked = d.Linked
	}
	return ref
}

// Lookup returns the top-level type named name.
func (t *Table) Lookup(name string) (Ref, bool) {
	if name == program.UndefinedType {
		return UndefinedRef, true
	}
	ref, ok := t.names[name]
	return ref, ok
}

// Node returns the node at ref. The pointer is valid until the table is
// discarded; callers must not modify it.
func (t *Table) Node(ref Ref) *Node {
	return &t.nodes[ref]
}

// Len returns the number of nodes, builtins included.
func (t *Table) Len() int {
	return len(t.nodes)
}
