// Package program defines the syntax tree of a service program as seen by
// the configuration resolver: the top-level declarations it can rewrite
// and the type definitions needed to inject foreign interfaces.
//
// Programs are produced by an external host parser and exchanged as YAML
// documents (see Decode and Encode).
package program

import (
	"fmt"

	"github.com/openfroyo/extconf/pkg/engine"
	"github.com/openfroyo/extconf/pkg/value"
)

// Program is the list of top-level declarations of one source document.
type Program struct {
	Source string
	Nodes  []Node
}

// Node is a top-level declaration. The concrete types are *OutputPort,
// *InputPort, *Interface, *TypeDecl, *Init, *EmbedService and *Service.
type Node interface {
	isNode()
	Position() engine.Position
}

// Binding holds the location and protocol of a port. Empty strings and a
// nil Properties mean "not set".
type Binding struct {
	Location   string
	Protocol   string
	Properties value.Expr
}

// OutputPort is an output port declaration.
type OutputPort struct {
	Name       string
	External   bool
	Binding    Binding
	Interfaces []string
	Pos        engine.Position
}

// InputPort is an input port declaration.
type InputPort struct {
	Name       string
	External   bool
	Binding    Binding
	Interfaces []string
	Operations []*Operation
	Pos        engine.Position
}

// Interface is an interface declaration. An external interface has its
// operations supplied by configuration.
type Interface struct {
	Name       string
	External   bool
	Operations []*Operation
	Pos        engine.Position
}

// TypeDecl is a top-level type definition.
type TypeDecl struct {
	Def TypeDef
}

// Init is the initialization block of the program.
type Init struct {
	Body []Statement
	Pos  engine.Position
}

// EmbedService launches a sub-service and binds it to an output port.
type EmbedService struct {
	Kind    string
	Command string
	Port    string
	Pos     engine.Position
}

// Service is any other top-level declaration. It is carried unchanged.
type Service struct {
	Name string
	Text string
	Pos  engine.Position
}

func (*OutputPort) isNode()   {}
func (*InputPort) isNode()    {}
func (*Interface) isNode()    {}
func (*TypeDecl) isNode()     {}
func (*Init) isNode()         {}
func (*EmbedService) isNode() {}
func (*Service) isNode()      {}

func (n *OutputPort) Position() engine.Position   { return n.Pos }
func (n *InputPort) Position() engine.Position    { return n.Pos }
func (n *Interface) Position() engine.Position    { return n.Pos }
func (n *TypeDecl) Position() engine.Position     { return n.Def.Position() }
func (n *Init) Position() engine.Position         { return n.Pos }
func (n *EmbedService) Position() engine.Position { return n.Pos }
func (n *Service) Position() engine.Position      { return n.Pos }

// EmbedKindService is the embedding kind used for configured sub-services.
const EmbedKindService = "service"

// OperationKind distinguishes one-way and request-response operations.
type OperationKind string

const (
	OneWay          OperationKind = "one-way"
	RequestResponse OperationKind = "request-response"
)

// Operation is an interface operation. Request and Response name types.
type Operation struct {
	Name     string
	Kind     OperationKind
	Request  string
	Response string
}

// TypeDef is a type definition: *InlineType, *ChoiceType or *LinkType.
type TypeDef interface {
	isTypeDef()
	TypeName() string
	Position() engine.Position
}

// InlineType is a native root type with named subtypes.
type InlineType struct {
	Name     string
	Native   string
	Subtypes []TypeDef
	Pos      engine.Position
}

// ChoiceType is the union of two alternatives.
type ChoiceType struct {
	Name  string
	Left  TypeDef
	Right TypeDef
	Pos   engine.Position
}

// LinkType refers to a top-level type by name.
type LinkType struct {
	Name   string
	Linked string
	Pos    engine.Position
}

func (*InlineType) isTypeDef() {}
func (*ChoiceType) isTypeDef() {}
func (*LinkType) isTypeDef()   {}

func (t *InlineType) TypeName() string { return t.Name }
func (t *ChoiceType) TypeName() string { return t.Name }
func (t *LinkType) TypeName() string   { return t.Name }

func (t *InlineType) Position() engine.Position { return t.Pos }
func (t *ChoiceType) Position() engine.Position { return t.Pos }
func (t *LinkType) Position() engine.Position   { return t.Pos }

// UndefinedType is the name of the built-in type that accepts any value.
const UndefinedType = "undefined"

var nativeTypes = map[string]bool{
	"void": true, "bool": true, "int": true, "long": true, "double": true,
	"string": true, "raw": true, "any": true, UndefinedType: true,
}

// IsNative reports whether name is a built-in type.
func IsNative(name string) bool {
	return nativeTypes[name]
}

// Statement is an initialization statement: *DeepCopy or *RawStatement.
type Statement interface {
	isStatement()
	String() string
}

// DeepCopy assigns a value tree to a variable path.
type DeepCopy struct {
	Target value.Path
	Global bool
	Value  value.Expr
}

// RawStatement is host code the resolver does not interpret.
type RawStatement struct {
	Text string
}

func (*DeepCopy) isStatement()     {}
func (*RawStatement) isStatement() {}

func (s *DeepCopy) String() string {
	target := s.Target.String()
	if s.Global {
		target = "global." + target
	}
	return fmt.Sprintf("%s << %s", target, s.Value)
}

func (s *RawStatement) String() string { return s.Text }

// Find returns the first node of type T named name.
func Find[T Node](p *Program, name string) (T, bool) {
	var zero T
	for _, n := range p.Nodes {
		t, ok := n.(T)
		if !ok {
			continue
		}
		if nodeName(n) == name {
			return t, true
		}
	}
	return zero, false
}

// Types returns the top-level type declarations of the program.
func (p *Program) Types() []*TypeDecl {
	var out []*TypeDecl
	for _, n := range p.Nodes {
		if t, ok := n.(*TypeDecl); ok {
			out = append(out, t)
		}
	}
	return out
}

func nodeName(n Node) string {
	switch n := n.(type) {
	case *OutputPort:
		return n.Name
	case *InputPort:
		return n.Name
	case *Interface:
		return n.Name
	case *TypeDecl:
		return n.Def.TypeName()
	case *EmbedService:
		return n.Port
	case *Service:
		return n.Name
	default:
		return ""
	}
}
