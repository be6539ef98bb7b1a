// Package value models the literal and tree-construction subset of the
// expression language used for configuration values.
package value

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the type of a literal.
type Kind int

const (
	// KindVoid is the empty root of a tree without a literal.
	KindVoid Kind = iota
	KindString
	KindInt
	KindLong
	KindDouble
	KindBool
)

var kindNames = map[Kind]string{
	KindVoid:   "void",
	KindString: "string",
	KindInt:    "int",
	KindLong:   "long",
	KindDouble: "double",
	KindBool:   "bool",
}

// String returns the type name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind returns the kind with the given type name.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return KindVoid, false
}

// Expr is a configuration value expression: either a *Literal or a *Tree.
type Expr interface {
	isExpr()
	String() string
}

// Literal is a primitive constant.
type Literal struct {
	Kind  Kind
	Str   string
	Int   int64
	Float float64
	Bool  bool
}

func (*Literal) isExpr() {}

// Void returns the empty literal.
func Void() *Literal { return &Literal{Kind: KindVoid} }

// String returns a string literal.
func String(s string) *Literal { return &Literal{Kind: KindString, Str: s} }

// Int returns an int literal.
func Int(i int64) *Literal { return &Literal{Kind: KindInt, Int: i} }

// Long returns a long literal.
func Long(i int64) *Literal { return &Literal{Kind: KindLong, Int: i} }

// Double returns a double literal.
func Double(f float64) *Literal { return &Literal{Kind: KindDouble, Float: f} }

// Bool returns a bool literal.
func Bool(b bool) *Literal { return &Literal{Kind: KindBool, Bool: b} }

// Interface returns the literal as a plain Go value.
func (l *Literal) Interface() any {
	switch l.Kind {
	case KindString:
		return l.Str
	case KindInt, KindLong:
		return l.Int
	case KindDouble:
		return l.Float
	case KindBool:
		return l.Bool
	default:
		return nil
	}
}

// String renders the literal in configuration syntax.
func (l *Literal) String() string {
	switch l.Kind {
	case KindString:
		return strconv.Quote(l.Str)
	case KindInt:
		return strconv.FormatInt(l.Int, 10)
	case KindLong:
		return strconv.FormatInt(l.Int, 10) + "L"
	case KindDouble:
		s := strconv.FormatFloat(l.Float, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s
	case KindBool:
		return strconv.FormatBool(l.Bool)
	default:
		return ""
	}
}

// Assignment sets the value at Path inside a tree.
type Assignment struct {
	Path  Path
	Value Expr
}

// Tree is a root literal followed by ordered path assignments.
type Tree struct {
	Root        *Literal
	Assignments []Assignment
}

func (*Tree) isExpr() {}

// String renders the tree in configuration syntax.
func (t *Tree) String() string {
	var sb strings.Builder
	if t.Root != nil && t.Root.Kind != KindVoid {
		sb.WriteString(t.Root.String())
		sb.WriteByte(' ')
	}
	sb.WriteByte('{')
	for i, a := range t.Assignments {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(".")
		sb.WriteString(a.Path.String())
		sb.WriteString(" = ")
		sb.WriteString(a.Value.String())
	}
	sb.WriteByte('}')
	return sb.String()
}

// Clone returns a deep copy of e.
func Clone(e Expr) Expr {
	switch v := e.(type) {
	case nil:
		return nil
	case *Literal:
		c := *v
		return &c
	case *Tree:
		c := &Tree{Assignments: make([]Assignment, len(v.Assignments))}
		if v.Root != nil {
			root := *v.Root
			c.Root = &root
		}
		for i, a := range v.Assignments {
			c.Assignments[i] = Assignment{Path: a.Path.Clone(), Value: Clone(a.Value)}
		}
		return c
	default:
		panic(fmt.Sprintf("value: unknown expression %T", e))
	}
}
