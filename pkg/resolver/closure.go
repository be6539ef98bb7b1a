package resolver

import (
	"fmt"

	"github.com/openfroyo/extconf/pkg/engine"
	"github.com/openfroyo/extconf/pkg/program"
	"github.com/openfroyo/extconf/pkg/typelink"
)

// closure returns the top-level type definitions reachable from the
// operations of iface, in discovery order. Definitions already present in
// the target program or emitted earlier in the same Apply are skipped.
//
// Inline subtypes and choice alternatives stay inside their parent. A
// link always lands on a top-level definition, which is emitted on its
// own. A link that cannot be resolved is fatal here, unlike in the type
// table itself.
func (a *applier) closure(src *foreign, iface *program.Interface) ([]program.Node, error) {
	c := &typeClosure{
		a:       a,
		table:   src.types,
		visited: make(map[typelink.Ref]bool),
	}

	for _, op := range iface.Operations {
		if err := c.visitName(op.Request, iface); err != nil {
			return nil, err
		}
		if op.Kind == program.RequestResponse {
			if err := c.visitName(op.Response, iface); err != nil {
				return nil, err
			}
		}
	}
	return c.out, nil
}

type typeClosure struct {
	a       *applier
	table   *typelink.Table
	visited map[typelink.Ref]bool
	out     []program.Node
}

func (c *typeClosure) visitName(name string, iface *program.Interface) error {
	if name == "" || program.IsNative(name) {
		return nil
	}
	ref, ok := c.table.Lookup(name)
	if !ok {
		return undefinedTypeError(name, iface.Pos)
	}
	return c.visit(ref, true)
}

func (c *typeClosure) visit(ref typelink.Ref, topLevel bool) error {
	if c.visited[ref] {
		return nil
	}
	c.visited[ref] = true

	n := c.table.Node(ref)
	switch n.Kind {
	case typelink.KindBuiltin:
		return nil
	case typelink.KindInline, typelink.KindChoice:
		if topLevel {
			c.emit(n)
		}
		for _, child := range n.Children {
			if err := c.visit(child, false); err != nil {
				return err
			}
		}
		return nil
	case typelink.KindLink:
		if n.Target == typelink.NoRef {
			return undefinedTypeError(n.Linked, n.Def.Position())
		}
		if topLevel {
			c.emit(n)
		}
		return c.visit(n.Target, true)
	default:
		panic(fmt.Sprintf("resolver: unknown type node kind %s", n.Kind))
	}
}

func (c *typeClosure) emit(n *typelink.Node) {
	name := n.Name
	switch {
	case c.a.emitted[name]:
		return
	case c.a.declared[name]:
		c.a.r.logger.Debug().
			Str("type", name).
			Str("from", n.Def.Position().String()).
			Msg("Type is already declared by the program, not injecting")
		return
	}
	c.a.emitted[name] = true
	c.a.injected++
	c.out = append(c.out, &program.TypeDecl{Def: program.CloneType(n.Def)})
}

func undefinedTypeError(name string, pos engine.Position) error {
	return engine.NewLookupError(fmt.Sprintf(
		"undefined type '%s' [%s]. Happened while attempting to inject interface", name, pos,
	), nil).WithSource(pos).WithCode(engine.ErrCodeUndefinedType)
}
