package typelink

import (
	"bytes"
	"strings"
	"testing"

	"github.com/openfroyo/extconf/pkg/engine"
	"github.com/openfroyo/extconf/pkg/program"
	"github.com/rs/zerolog"
)

func decl(def program.TypeDef) *program.TypeDecl {
	return &program.TypeDecl{Def: def}
}

func TestResolve(t *testing.T) {
	types := []*program.TypeDecl{
		decl(&program.InlineType{Name: "A", Native: "void", Subtypes: []program.TypeDef{
			&program.LinkType{Name: "b", Linked: "B"},
			&program.InlineType{Name: "n", Native: "int"},
		}}),
		decl(&program.LinkType{Name: "B", Linked: "C"}),
		decl(&program.ChoiceType{
			Name:  "C",
			Left:  &program.LinkType{Name: "C", Linked: "A"},
			Right: &program.LinkType{Name: "C", Linked: program.UndefinedType},
		}),
	}

	var buf bytes.Buffer
	table := Resolve(types, zerolog.New(&buf))

	if len(table.Unresolved) != 0 {
		t.Fatalf("Expected no unresolved links, got %+v", table.Unresolved)
	}
	if buf.Len() != 0 {
		t.Errorf("Expected no log output, got %s", buf.String())
	}

	// builtin + A(b, n) + B + C(left, right)
	if table.Len() != 8 {
		t.Errorf("Expected 8 nodes, got %d", table.Len())
	}

	a, ok := table.Lookup("A")
	if !ok {
		t.Fatal("Expected A in table")
	}
	aNode := table.Node(a)
	if aNode.Kind != KindInline || !aNode.TopLevel || len(aNode.Children) != 2 {
		t.Fatalf("Unexpected node for A: %+v", aNode)
	}
	link := table.Node(aNode.Children[0])
	if link.TopLevel {
		t.Error("Expected nested link not to be top level")
	}
	b, _ := table.Lookup("B")
	if link.Target != b {
		t.Errorf("Expected nested link to target B (%d), got %d", b, link.Target)
	}

	c, _ := table.Lookup("C")
	if table.Node(b).Target != c {
		t.Errorf("Expected B to target C")
	}
	choice := table.Node(c)
	if choice.Kind != KindChoice {
		t.Fatalf("Expected choice, got %s", choice.Kind)
	}
	if table.Node(choice.Children[0]).Target != a {
		t.Error("Expected left alternative to link back to A")
	}
	if table.Node(choice.Children[1]).Target != UndefinedRef {
		t.Error("Expected right alternative to resolve to the undefined sentinel")
	}
}

func TestResolve_UnresolvedIsNonFatal(t *testing.T) {
	types := []*program.TypeDecl{
		decl(&program.LinkType{Name: "A", Linked: "Missing", Pos: engine.Position{File: "svc.ol", Line: 4}}),
		decl(&program.InlineType{Name: "B", Native: "string"}),
	}

	var buf bytes.Buffer
	table := Resolve(types, zerolog.New(&buf))

	if len(table.Unresolved) != 1 {
		t.Fatalf("Expected 1 unresolved link, got %d", len(table.Unresolved))
	}
	u := table.Unresolved[0]
	if u.Linked != "Missing" || u.Pos.Line != 4 {
		t.Errorf("Unexpected unresolved entry %+v", u)
	}
	a, _ := table.Lookup("A")
	if table.Node(a).Target != NoRef {
		t.Errorf("Expected target NoRef, got %d", table.Node(a).Target)
	}
	if _, ok := table.Lookup("B"); !ok {
		t.Error("Expected B to be resolved despite the broken link")
	}

	out := buf.String()
	if !strings.Contains(out, "svc.ol:4: type link to Missing cannot be resolved") {
		t.Errorf("Expected warning in log output, got %s", out)
	}
	if !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("Expected warn level, got %s", out)
	}
}

func TestResolve_FirstDefinitionWins(t *testing.T) {
	types := []*program.TypeDecl{
		decl(&program.InlineType{Name: "A", Native: "int"}),
		decl(&program.InlineType{Name: "A", Native: "string"}),
	}
	table := Resolve(types, zerolog.Nop())

	a, _ := table.Lookup("A")
	if got := table.Node(a).Def.(*program.InlineType).Native; got != "int" {
		t.Errorf("Expected first definition, got native %s", got)
	}
}

func TestLookup_Undefined(t *testing.T) {
	table := Resolve(nil, zerolog.Nop())
	ref, ok := table.Lookup(program.UndefinedType)
	if !ok || ref != UndefinedRef {
		t.Errorf("Expected undefined sentinel, got %d %v", ref, ok)
	}
	if table.Node(ref).Kind != KindBuiltin {
		t.Errorf("Expected builtin kind, got %s", table.Node(ref).Kind)
	}
}
