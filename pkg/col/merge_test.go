package col

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/openfroyo/extconf/pkg/engine"
	"github.com/openfroyo/extconf/pkg/value"
)

func strPtr(s string) *string { return &s }

func parentRegion() *Region {
	p := NewRegion("svc", "base")
	p.Pos = engine.Position{File: "base.col", Line: 1}
	p.OutputPorts["X"] = &ConcretePort{
		PortName: "X",
		Location: strPtr("socket://parent:1"),
		Protocol: &Protocol{
			Type:       strPtr("sodep"),
			Properties: &value.Tree{Root: value.Void(), Assignments: []value.Assignment{{Path: value.MustParsePath("keepAlive"), Value: value.Bool(true)}}},
		},
		Pos: engine.Position{File: "base.col", Line: 2},
	}
	p.OutputPorts["Y"] = &EmbeddingPort{PortName: "Y", Module: "m", Profile: "mp"}
	p.InputPorts["IP"] = &ConcretePort{PortName: "IP", Location: strPtr("socket://localhost:8000")}
	p.Interfaces["I"] = &Interface{Local: "I", Real: "Base", Package: "lib"}
	p.Params = []*Param{
		{Path: value.MustParsePath("p1"), Value: value.Int(1)},
		{Path: value.MustParsePath("p2"), Value: value.Int(2)},
	}
	return p
}

func TestMerge_EmptyChildIsIdentity(t *testing.T) {
	parent := parentRegion()
	child := NewRegion("svc", "prod")
	child.Extends = "base"
	child.Pos = engine.Position{File: "prod.col", Line: 7}

	merged, err := Merge(child, parent)
	if err != nil {
		t.Fatalf("unexpected merge error: %v", err)
	}

	// Identity comes from the child; everything else from the parent.
	want := parentRegion()
	want.Profile = "prod"
	want.Extends = "base"
	want.Pos = child.Pos
	if diff := cmp.Diff(want, merged); diff != "" {
		t.Errorf("merge mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge_ChildOverridesField(t *testing.T) {
	parent := parentRegion()
	child := NewRegion("svc", "prod")
	child.OutputPorts["X"] = &ConcretePort{PortName: "X", Location: strPtr("socket://child:2")}

	merged, err := Merge(child, parent)
	if err != nil {
		t.Fatalf("unexpected merge error: %v", err)
	}

	x := merged.OutputPorts["X"].(*ConcretePort)
	if *x.Location != "socket://child:2" {
		t.Errorf("Expected child location, got %s", *x.Location)
	}
	if diff := cmp.Diff(parent.OutputPorts["X"].(*ConcretePort).Protocol, x.Protocol); diff != "" {
		t.Errorf("Expected parent protocol (-want +got):\n%s", diff)
	}

	t.Run("protocol type only", func(t *testing.T) {
		child := NewRegion("svc", "prod")
		child.OutputPorts["X"] = &ConcretePort{PortName: "X", Protocol: &Protocol{Type: strPtr("http")}}
		merged, err := Merge(child, parentRegion())
		if err != nil {
			t.Fatalf("unexpected merge error: %v", err)
		}
		x := merged.OutputPorts["X"].(*ConcretePort)
		if *x.Protocol.Type != "http" {
			t.Errorf("Expected child protocol type, got %s", *x.Protocol.Type)
		}
		if x.Protocol.Properties == nil {
			t.Error("Expected parent protocol properties to be inherited")
		}
		if *x.Location != "socket://parent:1" {
			t.Errorf("Expected parent location, got %s", *x.Location)
		}
	})
}

func TestMerge_EmbeddingIsAtomic(t *testing.T) {
	embed := &EmbeddingPort{PortName: "X", Module: "audit", Profile: "audit-prod"}
	child := NewRegion("svc", "prod")
	child.OutputPorts["X"] = embed

	merged, err := Merge(child, parentRegion())
	if err != nil {
		t.Fatalf("unexpected merge error: %v", err)
	}
	if diff := cmp.Diff(Port(embed), merged.OutputPorts["X"]); diff != "" {
		t.Errorf("embedding port changed (-want +got):\n%s", diff)
	}

	t.Run("concrete over embedding", func(t *testing.T) {
		child := NewRegion("svc", "prod")
		child.OutputPorts["Y"] = &ConcretePort{PortName: "Y", Location: strPtr("socket://y:1")}
		merged, err := Merge(child, parentRegion())
		if err != nil {
			t.Fatalf("unexpected merge error: %v", err)
		}
		y, ok := merged.OutputPorts["Y"].(*ConcretePort)
		if !ok {
			t.Fatalf("Expected concrete port, got %T", merged.OutputPorts["Y"])
		}
		if y.Protocol != nil {
			t.Errorf("Expected no inherited protocol, got %+v", y.Protocol)
		}
	})
}

func TestMerge_InterfacesAndParams(t *testing.T) {
	child := NewRegion("svc", "prod")
	child.Interfaces["I"] = &Interface{Local: "I", Real: "Override", Package: "lib2"}
	child.Interfaces["J"] = &Interface{Local: "J", Real: "J", Package: "lib"}
	child.Params = []*Param{{Path: value.MustParsePath("p3"), Value: value.Int(3)}}

	merged, err := Merge(child, parentRegion())
	if err != nil {
		t.Fatalf("unexpected merge error: %v", err)
	}
	if merged.Interfaces["I"].Real != "Override" {
		t.Errorf("Expected child interface to win, got %s", merged.Interfaces["I"].Real)
	}
	if len(merged.Interfaces) != 2 {
		t.Errorf("Expected 2 interfaces, got %d", len(merged.Interfaces))
	}

	var paths []string
	for _, p := range merged.Params {
		paths = append(paths, p.Path.String())
	}
	if diff := cmp.Diff([]string{"p1", "p2", "p3"}, paths); diff != "" {
		t.Errorf("param order mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge_DoesNotModifyInputs(t *testing.T) {
	parent := parentRegion()
	child := NewRegion("svc", "prod")
	child.OutputPorts["X"] = &ConcretePort{PortName: "X"}

	merged, err := Merge(child, parent)
	if err != nil {
		t.Fatalf("unexpected merge error: %v", err)
	}
	*merged.OutputPorts["X"].(*ConcretePort).Location = "changed"

	if child.OutputPorts["X"].(*ConcretePort).Location != nil {
		t.Error("Expected child port to stay unset")
	}
	if diff := cmp.Diff(parentRegion(), parent); diff != "" {
		t.Errorf("parent modified (-want +got):\n%s", diff)
	}
}

func TestMerge_PackageMismatch(t *testing.T) {
	_, err := Merge(NewRegion("a", "p"), NewRegion("b", "p"))
	if err == nil {
		t.Fatal("Expected package mismatch error, got nil")
	}
	if engine.CodeOf(err) != engine.ErrCodePackageMismatch {
		t.Errorf("Expected code %s, got %s", engine.ErrCodePackageMismatch, engine.CodeOf(err))
	}
}
