package resolver

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/openfroyo/extconf/pkg/col"
	"github.com/openfroyo/extconf/pkg/engine"
	"github.com/openfroyo/extconf/pkg/program"
)

func decl(def program.TypeDef) *program.TypeDecl { return &program.TypeDecl{Def: def} }

func link(name, target string) *program.LinkType {
	return &program.LinkType{Name: name, Linked: target, Pos: engine.Position{File: "storage.ol", Line: 1}}
}

func inline(name, native string, subtypes ...program.TypeDef) *program.InlineType {
	return &program.InlineType{Name: name, Native: native, Subtypes: subtypes}
}

// storageProgram declares A -> B (link) -> C (choice of D, E), where E
// refers back to A.
func storageProgram() *program.Program {
	return &program.Program{Source: "storage.ol", Nodes: []program.Node{
		decl(inline("A", "void", link("b", "B"), inline("id", "string"))),
		decl(link("B", "C")),
		decl(&program.ChoiceType{Name: "C", Left: link("C", "D"), Right: link("C", "E")}),
		decl(inline("D", "string")),
		decl(inline("E", "int", link("parent", "A"), link("any", "undefined"))),
		decl(inline("Unused", "bool")),
		&program.Interface{
			Name: "StoreV2",
			Operations: []*program.Operation{
				{Name: "get", Kind: program.RequestResponse, Request: "A", Response: "B"},
				{Name: "put", Kind: program.OneWay, Request: "D"},
				{Name: "ping", Kind: program.RequestResponse, Request: "void", Response: "undefined"},
			},
			Pos: engine.Position{File: "storage.ol", Line: 40},
		},
		&program.Interface{Name: "Pending", External: true},
		&program.Interface{Name: "Hollow"},
		&program.Interface{
			Name:       "Broken",
			Operations: []*program.Operation{{Name: "x", Kind: program.OneWay, Request: "Missing"}},
		},
		&program.Interface{
			Name:       "Dangling",
			Operations: []*program.Operation{{Name: "x", Kind: program.OneWay, Request: "Ghostly"}},
		},
		decl(inline("Ghostly", "void", link("g", "Ghost"))),
	}}
}

func injectRegion(local, realName, pkg string) *col.Region {
	region := col.NewRegion("svc", "prod")
	region.Interfaces[local] = &col.Interface{
		Local:   local,
		Real:    realName,
		Package: pkg,
		Pos:     engine.Position{File: "prod.col", Line: 3},
	}
	return region
}

func typeNames(nodes []program.Node) []string {
	var names []string
	for _, n := range nodes {
		if t, ok := n.(*program.TypeDecl); ok {
			names = append(names, t.Def.TypeName())
		}
	}
	return names
}

func TestApply_InterfaceClosure(t *testing.T) {
	f := newFixture(t)
	f.loader["storage"] = storageProgram()

	prog := &program.Program{Nodes: []program.Node{
		&program.Interface{Name: "Store", External: true, Pos: pos(1)},
		&program.OutputPort{Name: "S", Interfaces: []string{"Store"}, Pos: pos(2)},
	}}

	out, injected, err := f.resolver(t, "", "").apply(context.Background(), prog, injectRegion("Store", "StoreV2", "storage"))
	if err != nil {
		t.Fatalf("apply() error: %v", err)
	}

	if diff := cmp.Diff([]string{"A", "B", "C", "D", "E"}, typeNames(out.Nodes)); diff != "" {
		t.Errorf("injected types mismatch (-want +got):\n%s", diff)
	}
	if injected != 5 {
		t.Errorf("Expected 5 injected types, got %d", injected)
	}

	// Types precede the interface they serve.
	iface, ok := out.Nodes[5].(*program.Interface)
	if !ok {
		t.Fatalf("Expected interface after the types, got %T", out.Nodes[5])
	}
	if iface.External {
		t.Error("Expected injected interface to be bound")
	}
	var ops []string
	for _, op := range iface.Operations {
		ops = append(ops, op.Name)
	}
	if diff := cmp.Diff([]string{"get", "put", "ping"}, ops); diff != "" {
		t.Errorf("operations mismatch (-want +got):\n%s", diff)
	}

	// Injected definitions are copies.
	a := out.Nodes[0].(*program.TypeDecl).Def.(*program.InlineType)
	a.Native = "string"
	if f.loader["storage"].Nodes[0].(*program.TypeDecl).Def.(*program.InlineType).Native != "void" {
		t.Error("Expected injected type to be copied")
	}
}

func TestApply_SharedTypesInjectedOnce(t *testing.T) {
	f := newFixture(t)
	f.loader["storage"] = storageProgram()

	region := injectRegion("Store", "StoreV2", "storage")
	region.Interfaces["Backup"] = &col.Interface{Local: "Backup", Real: "StoreV2", Package: "storage"}

	prog := &program.Program{Nodes: []program.Node{
		decl(inline("D", "string")),
		&program.Interface{Name: "Store", External: true},
		&program.Interface{Name: "Backup", External: true},
	}}

	out, injected, err := f.resolver(t, "", "").apply(context.Background(), prog, region)
	if err != nil {
		t.Fatalf("apply() error: %v", err)
	}
	// D is declared by the program itself.
	if diff := cmp.Diff([]string{"D", "A", "B", "C", "E"}, typeNames(out.Nodes)); diff != "" {
		t.Errorf("types mismatch (-want +got):\n%s", diff)
	}
	if injected != 4 {
		t.Errorf("Expected 4 injected types, got %d", injected)
	}
}

func TestApply_InterfaceErrors(t *testing.T) {
	tests := []struct {
		name      string
		local     *program.Interface
		real      string
		pkg       string
		wantClass engine.ErrorClass
		wantCode  string
		wantMsg   string
	}{
		{
			name:      "static interface",
			local:     &program.Interface{Name: "Store", Pos: pos(5)},
			real:      "StoreV2",
			pkg:       "storage",
			wantClass: engine.ErrorClassPolicy,
			wantCode:  engine.ErrCodeStaticInterface,
			wantMsg:   "main.ol:5",
		},
		{
			name:      "unknown package",
			local:     &program.Interface{Name: "Store", External: true},
			real:      "StoreV2",
			pkg:       "storag",
			wantClass: engine.ErrorClassLookup,
			wantCode:  engine.ErrCodeUnknownPackage,
			wantMsg:   "Did you forget to configure it with --pkg? Did you mean 'storage'?",
		},
		{
			name:      "unknown interface",
			local:     &program.Interface{Name: "Store", External: true},
			real:      "StoreV3",
			pkg:       "storage",
			wantClass: engine.ErrorClassLookup,
			wantCode:  engine.ErrCodeUnknownInterface,
			wantMsg:   "unable to find interface 'StoreV3' from package 'storage'",
		},
		{
			name:      "external target",
			local:     &program.Interface{Name: "Store", External: true},
			real:      "Pending",
			pkg:       "storage",
			wantClass: engine.ErrorClassPolicy,
			wantCode:  engine.ErrCodeEmptyInterface,
			wantMsg:   "empty interface Pending",
		},
		{
			name:      "no operations",
			local:     &program.Interface{Name: "Store", External: true},
			real:      "Hollow",
			pkg:       "storage",
			wantClass: engine.ErrorClassPolicy,
			wantCode:  engine.ErrCodeEmptyInterface,
			wantMsg:   "empty interface Hollow",
		},
		{
			name:      "undefined operation type",
			local:     &program.Interface{Name: "Store", External: true},
			real:      "Broken",
			pkg:       "storage",
			wantClass: engine.ErrorClassLookup,
			wantCode:  engine.ErrCodeUndefinedType,
			wantMsg:   "undefined type 'Missing'",
		},
		{
			name:      "dangling link",
			local:     &program.Interface{Name: "Store", External: true},
			real:      "Dangling",
			pkg:       "storage",
			wantClass: engine.ErrorClassLookup,
			wantCode:  engine.ErrCodeUndefinedType,
			wantMsg:   "undefined type 'Ghost' [storage.ol:1]",
		},
		{
			name:      "package program missing",
			local:     &program.Interface{Name: "Store", External: true},
			real:      "StoreV2",
			pkg:       "audit",
			wantClass: engine.ErrorClassIO,
			wantCode:  engine.ErrCodeFileNotFound,
			wantMsg:   "unable to parse package 'audit'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.loader["storage"] = storageProgram()
			prog := &program.Program{Nodes: []program.Node{tt.local}}

			out, err := f.resolver(t, "", "").Apply(context.Background(), prog, injectRegion("Store", tt.real, tt.pkg))
			if err == nil {
				t.Fatal("Expected an error")
			}
			if out != nil {
				t.Error("Expected no output program")
			}
			if engine.ClassOf(err) != tt.wantClass || engine.CodeOf(err) != tt.wantCode {
				t.Errorf("Expected %s/%s, got %s/%s: %v",
					tt.wantClass, tt.wantCode, engine.ClassOf(err), engine.CodeOf(err), err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Expected %q in %v", tt.wantMsg, err)
			}
		})
	}
}

func TestApply_FileLoader(t *testing.T) {
	f := newFixture(t)
	var buf strings.Builder
	if err := program.Encode(&buf, storageProgram()); err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	path := filepath.Join(f.packages["storage"].Root, engine.DefaultEntryPoint)
	if err := os.WriteFile(path, []byte(buf.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := New(Options{ThisPackage: "svc", Packages: f.packages})
	if err != nil {
		t.Fatal(err)
	}
	prog := &program.Program{Nodes: []program.Node{&program.Interface{Name: "Store", External: true}}}
	out, err := r.Apply(context.Background(), prog, injectRegion("Store", "StoreV2", "storage"))
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if diff := cmp.Diff([]string{"A", "B", "C", "D", "E"}, typeNames(out.Nodes)); diff != "" {
		t.Errorf("injected types mismatch (-want +got):\n%s", diff)
	}
}
