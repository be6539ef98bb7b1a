package col

import (
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/openfroyo/extconf/pkg/engine"
)

func TestResolve_Chain(t *testing.T) {
	tree := parseString(t, `
profile "root" configures "svc" {
	outputPort O { Location: "socket://root:1" Protocol: sodep },
	a = 1
}
profile "mid" configures "svc" extends "root" {
	outputPort O { Protocol: http },
	b = 2
}
profile "leaf" configures "svc" extends "mid" {
	outputPort O { Location: "socket://leaf:3" },
	c = 3
}`)

	region, err := tree.Resolve("svc", "leaf")
	if err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	if region.Profile != "leaf" || region.Extends != "mid" {
		t.Errorf("Expected leaf extending mid, got %s extending %s", region.Profile, region.Extends)
	}

	o := region.OutputPorts["O"].(*ConcretePort)
	if *o.Location != "socket://leaf:3" {
		t.Errorf("Expected leaf location, got %s", *o.Location)
	}
	if *o.Protocol.Type != "http" {
		t.Errorf("Expected mid protocol, got %s", *o.Protocol.Type)
	}

	var paths []string
	for _, p := range region.Params {
		paths = append(paths, p.Path.String())
	}
	if strings.Join(paths, ",") != "a,b,c" {
		t.Errorf("Expected params a,b,c, got %v", paths)
	}

	// The tree itself is untouched.
	raw, _ := tree.Region("svc", "leaf")
	if len(raw.Params) != 1 {
		t.Errorf("Expected stored region to keep 1 param, got %d", len(raw.Params))
	}
}

func TestResolve_Errors(t *testing.T) {
	tree := parseString(t, `
profile "a" configures "svc" extends "b" { }
profile "b" configures "svc" extends "c" { }
profile "c" configures "svc" extends "a" { }
profile "self" configures "svc" extends "self" { }
profile "orphan" configures "svc" extends "bsae" { }
profile "base" configures "svc" { }`)

	tests := []struct {
		name    string
		pkg     string
		profile string
		code    string
		want    string
	}{
		{"cycle", "svc", "a", engine.ErrCodeInheritanceCycle, "a -> b -> c -> a"},
		{"self cycle", "svc", "self", engine.ErrCodeInheritanceCycle, "self -> self"},
		{"missing parent", "svc", "orphan", engine.ErrCodeUnknownParent, "Did you mean 'base'?"},
		{"unknown profile", "svc", "bas", engine.ErrCodeUnknownProfile, "Did you mean 'base'?"},
		{"unknown package", "nope", "x", engine.ErrCodeUnknownPackage, "could not find profile configuring nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tree.Resolve(tt.pkg, tt.profile)
			if err == nil {
				t.Fatal("Expected resolve error, got nil")
			}
			if !engine.IsLookup(err) {
				t.Errorf("Expected lookup error, got %v", err)
			}
			if engine.CodeOf(err) != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, engine.CodeOf(err))
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected %q in %q", tt.want, err.Error())
			}
		})
	}
}

func TestCheckInheritance(t *testing.T) {
	t.Run("clean", func(t *testing.T) {
		tree := parseString(t, `
profile "base" configures "svc" { }
profile "prod" configures "svc" extends "base" { }
profile "base" configures "other" { }`)
		if err := tree.CheckInheritance(); err != nil {
			t.Errorf("Expected no error, got %v", err)
		}
	})

	t.Run("all problems reported", func(t *testing.T) {
		tree := parseString(t, `
profile "a" configures "svc" extends "b" { }
profile "b" configures "svc" extends "a" { }
profile "x" configures "other" extends "missing" { }`)

		err := tree.CheckInheritance()
		if err == nil {
			t.Fatal("Expected inheritance errors, got nil")
		}
		merr, ok := err.(*multierror.Error)
		if !ok {
			t.Fatalf("Expected *multierror.Error, got %T", err)
		}
		if len(merr.Errors) != 2 {
			t.Fatalf("Expected 2 errors, got %d: %v", len(merr.Errors), merr.Errors)
		}
		if engine.CodeOf(merr.Errors[0]) != engine.ErrCodeUnknownParent {
			t.Errorf("Expected first error for package other, got %v", merr.Errors[0])
		}
		if !strings.Contains(merr.Errors[1].Error(), "a -> b -> a") {
			t.Errorf("Expected cycle a -> b -> a, got %v", merr.Errors[1])
		}
	})
}
