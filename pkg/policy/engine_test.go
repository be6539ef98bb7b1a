package policy

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/openfroyo/extconf/pkg/col"
	"github.com/openfroyo/extconf/pkg/engine"
	"github.com/rs/zerolog"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.New(nil).Level(zerolog.Disabled))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func concrete(name, location string) *col.ConcretePort {
	return &col.ConcretePort{PortName: name, Location: &location}
}

func testRegion() *col.Region {
	region := col.NewRegion("svc", "prod")
	region.Pos = engine.Position{File: "/conf/prod.col", Line: 1}
	return region
}

func TestNewEngine(t *testing.T) {
	eng := newTestEngine(t)

	var names []string
	for _, p := range eng.ListPolicies() {
		names = append(names, p.Name)
		if !p.Builtin {
			t.Errorf("Expected %s to be marked built-in", p.Name)
		}
	}

	want := []string{PolicyLocationScheme, PolicySelfEmbedding, PolicySharedListener}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("built-in policies mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluate_BuiltinPolicies(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(*col.Region)
		wantAllowed  bool
		wantDenied   []string
		wantWarnings []string
	}{
		{
			name: "clean region",
			setup: func(r *col.Region) {
				r.InputPorts["IP"] = concrete("IP", "socket://localhost:8000")
				r.OutputPorts["OP"] = &col.EmbeddingPort{PortName: "OP", Module: "audit", Profile: "prod"}
			},
			wantAllowed: true,
		},
		{
			name: "self embedding",
			setup: func(r *col.Region) {
				r.OutputPorts["Self"] = &col.EmbeddingPort{PortName: "Self", Module: "svc", Profile: "other"}
			},
			wantAllowed: false,
			wantDenied:  []string{PolicySelfEmbedding},
		},
		{
			name: "location without medium",
			setup: func(r *col.Region) {
				r.OutputPorts["OP"] = concrete("OP", "localhost:8000")
				r.InputPorts["Local"] = concrete("Local", "local")
			},
			wantAllowed:  true,
			wantWarnings: []string{PolicyLocationScheme},
		},
		{
			name: "shared listener",
			setup: func(r *col.Region) {
				r.InputPorts["A"] = concrete("A", "socket://localhost:8000")
				r.InputPorts["B"] = concrete("B", "socket://localhost:8000")
			},
			wantAllowed:  true,
			wantWarnings: []string{PolicySharedListener},
		},
	}

	eng := newTestEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			region := testRegion()
			tt.setup(region)

			res, err := eng.Evaluate(context.Background(), region)
			if err != nil {
				t.Fatalf("Evaluate() error: %v", err)
			}
			if res.Allowed != tt.wantAllowed {
				t.Errorf("Expected allowed=%v, got %v: %+v", tt.wantAllowed, res.Allowed, res.Violations)
			}
			if diff := cmp.Diff(tt.wantDenied, policyNames(res.Violations)); diff != "" {
				t.Errorf("violations mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantWarnings, policyNames(res.Warnings)); diff != "" {
				t.Errorf("warnings mismatch (-want +got):\n%s", diff)
			}
			if res.Region != "svc/prod" {
				t.Errorf("Expected region svc/prod, got %s", res.Region)
			}
			if len(res.EvaluatedPolicies) != 3 {
				t.Errorf("Expected 3 evaluated policies, got %v", res.EvaluatedPolicies)
			}
		})
	}
}

func policyNames(vs []Violation) []string {
	var out []string
	for _, v := range vs {
		out = append(out, v.Policy)
	}
	return out
}

func TestCheckRegion(t *testing.T) {
	eng := newTestEngine(t)

	region := testRegion()
	region.OutputPorts["OP"] = concrete("OP", "localhost:9000")
	if err := eng.CheckRegion(context.Background(), region); err != nil {
		t.Fatalf("Expected warnings not to deny, got %v", err)
	}

	region.OutputPorts["Self"] = &col.EmbeddingPort{PortName: "Self", Module: "svc", Profile: "prod"}
	err := eng.CheckRegion(context.Background(), region)
	if err == nil {
		t.Fatal("Expected the region to be denied")
	}
	if !engine.IsPolicy(err) || engine.CodeOf(err) != engine.ErrCodePolicyDenied {
		t.Errorf("Expected policy/%s, got %s/%s", engine.ErrCodePolicyDenied, engine.ClassOf(err), engine.CodeOf(err))
	}
	if !strings.Contains(err.Error(), "output port 'Self' embeds its own package 'svc'") {
		t.Errorf("Expected the violation message in %v", err)
	}
}

func TestAddPolicy_CustomRules(t *testing.T) {
	eng := newTestEngine(t)

	err := eng.AddPolicy(context.Background(), Policy{
		Name:    "params",
		Enabled: true,
		Rego: `package custom.params

import rego.v1

deny contains msg if {
	some p in input.region.params
	p.path == "debug"
	p.value == true
	msg := "debug must not be enabled"
}

deny contains {"message": "timeouts are informational", "severity": "info", "path": p.path} if {
	some p in input.region.params
	p.path == "timeout"
}
`,
	})
	if err != nil {
		t.Fatalf("AddPolicy() error: %v", err)
	}

	policy, err := eng.GetPolicy("params")
	if err != nil {
		t.Fatal(err)
	}
	if policy.Severity != SeverityError {
		t.Errorf("Expected default severity error, got %s", policy.Severity)
	}

	src := `profile "prod" configures "svc" {
	debug = true,
	timeout = 30
}`
	tree, err := col.ParseBytes([]byte(src), "/conf/prod.col", "/conf", col.Options{})
	if err != nil {
		t.Fatalf("ParseBytes() error: %v", err)
	}
	region, err := tree.Resolve("svc", "prod")
	if err != nil {
		t.Fatal(err)
	}

	res, err := eng.Evaluate(context.Background(), region)
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if res.Allowed {
		t.Error("Expected debug=true to be denied")
	}

	got := map[string]Severity{}
	for _, v := range res.Violations {
		got[v.Message] = v.Severity
	}
	want := map[string]Severity{
		"debug must not be enabled":  SeverityError,
		"timeouts are informational": SeverityInfo,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("violations mismatch (-want +got):\n%s", diff)
	}
	if d := res.Denials(); len(d) != 1 {
		t.Errorf("Expected one denial, got %+v", d)
	}
}

func TestAddPolicy_InvalidRego(t *testing.T) {
	eng := newTestEngine(t)
	err := eng.AddPolicy(context.Background(), Policy{Name: "broken", Rego: "package broken\n\ndeny contains"})
	if err == nil {
		t.Fatal("Expected a parse error")
	}
	if _, err := eng.GetPolicy("broken"); err == nil {
		t.Error("Expected the broken policy not to be stored")
	}
}

func TestEnableDisablePolicy(t *testing.T) {
	eng := newTestEngine(t)
	region := testRegion()
	region.OutputPorts["Self"] = &col.EmbeddingPort{PortName: "Self", Module: "svc", Profile: "prod"}

	if err := eng.DisablePolicy(PolicySelfEmbedding); err != nil {
		t.Fatalf("DisablePolicy() error: %v", err)
	}
	if err := eng.CheckRegion(context.Background(), region); err != nil {
		t.Errorf("Expected disabled policy to be skipped, got %v", err)
	}

	if err := eng.EnablePolicy(PolicySelfEmbedding); err != nil {
		t.Fatalf("EnablePolicy() error: %v", err)
	}
	if err := eng.CheckRegion(context.Background(), region); err == nil {
		t.Error("Expected enabled policy to deny")
	}

	err := eng.EnablePolicy("self-embeding")
	if err == nil || !strings.Contains(err.Error(), "Did you mean 'self-embedding'?") {
		t.Errorf("Expected a suggestion, got %v", err)
	}
}

func TestResult_JSON(t *testing.T) {
	eng := newTestEngine(t)
	region := testRegion()
	region.OutputPorts["OP"] = concrete("OP", "localhost:1")

	res, err := eng.Evaluate(context.Background(), region)
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	warnings := decoded["warnings"].([]interface{})
	first := warnings[0].(map[string]interface{})
	if first["policy"] != PolicyLocationScheme || first["region"] != "svc/prod" {
		t.Errorf("Unexpected warning %v", first)
	}
}
