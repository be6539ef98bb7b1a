package col

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/openfroyo/extconf/pkg/engine"
)

func TestEmbeddingGraph(t *testing.T) {
	tree := parseString(t, `
profile "base" configures "gateway" {
	outputPort Billing embeds "prod" with "billing"
}
profile "prod" configures "gateway" extends "base" {
	outputPort Users embeds "prod" with "users",
	outputPort Audit embeds "prod" with "audit"
}
profile "prod" configures "billing" {
	outputPort Ledger embeds "prod" with "ledger"
}
profile "prod" configures "ledger" { }
profile "prod" configures "users" { }
profile "x" configures "broken" extends "missing" { }
`)

	graph, err := tree.EmbeddingGraph()
	if err != nil {
		t.Fatalf("EmbeddingGraph() error = %v", err)
	}

	want := [][]string{
		{"ledger/prod", "users/prod"},
		{"billing/prod"},
		{"gateway/base"},
		{"gateway/prod"},
	}
	if diff := cmp.Diff(want, graph.Levels); diff != "" {
		t.Errorf("levels mismatch (-want +got):\n%s", diff)
	}

	// The inherited Billing embedding and the extends edge both count;
	// audit/prod is not in the tree.
	deps := graph.Nodes["gateway/prod"].Dependencies
	if diff := cmp.Diff([]string{"gateway/base", "billing/prod", "users/prod"}, deps); diff != "" {
		t.Errorf("gateway/prod dependencies mismatch (-want +got):\n%s", diff)
	}
	if _, ok := graph.Nodes["broken/x"]; ok {
		t.Error("region with a dangling extends should be left out")
	}
}

func TestEmbeddingGraph_Cycle(t *testing.T) {
	tree := parseString(t, `
profile "prod" configures "a" {
	outputPort B embeds "prod" with "b"
}
profile "prod" configures "b" {
	outputPort A embeds "prod" with "a"
}`)

	_, err := tree.EmbeddingGraph()
	if !engine.IsPolicy(err) {
		t.Fatalf("EmbeddingGraph() error = %v, want a policy error", err)
	}
	if !strings.Contains(err.Error(), "a/prod -> b/prod -> a/prod") {
		t.Errorf("error %q does not name the cycle", err)
	}
}
