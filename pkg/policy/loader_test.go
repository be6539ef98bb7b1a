package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

const listenersRego = `package test.listeners

# Denies ports listening on every interface.
# Loaded from disk.

import rego.v1

deny contains msg if {
	some name, port in input.region.inputPorts
	startswith(port.location, "socket://0.0.0.0")
	msg := sprintf("input port %s listens on every interface", [name])
}
`

func newTestLoader() *Loader {
	return NewLoader(zerolog.New(nil).Level(zerolog.Disabled))
}

func writePolicy(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
}

func TestLoadFromFile_Rego(t *testing.T) {
	loader := newTestLoader()
	path := filepath.Join(t.TempDir(), "listeners.rego")
	writePolicy(t, path, listenersRego)

	policy, err := loader.loadFromFile(context.Background(), path)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if policy.Name != "listeners" {
		t.Errorf("Expected name 'listeners', got '%s'", policy.Name)
	}
	if policy.Description != "Denies ports listening on every interface. Loaded from disk." {
		t.Errorf("Unexpected description %q", policy.Description)
	}
	if policy.Severity != SeverityError || !policy.Enabled || policy.Builtin {
		t.Errorf("Unexpected defaults %+v", policy)
	}
	if policy.Metadata["source"] != path {
		t.Errorf("Expected source %s, got %v", path, policy.Metadata["source"])
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	loader := newTestLoader()
	path := filepath.Join(t.TempDir(), "unnamed.json")

	data, err := json.Marshal(Policy{
		Description: "json policy",
		Rego:        "package test.json\n\nimport rego.v1\n\nwarn contains \"always\" if { true }",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
	})
	if err != nil {
		t.Fatal(err)
	}
	writePolicy(t, path, string(data))

	policy, err := loader.loadFromFile(context.Background(), path)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if policy.Name != "unnamed" {
		t.Errorf("Expected the file name as policy name, got %q", policy.Name)
	}
	if policy.Builtin {
		t.Error("Expected loaded policies never to be built-in")
	}
	if policy.Severity != SeverityWarning {
		t.Errorf("Expected severity warning, got %s", policy.Severity)
	}
}

func TestLoadFromFile_Cached(t *testing.T) {
	loader := newTestLoader()
	path := filepath.Join(t.TempDir(), "listeners.rego")
	writePolicy(t, path, listenersRego)

	first, err := loader.loadFromFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	writePolicy(t, path, "package changed")
	second, err := loader.loadFromFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("Expected the cached policy")
	}

	loader.ClearCache()
	third, err := loader.loadFromFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if third.Rego != "package changed" {
		t.Error("Expected ClearCache to force a reread")
	}
}

func TestLoadFromPaths_Directory(t *testing.T) {
	loader := newTestLoader()
	dir := t.TempDir()
	writePolicy(t, filepath.Join(dir, "a.rego"), listenersRego)
	writePolicy(t, filepath.Join(dir, "nested", "b.rego"), "package b")
	writePolicy(t, filepath.Join(dir, "broken.json"), "{")
	writePolicy(t, filepath.Join(dir, "README.md"), "# policies")

	policies, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths() error: %v", err)
	}
	var names []string
	for _, p := range policies {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	if diff := cmp.Diff([]string{"a", "b"}, names); diff != "" {
		t.Errorf("policies mismatch (-want +got):\n%s", diff)
	}

	if _, err := loader.LoadFromPaths(context.Background(), []string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("Expected an error for a missing path")
	}
}

func TestEngine_LoadPoliciesAndReload(t *testing.T) {
	eng := newTestEngine(t)
	dir := t.TempDir()
	writePolicy(t, filepath.Join(dir, "listeners.rego"), listenersRego)

	if err := eng.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("LoadPolicies() error: %v", err)
	}
	region := testRegion()
	region.InputPorts["IP"] = concrete("IP", "socket://0.0.0.0:8000")
	err := eng.CheckRegion(context.Background(), region)
	if err == nil || !strings.Contains(err.Error(), "listeners: input port IP listens on every interface") {
		t.Fatalf("Expected the loaded policy to deny, got %v", err)
	}

	// ReloadPolicies reads the file again.
	writePolicy(t, filepath.Join(dir, "listeners.rego"), "package test.listeners\n")
	if err := eng.ReloadPolicies(context.Background()); err != nil {
		t.Fatalf("ReloadPolicies() error: %v", err)
	}
	if err := eng.CheckRegion(context.Background(), region); err != nil {
		t.Errorf("Expected the emptied policy to allow, got %v", err)
	}
	if len(eng.ListPolicies()) != 4 {
		t.Errorf("Expected built-ins and the custom policy, got %d", len(eng.ListPolicies()))
	}
}

func TestEngine_WatchReloadsPolicies(t *testing.T) {
	if testing.Short() {
		t.Skip("watch test waits for the reload delay")
	}

	eng := newTestEngine(t)
	dir := t.TempDir()
	writePolicy(t, filepath.Join(dir, "listeners.rego"), "package test.listeners\n")
	if err := eng.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := eng.Watch(ctx); err != nil {
		t.Fatalf("Watch() error: %v", err)
	}

	region := testRegion()
	region.InputPorts["IP"] = concrete("IP", "socket://0.0.0.0:8000")
	writePolicy(t, filepath.Join(dir, "listeners.rego"), listenersRego)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if eng.CheckRegion(context.Background(), region) != nil {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("Expected the changed policy to be reloaded")
}

func TestWatch_RequiresLoadedPaths(t *testing.T) {
	eng := newTestEngine(t)
	if err := eng.Watch(context.Background()); err == nil {
		t.Error("Expected an error without policy paths")
	}
}
