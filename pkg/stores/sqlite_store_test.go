package stores

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/openfroyo/extconf/pkg/engine"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: MemoryPath,
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

func testRegion(location string) map[string]interface{} {
	return map[string]interface{}{
		"package": "svc",
		"profile": "prod",
		"outputPorts": map[string]interface{}{
			"O": map[string]interface{}{
				"location": location,
				"protocol": map[string]interface{}{"type": "sodep"},
			},
		},
		"params": []interface{}{
			map[string]interface{}{"path": "timeout", "value": int64(30)},
		},
	}
}

func record(t *testing.T, store *SQLiteStore, r *Resolution) *Resolution {
	t.Helper()
	if err := store.RecordResolution(context.Background(), r); err != nil {
		t.Fatalf("RecordResolution() error = %v", err)
	}
	return r
}

func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "journal.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() before Init should fail")
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	// A second run finds nothing to do.
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("NewSQLiteStore() with empty path should fail")
	}
}

func TestRecordAndGetResolution(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := record(t, store, &Resolution{
		Package:       "svc",
		Profile:       "prod",
		ConfigPath:    "/conf/prod.col",
		Fingerprint:   "abc123",
		InjectedTypes: 3,
		Region:        testRegion("socket://h:1"),
		ProgramDigest: "def456",
		StartedAt:     started,
		Duration:      250 * time.Millisecond,
	})

	if r.ID == "" {
		t.Fatal("RecordResolution() did not assign an ID")
	}
	if r.Status != ResolutionSucceeded {
		t.Errorf("Status = %q, want %q", r.Status, ResolutionSucceeded)
	}
	if r.SnapshotDigest == "" {
		t.Error("RecordResolution() did not compute a snapshot digest")
	}

	got, err := store.GetResolution(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetResolution() error = %v", err)
	}

	if got.Package != "svc" || got.Profile != "prod" || got.ConfigPath != "/conf/prod.col" {
		t.Errorf("GetResolution() = %s/%s at %s", got.Package, got.Profile, got.ConfigPath)
	}
	if got.InjectedTypes != 3 || got.Fingerprint != "abc123" || got.ProgramDigest != "def456" {
		t.Errorf("GetResolution() lost summary fields: %+v", got)
	}
	if got.Duration != 250*time.Millisecond {
		t.Errorf("Duration = %v, want 250ms", got.Duration)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.Error != nil {
		t.Errorf("Error = %q, want nil", *got.Error)
	}

	// CBOR decodes non-negative integers as uint64.
	want := testRegion("socket://h:1")
	want["params"].([]interface{})[0].(map[string]interface{})["value"] = uint64(30)
	if diff := cmp.Diff(want, got.Region); diff != "" {
		t.Errorf("region snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordResolution_RequiresRegionKey(t *testing.T) {
	store := setupTestStore(t)

	err := store.RecordResolution(context.Background(), &Resolution{Package: "svc"})
	if err == nil {
		t.Fatal("RecordResolution() without a profile should fail")
	}
}

func TestGetResolution_Prefix(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	record(t, store, &Resolution{ID: "aaaa-1111", Package: "svc", Profile: "prod"})
	record(t, store, &Resolution{ID: "aaaa-2222", Package: "svc", Profile: "prod"})
	record(t, store, &Resolution{ID: "bbbb-1111", Package: "svc", Profile: "dev"})

	tests := []struct {
		name   string
		id     string
		wantID string
	}{
		{name: "full id", id: "aaaa-2222", wantID: "aaaa-2222"},
		{name: "unique prefix", id: "bb", wantID: "bbbb-1111"},
		{name: "ambiguous prefix", id: "aaaa"},
		{name: "unknown", id: "cccc"},
		{name: "like wildcard is literal", id: "%"},
		{name: "empty", id: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.GetResolution(ctx, tt.id)
			if tt.wantID == "" {
				if !engine.IsLookup(err) {
					t.Fatalf("GetResolution(%q) error = %v, want a lookup error", tt.id, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetResolution(%q) error = %v", tt.id, err)
			}
			if got.ID != tt.wantID {
				t.Errorf("GetResolution(%q).ID = %q, want %q", tt.id, got.ID, tt.wantID)
			}
		})
	}
}

func TestListResolutions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	msg := "unknown profile"
	class := "lookup"
	record(t, store, &Resolution{ID: "r1", Package: "svc", Profile: "prod", StartedAt: base})
	record(t, store, &Resolution{ID: "r2", Package: "svc", Profile: "dev", StartedAt: base.Add(time.Hour)})
	record(t, store, &Resolution{ID: "r3", Package: "svc", Profile: "prod", StartedAt: base.Add(2 * time.Hour),
		Status: ResolutionFailed, Error: &msg, ErrorClass: &class})
	record(t, store, &Resolution{ID: "r4", Package: "audit", Profile: "prod", StartedAt: base.Add(3 * time.Hour)})

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{name: "all newest first", filter: Filter{}, want: []string{"r4", "r3", "r2", "r1"}},
		{name: "by package", filter: Filter{Package: "svc"}, want: []string{"r3", "r2", "r1"}},
		{name: "by profile", filter: Filter{Package: "svc", Profile: "prod"}, want: []string{"r3", "r1"}},
		{name: "failed only", filter: Filter{Status: ResolutionFailed}, want: []string{"r3"}},
		{name: "limit", filter: Filter{Limit: 2}, want: []string{"r4", "r3"}},
		{name: "limit and offset", filter: Filter{Limit: 2, Offset: 1}, want: []string{"r3", "r2"}},
		{name: "no match", filter: Filter{Package: "none"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListResolutions(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListResolutions() error = %v", err)
			}
			ids := []string{}
			for _, r := range got {
				ids = append(ids, r.ID)
				if r.Region != nil {
					t.Errorf("ListResolutions() loaded the snapshot of %s", r.ID)
				}
			}
			if diff := cmp.Diff(tt.want, ids); diff != "" {
				t.Errorf("ListResolutions() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	failed, err := store.GetResolution(ctx, "r3")
	if err != nil {
		t.Fatalf("GetResolution() error = %v", err)
	}
	if failed.Error == nil || *failed.Error != msg || failed.ErrorClass == nil || *failed.ErrorClass != class {
		t.Errorf("failed resolution lost its error: %+v", failed)
	}
}

func TestLatestResolution(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.LatestResolution(ctx, "svc", "prod"); !engine.IsLookup(err) {
		t.Fatalf("LatestResolution() on empty journal error = %v, want a lookup error", err)
	}

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	msg := "boom"
	record(t, store, &Resolution{ID: "old", Package: "svc", Profile: "prod", StartedAt: base,
		Region: testRegion("socket://old:1")})
	record(t, store, &Resolution{ID: "new", Package: "svc", Profile: "prod", StartedAt: base.Add(time.Minute),
		Region: testRegion("socket://new:1")})
	record(t, store, &Resolution{ID: "failed", Package: "svc", Profile: "prod", StartedAt: base.Add(2 * time.Minute),
		Status: ResolutionFailed, Error: &msg})

	got, err := store.LatestResolution(ctx, "svc", "prod")
	if err != nil {
		t.Fatalf("LatestResolution() error = %v", err)
	}
	if got.ID != "new" {
		t.Errorf("LatestResolution().ID = %q, want %q", got.ID, "new")
	}
	port := got.Region["outputPorts"].(map[string]interface{})["O"].(map[string]interface{})
	if port["location"] != "socket://new:1" {
		t.Errorf("LatestResolution() snapshot location = %v", port["location"])
	}
}

func TestSnapshotDigest(t *testing.T) {
	store := setupTestStore(t)

	a := record(t, store, &Resolution{Package: "svc", Profile: "prod", Region: testRegion("socket://h:1")})
	b := record(t, store, &Resolution{Package: "svc", Profile: "prod", Region: testRegion("socket://h:1")})
	c := record(t, store, &Resolution{Package: "svc", Profile: "prod", Region: testRegion("socket://h:2")})
	d := record(t, store, &Resolution{Package: "svc", Profile: "prod"})

	if a.SnapshotDigest != b.SnapshotDigest {
		t.Errorf("equal regions have different digests: %s and %s", a.SnapshotDigest, b.SnapshotDigest)
	}
	if a.SnapshotDigest == c.SnapshotDigest {
		t.Error("different regions have the same digest")
	}
	if d.SnapshotDigest != "" {
		t.Errorf("resolution without a region has digest %q", d.SnapshotDigest)
	}
}

func TestPruneResolutions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"r1", "r2", "r3"} {
		record(t, store, &Resolution{ID: id, Package: "svc", Profile: "prod",
			StartedAt: base.Add(time.Duration(i) * 24 * time.Hour)})
	}

	n, err := store.PruneResolutions(ctx, base.Add(36*time.Hour))
	if err != nil {
		t.Fatalf("PruneResolutions() error = %v", err)
	}
	if n != 2 {
		t.Errorf("PruneResolutions() = %d, want 2", n)
	}

	left, err := store.ListResolutions(ctx, Filter{})
	if err != nil {
		t.Fatalf("ListResolutions() error = %v", err)
	}
	if len(left) != 1 || left[0].ID != "r3" {
		t.Errorf("after prune got %d resolutions, want only r3", len(left))
	}
}
