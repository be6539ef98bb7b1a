package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/openfroyo/extconf/pkg/telemetry"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCache_ComputesOnce(t *testing.T) {
	c := New[int](Options{Name: "test"})

	var calls atomic.Int32
	release := make(chan struct{})
	load := func(ctx context.Context) (int, []string, error) {
		calls.Add(1)
		<-release
		return 42, nil, nil
	}

	const workers = 16
	var wg sync.WaitGroup
	results := make([]int, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Get(context.Background(), "k", load)
		}(i)
	}

	// Let the goroutines pile up on the in-flight load.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("Expected load to run once, ran %d times", got)
	}
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("worker %d: unexpected error: %v", i, errs[i])
		}
		if results[i] != 42 {
			t.Errorf("worker %d: got %d, want 42", i, results[i])
		}
	}

	// Later requests are served from the cache.
	v, err := c.Get(context.Background(), "k", func(context.Context) (int, []string, error) {
		t.Fatal("load called for cached key")
		return 0, nil, nil
	})
	if err != nil || v != 42 {
		t.Errorf("Get() = %d, %v", v, err)
	}
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	c := New[string](Options{})
	boom := errors.New("boom")

	_, err := c.Get(context.Background(), "k", func(context.Context) (string, []string, error) {
		return "", nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("Expected empty cache after failure, got %d entries", c.Len())
	}

	v, err := c.Get(context.Background(), "k", func(context.Context) (string, []string, error) {
		return "ok", nil, nil
	})
	if err != nil || v != "ok" {
		t.Errorf("Get() after failure = %q, %v", v, err)
	}
}

func TestCache_Invalidate(t *testing.T) {
	c := New[string](Options{})
	ctx := context.Background()

	load := func(v string, sources ...string) LoadFunc[string] {
		return func(context.Context) (string, []string, error) { return v, sources, nil }
	}
	mustGet(t, c, "a", load("A", "/conf/a.col", "/conf/shared.col"))
	mustGet(t, c, "b", load("B", "/conf/b.col", "/conf/shared.col"))
	mustGet(t, c, "c", load("C", "/conf/c.col"))

	if diff := cmp.Diff([]string{"/conf/a.col", "/conf/b.col", "/conf/c.col", "/conf/shared.col"}, c.Sources()); diff != "" {
		t.Errorf("Sources() mismatch (-want +got):\n%s", diff)
	}

	evicted := c.Invalidate("/conf/./shared.col")
	if diff := cmp.Diff([]string{"a", "b"}, evicted); diff != "" {
		t.Errorf("Invalidate() mismatch (-want +got):\n%s", diff)
	}
	if c.Len() != 1 {
		t.Errorf("Expected 1 entry left, got %d", c.Len())
	}
	if diff := cmp.Diff([]string{"/conf/c.col"}, c.Sources()); diff != "" {
		t.Errorf("Sources() after invalidate mismatch (-want +got):\n%s", diff)
	}
	if evicted := c.Invalidate("/conf/unknown.col"); evicted != nil {
		t.Errorf("Expected nothing evicted, got %v", evicted)
	}

	var reloaded bool
	_, _ = c.Get(ctx, "a", func(context.Context) (string, []string, error) {
		reloaded = true
		return "A2", nil, nil
	})
	if !reloaded {
		t.Error("Expected evicted key to be reloaded")
	}

	c.Purge()
	if c.Len() != 0 || len(c.Sources()) != 0 {
		t.Error("Expected Purge to empty the cache")
	}
}

func TestCache_RecordsHitsAndMisses(t *testing.T) {
	m, err := telemetry.NewMetrics(telemetry.DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := New[int](Options{Name: "trees", Metrics: m})

	load := func(context.Context) (int, []string, error) { return 1, nil, nil }
	mustGet(t, c, "k", load)
	mustGet(t, c, "k", load)
	mustGet(t, c, "k", load)

	if got := testutil.CollectAndCount(m.Registry(), "extconf_cache_requests_total"); got != 2 {
		t.Errorf("Expected hit and miss series, got %d", got)
	}
}

func TestCache_WatchEvictsChangedSources(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.col")
	if err := os.WriteFile(path, []byte("profile \"p\" configures \"svc\" {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := New[string](Options{Debounce: 20 * time.Millisecond})
	mustGet(t, c, "svc", func(context.Context) (string, []string, error) {
		return "tree", []string{path}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan []string, 1)
	if err := c.Watch(ctx, func(paths []string) { changed <- paths }); err != nil {
		t.Fatalf("Watch() error: %v", err)
	}
	if err := c.Watch(ctx, nil); err == nil {
		t.Error("Expected second Watch to fail")
	}

	if err := os.WriteFile(path, []byte("profile \"q\" configures \"svc\" {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case paths := <-changed:
		if diff := cmp.Diff([]string{path}, paths); diff != "" {
			t.Errorf("changed paths mismatch (-want +got):\n%s", diff)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change notification")
	}
	if c.Len() != 0 {
		t.Errorf("Expected entry to be evicted, got %d entries", c.Len())
	}
}

func TestCache_WatchReportsFailedSources(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.col")
	if err := os.WriteFile(path, []byte("profile \"p\" configures\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := New[string](Options{Debounce: 20 * time.Millisecond})
	_, err := c.Get(context.Background(), "svc", func(context.Context) (string, []string, error) {
		return "", []string{path}, errors.New("unexpected end of file")
	})
	if err == nil {
		t.Fatal("Expected load error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan []string, 1)
	if err := c.Watch(ctx, func(paths []string) { changed <- paths }); err != nil {
		t.Fatalf("Watch() error: %v", err)
	}

	if err := os.WriteFile(path, []byte("profile \"p\" configures \"svc\" {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case paths := <-changed:
		if diff := cmp.Diff([]string{path}, paths); diff != "" {
			t.Errorf("changed paths mismatch (-want +got):\n%s", diff)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change notification")
	}

	got := mustGet(t, c, "svc", func(context.Context) (string, []string, error) {
		return "tree", []string{path}, nil
	})
	if got != "tree" {
		t.Errorf("Get() = %q after retry, want %q", got, "tree")
	}
}

func mustGet[V any](t *testing.T, c *Cache[V], key string, load LoadFunc[V]) V {
	t.Helper()
	v, err := c.Get(context.Background(), key, load)
	if err != nil {
		t.Fatalf("Get(%q) error: %v", key, err)
	}
	return v
}
