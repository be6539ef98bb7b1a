// Package cache provides a process-wide, compute-once cache for parsed
// configuration. Concurrent first requests for a key share one load, and
// entries are evicted when one of their source files changes.
package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/openfroyo/extconf/pkg/telemetry"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultDebounce is the delay between the last file event and the change
// notification of Watch.
const DefaultDebounce = 500 * time.Millisecond

// LoadFunc computes the value for a key and returns the files it was built
// from. A failed load may still return the files it read; Watch then
// reports their next change so the caller can retry.
type LoadFunc[V any] func(ctx context.Context) (V, []string, error)

// Options configures a cache.
type Options struct {
	// Name labels the cache in metrics and logs.
	Name string

	Logger  zerolog.Logger
	Metrics *telemetry.Metrics

	// Debounce overrides DefaultDebounce for Watch notifications.
	Debounce time.Duration
}

type entry[V any] struct {
	value   V
	sources []string
}

// Cache maps keys to values computed at most once per key. Failed loads
// are not stored, so the next request retries.
type Cache[V any] struct {
	opts   Options
	logger zerolog.Logger
	group  singleflight.Group

	mu      sync.RWMutex
	entries map[string]*entry[V]
	deps    map[string]map[string]struct{}
	watcher *fsnotify.Watcher
	watched map[string]bool
	failed  map[string]struct{}
}

// New creates an empty cache.
func New[V any](opts Options) *Cache[V] {
	if opts.Name == "" {
		opts.Name = "default"
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	return &Cache[V]{
		opts:    opts,
		logger:  opts.Logger.With().Str("component", "cache").Str("cache", opts.Name).Logger(),
		entries: make(map[string]*entry[V]),
		deps:    make(map[string]map[string]struct{}),
		watched: make(map[string]bool),
		failed:  make(map[string]struct{}),
	}
}

// Get returns the value for key, calling load if it is not cached.
// Concurrent callers for the same missing key wait for a single load.
func (c *Cache[V]) Get(ctx context.Context, key string, load LoadFunc[V]) (V, error) {
	if v, ok := c.lookup(key); ok {
		c.opts.Metrics.RecordCacheRequest(c.opts.Name, true)
		return v, nil
	}

	res, err, shared := c.group.Do(key, func() (interface{}, error) {
		// Another caller may have stored the value between lookup and Do.
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		c.opts.Metrics.RecordCacheRequest(c.opts.Name, false)

		v, sources, err := load(ctx)
		if err != nil {
			c.trackFailed(sources)
			return nil, err
		}
		c.store(key, v, sources)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	if shared {
		c.logger.Debug().Str("key", key).Msg("Shared in-flight load")
	}
	return res.(V), nil
}

func (c *Cache[V]) lookup(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Cache[V]) store(key string, v V, sources []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cleaned := make([]string, 0, len(sources))
	for _, src := range sources {
		src = filepath.Clean(src)
		cleaned = append(cleaned, src)
		keys, ok := c.deps[src]
		if !ok {
			keys = make(map[string]struct{})
			c.deps[src] = keys
		}
		keys[key] = struct{}{}
		c.watchDirLocked(filepath.Dir(src))
	}
	c.entries[key] = &entry[V]{value: v, sources: cleaned}

	c.logger.Debug().
		Str("key", key).
		Int("sources", len(cleaned)).
		Msg("Cached entry")
}

// trackFailed remembers the sources of a failed load.
func (c *Cache[V]) trackFailed(sources []string) {
	if len(sources) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, src := range sources {
		src = filepath.Clean(src)
		c.failed[src] = struct{}{}
		c.watchDirLocked(filepath.Dir(src))
	}
}

// Invalidate evicts every entry built from path and returns the evicted keys.
func (c *Cache[V]) Invalidate(path string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidateLocked(filepath.Clean(path))
}

func (c *Cache[V]) invalidateLocked(path string) []string {
	keys := c.deps[path]
	if len(keys) == 0 {
		return nil
	}

	evicted := make([]string, 0, len(keys))
	for key := range keys {
		e, ok := c.entries[key]
		if !ok {
			continue
		}
		delete(c.entries, key)
		for _, src := range e.sources {
			delete(c.deps[src], key)
			if len(c.deps[src]) == 0 {
				delete(c.deps, src)
			}
		}
		evicted = append(evicted, key)
	}
	sort.Strings(evicted)

	c.logger.Debug().
		Str("path", path).
		Strs("evicted", evicted).
		Msg("Invalidated cache entries")
	return evicted
}

// Purge evicts every entry.
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry[V])
	c.deps = make(map[string]map[string]struct{})
	c.failed = make(map[string]struct{})
}

// Len returns the number of cached entries.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sources returns the sorted source files of all cached entries.
func (c *Cache[V]) Sources() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.deps))
	for src := range c.deps {
		out = append(out, src)
	}
	sort.Strings(out)
	return out
}

// Watch evicts entries whose sources change on disk until ctx is done.
// After evictions settle for the debounce delay, onChange receives the
// changed paths. onChange may be nil.
func (c *Cache[V]) Watch(ctx context.Context, onChange func(paths []string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	c.mu.Lock()
	if c.watcher != nil {
		c.mu.Unlock()
		_ = watcher.Close()
		return fmt.Errorf("cache %s is already watching", c.opts.Name)
	}
	c.watcher = watcher
	c.watched = make(map[string]bool)
	for src := range c.deps {
		c.watchDirLocked(filepath.Dir(src))
	}
	for src := range c.failed {
		c.watchDirLocked(filepath.Dir(src))
	}
	dirs := len(c.watched)
	c.mu.Unlock()

	go c.processEvents(ctx, watcher, onChange)

	c.logger.Info().
		Int("directories", dirs).
		Msg("Started watching configuration sources")
	return nil
}

// watchDirLocked adds dir to the watcher if one is running.
func (c *Cache[V]) watchDirLocked(dir string) {
	if c.watcher == nil || c.watched[dir] {
		return
	}
	if _, err := os.Stat(dir); err != nil {
		return
	}
	if err := c.watcher.Add(dir); err != nil {
		c.logger.Warn().Err(err).Str("path", dir).Msg("Failed to watch directory")
		return
	}
	c.watched[dir] = true
}

func (c *Cache[V]) processEvents(ctx context.Context, watcher *fsnotify.Watcher, onChange func([]string)) {
	var (
		timerMu sync.Mutex
		timer   *time.Timer
		pending = make(map[string]bool)
	)

	defer func() {
		c.mu.Lock()
		c.watcher = nil
		c.mu.Unlock()
		_ = watcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			name := filepath.Clean(event.Name)
			c.mu.Lock()
			evicted := c.invalidateLocked(name)
			_, retry := c.failed[name]
			delete(c.failed, name)
			c.mu.Unlock()
			if len(evicted) == 0 && !retry {
				continue
			}

			c.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Configuration source changed")

			if onChange == nil {
				continue
			}
			timerMu.Lock()
			pending[event.Name] = true
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(c.opts.Debounce, func() {
				timerMu.Lock()
				paths := make([]string, 0, len(pending))
				for p := range pending {
					paths = append(paths, p)
				}
				pending = make(map[string]bool)
				timerMu.Unlock()

				sort.Strings(paths)
				if ctx.Err() == nil {
					onChange(paths)
				}
			})
			timerMu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			c.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}
