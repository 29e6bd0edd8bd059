package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/taskpin/taskpin/internal/logging"
	"github.com/taskpin/taskpin/internal/storage"
)

// KeyPrefix namespaces cache entries inside the shared key-value store.
const KeyPrefix = "cache_"

// backgroundTimeout bounds a fire-and-forget refresh so an unresponsive
// upstream cannot leak goroutines indefinitely.
const backgroundTimeout = 30 * time.Second

// Entry is one cached value. Timestamp and TTL are unix milliseconds and
// milliseconds respectively; an entry is valid while now < Timestamp+TTL.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	TTL       int64           `json:"ttl"`
}

// Valid reports whether the entry's TTL has not yet elapsed.
func (e *Entry) Valid(now time.Time) bool {
	if e == nil {
		return false
	}
	return now.UnixMilli() < e.Timestamp+e.TTL
}

// Stale reports whether the entry is valid but past the given age
// threshold (milliseconds), meaning it should be served and refreshed.
func (e *Entry) Stale(now time.Time, threshold int64) bool {
	if !e.Valid(now) {
		return false
	}
	return now.UnixMilli()-e.Timestamp >= threshold
}

// Options controls one GetOrFetch call.
type Options struct {
	// TTL is how long a fetched value stays valid.
	TTL time.Duration

	// StaleThreshold is the age at which a still-valid entry triggers a
	// background refresh. Zero means 80% of TTL.
	StaleThreshold time.Duration

	// ForceRefresh bypasses the cache entirely and always fetches.
	ForceRefresh bool
}

func (o Options) staleThresholdMillis() int64 {
	if o.StaleThreshold > 0 {
		return o.StaleThreshold.Milliseconds()
	}
	return o.TTL.Milliseconds() * 8 / 10
}

// Lookup results reported to the Observer.
const (
	ResultHit     = "hit"
	ResultStale   = "stale"
	ResultMiss    = "miss"
	ResultExpired = "expired"
	ResultBypass  = "bypass"
)

// Observer receives one event per lookup. *instrumentation.Metrics
// satisfies it.
type Observer interface {
	RecordCacheLookup(ctx context.Context, key, result string)
}

// Cache layers TTL and stale-while-revalidate semantics over a KV store.
type Cache struct {
	kv       storage.KV
	logger   *slog.Logger
	observer Observer

	// now is replaceable in tests.
	now func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
	bg       sync.WaitGroup
}

// New creates a Cache backed by the given store.
func New(kv storage.KV, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		kv:       kv,
		logger:   logging.WithComponent(logger, "cache"),
		now:      time.Now,
		inflight: make(map[string]struct{}),
	}
}

// SetObserver installs a lookup observer. Call before the cache is used.
func (c *Cache) SetObserver(o Observer) {
	c.observer = o
}

func (c *Cache) observe(ctx context.Context, key, result string) {
	if c.observer != nil {
		c.observer.RecordCacheLookup(ctx, key, result)
	}
}

// GetOrFetch returns the value for key, consulting the cache per opts.
// Fetch errors pass through unchanged on the blocking paths; background
// refresh errors are logged and discarded.
func GetOrFetch[T any](ctx context.Context, c *Cache, key string, opts Options, fetch func(context.Context) (T, error)) (T, error) {
	if opts.ForceRefresh {
		c.observe(ctx, key, ResultBypass)
		return fetchAndStore(ctx, c, key, opts, fetch)
	}

	entry := c.load(ctx, key)
	now := c.now()

	if !entry.Valid(now) {
		if entry == nil {
			c.observe(ctx, key, ResultMiss)
		} else {
			c.observe(ctx, key, ResultExpired)
		}
		return fetchAndStore(ctx, c, key, opts, fetch)
	}

	var cached T
	if err := json.Unmarshal(entry.Data, &cached); err != nil {
		// Shape drift between versions. Treat as a miss.
		c.logger.Warn("discarding undecodable cache entry",
			logging.CacheKey(key), logging.Err(err))
		c.observe(ctx, key, ResultMiss)
		return fetchAndStore(ctx, c, key, opts, fetch)
	}

	if entry.Stale(now, opts.staleThresholdMillis()) {
		c.observe(ctx, key, ResultStale)
		refreshInBackground(ctx, c, key, opts, fetch)
	} else {
		c.observe(ctx, key, ResultHit)
	}
	return cached, nil
}

// load reads an entry, treating any storage failure as a miss.
func (c *Cache) load(ctx context.Context, key string) *Entry {
	raw, ok, err := c.kv.Get(ctx, KeyPrefix+key)
	if err != nil {
		c.logger.Warn("cache read failed, treating as miss",
			logging.CacheKey(key), logging.Err(err))
		return nil
	}
	if !ok {
		return nil
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Warn("cache entry corrupt, treating as miss",
			logging.CacheKey(key), logging.Err(err))
		return nil
	}
	return &entry
}

// fetchAndStore fetches a fresh value and writes it through. A write
// failure is logged but does not fail the call: the fetched value is
// still returned.
func fetchAndStore[T any](ctx context.Context, c *Cache, key string, opts Options, fetch func(context.Context) (T, error)) (T, error) {
	var zero T

	value, err := fetch(ctx)
	if err != nil {
		return zero, err
	}
	c.store(ctx, key, opts, value)
	return value, nil
}

func (c *Cache) store(ctx context.Context, key string, opts Options, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache value not serializable, skipping write",
			logging.CacheKey(key), logging.Err(err))
		return
	}
	entry := Entry{
		Data:      data,
		Timestamp: c.now().UnixMilli(),
		TTL:       opts.TTL.Milliseconds(),
	}
	raw, err := json.Marshal(&entry)
	if err != nil {
		c.logger.Warn("cache entry not serializable, skipping write",
			logging.CacheKey(key), logging.Err(err))
		return
	}
	if err := c.kv.Set(ctx, map[string]json.RawMessage{KeyPrefix + key: raw}); err != nil {
		c.logger.Warn("cache write failed",
			logging.CacheKey(key), logging.Err(err))
	}
}

// refreshInBackground starts at most one concurrent refresh per key. The
// refresh detaches from the caller's cancellation but keeps its values,
// and runs under its own timeout.
func refreshInBackground[T any](ctx context.Context, c *Cache, key string, opts Options, fetch func(context.Context) (T, error)) {
	c.mu.Lock()
	if _, busy := c.inflight[key]; busy {
		c.mu.Unlock()
		return
	}
	c.inflight[key] = struct{}{}
	c.mu.Unlock()

	bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), backgroundTimeout)

	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		defer cancel()
		defer func() {
			c.mu.Lock()
			delete(c.inflight, key)
			c.mu.Unlock()
		}()

		value, err := fetch(bgCtx)
		if err != nil {
			// Stale data stays authoritative until a later call succeeds.
			c.logger.Debug("background refresh failed",
				logging.CacheKey(key), logging.Err(err))
			return
		}
		c.store(bgCtx, key, opts, value)
		c.logger.Debug("background refresh complete", logging.CacheKey(key))
	}()
}

// Clear removes every cache entry, leaving non-cache keys untouched.
func (c *Cache) Clear(ctx context.Context) error {
	keys, err := c.kv.Keys(ctx)
	if err != nil {
		return err
	}
	var cacheKeys []string
	for _, k := range keys {
		if strings.HasPrefix(k, KeyPrefix) {
			cacheKeys = append(cacheKeys, k)
		}
	}
	if len(cacheKeys) == 0 {
		return nil
	}
	if err := c.kv.Remove(ctx, cacheKeys...); err != nil {
		return err
	}
	c.logger.Info("cache cleared", slog.Int("entries", len(cacheKeys)))
	return nil
}

// Wait blocks until all in-flight background refreshes finish. Used on
// shutdown and in tests.
func (c *Cache) Wait() {
	c.bg.Wait()
}
