// Package cache implements a TTL cache with stale-while-revalidate
// semantics on top of the persistent key-value store.
//
// Entries are stored under a "cache_" key prefix so Clear can remove them
// without touching unrelated keys (tokens, settings). An entry is fresh
// until it reaches its stale threshold (80% of the TTL by default), stale
// until the TTL elapses, and expired after that. Fresh entries are served
// without I/O, stale entries are served immediately while a background
// refresh overwrites the cache, and expired entries block on a fetch.
package cache
