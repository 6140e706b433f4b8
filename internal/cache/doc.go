// Package cache holds the two caches in front of the network: the on-disk audio cache index and the
// in-memory search result cache.
//
// # Cache Index
//
// [Index] maps a track id to a file under the cache directory. A file counts as cached only when it
// exists and is non-empty. Writers produce "<id>.part.<ext>" first and rename it into place, so a
// reader never observes a partial file as a hit. Filesystem errors are reported as misses.
//
// # Search Result Cache
//
// [SearchCache] memoizes provider results by normalized query for a short time. Eviction runs lazily:
// expired entries are dropped first, then the entries with the lowest hits/age score (the initial store counts as a hit) until the cache
// is back under capacity. [CachedSearcher] wraps any [Provider] with it.
package cache
