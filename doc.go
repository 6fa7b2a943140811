// Package tiercache implements one logical cache spread over four storage
// tiers with different cost, capacity and durability:
//
//	Memory      in-process map, bounded by MaxMemorySize
//	Session     process-lifetime store (in-process map, bigcache, ristretto or redis)
//	Local       durable key-value store (badger), bounded by MaxLocalSize
//	Structured  table store with an expiry index (sqlite)
//
// Reads search tiers in that order and return the first valid entry. A hit
// below Memory is promoted one step up when the tier above has room; the
// entry is written there first and removed from its old tier afterwards, so
// a key lives in at most one tier.
//
// Writes go to the pinned tier (SetOptions.Level) or to one picked by size
// and TTL, falling through the remaining tiers when a tier is unavailable or
// full even after eviction. Bounded tiers evict in LRU, LFU or FIFO order.
//
// Keys:
//
//	cache_<key>  - every entry, in every backend
//
// The public operations never return errors. Failures are logged, reported
// through Hooks, and surface as false or a miss; Stats and HealthCheck are
// the diagnostic channels.
package tiercache
