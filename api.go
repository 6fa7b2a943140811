package tiercache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/tiercache/backend"
	"github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/compress"
	"github.com/unkn0wn-root/tiercache/eviction"
	"github.com/unkn0wn-root/tiercache/versions"
)

// Cache is the tiered cache API. V is the caller's value type; a Codec[V]
// handles serialization.
//
// Operations never return errors: failures degrade to false or a miss and
// are reported through Logger and Hooks. Only Close returns an error.
type Cache[V any] interface {
	// Get returns the value from the first tier holding a valid entry.
	Get(ctx context.Context, key string, opts ...GetOptions) (V, bool)
	// Set stores value; false when no tier accepted it.
	Set(ctx context.Context, key string, value V, opts ...SetOptions) bool
	// Delete removes key from every tier; true if any tier held it.
	Delete(ctx context.Context, key string) bool
	// Clear wipes the given tiers, or every tier and all access logs.
	Clear(ctx context.Context, levels ...Level) bool
	// Exists reports whether a valid entry is present. Stats are untouched.
	Exists(ctx context.Context, key string) bool
	// Touch resets the TTL to ttl when ttl > 0; otherwise it only
	// refreshes the entry's last access time.
	Touch(ctx context.Context, key string, ttl time.Duration) bool

	// Batch forms: keys are processed independently.
	GetMultiple(ctx context.Context, keys []string, opts ...GetOptions) map[string]V
	SetMultiple(ctx context.Context, items map[string]V, opts ...SetOptions) []Result
	DeleteMultiple(ctx context.Context, keys []string) []Result

	Stats() Stats
	HealthCheck(ctx context.Context) Health

	// Close stops background work, waits for in-flight promotions and
	// closes every backend and the version store.
	Close(ctx context.Context) error
}

// SetOptions tune one write. Only the first SetOptions passed is used.
type SetOptions struct {
	// TTL: 0 => Options.DefaultTTL, < 0 => no expiry.
	TTL time.Duration
	// Level pins the preferred tier; LevelAuto picks by size and TTL.
	Level Level
	// Metadata is stored with the entry and never interpreted.
	Metadata map[string]string
}

// GetOptions tune one read. Only the first GetOptions passed is used.
type GetOptions struct {
	// NoPromote keeps a hit in the tier it was found in.
	NoPromote bool
}

// Result is the per-key outcome of a batch write or delete.
type Result struct {
	Key string
	OK  bool
}

// TierOptions configure one tier. Each tier needs its own backend (or its
// own namespace in a shared medium): Clear wipes the whole cache prefix.
type TierOptions struct {
	// Backend stores the tier's entries. nil disables Local and Structured;
	// Memory and Session fall back to an in-process map.
	Backend backend.Backend
	// InitErr marks the tier configured but unavailable, e.g. when opening
	// its backend failed. HealthCheck reports it.
	InitErr error
}

// Options configure a Cache. The zero value is usable: JSON values, zstd
// compression, Memory and Session tiers in process.
type Options[V any] struct {
	Codec      codec.Codec[V]      // nil => codec.JSON[V]
	Compressor compress.Compressor // nil => zstd

	Memory     TierOptions
	Session    TierOptions
	Local      TierOptions
	Structured TierOptions

	// Capacity bounds in bytes of stored payload. 0 => default, < 0 => unbounded.
	MaxMemorySize int64 // default 64MiB
	MaxLocalSize  int64 // default 512MiB
	// Session and Structured are unbounded unless set (> 0).
	MaxSessionSize    int64
	MaxStructuredSize int64

	DefaultTTL           time.Duration // 0 => 1h, < 0 => no expiry
	CleanupInterval      time.Duration // 0 => 5m, < 0 => no background sweep
	CompressionThreshold int           // bytes; 0 => 1KiB, < 0 => never compress

	EvictionPolicy   eviction.Kind // "" => LRU
	EvictionFraction float64       // 0 => 0.25

	// Tier heuristic thresholds.
	LargeEntrySize  int64         // 0 => 1MiB
	MediumEntrySize int64         // 0 => 10KiB
	LongTTL         time.Duration // 0 => 1h

	// SyncPromotion promotes inside Get instead of in the background.
	SyncPromotion bool

	BackendTimeout time.Duration // per backend call; 0 => 5s, < 0 => none

	// MemoryPressureLimit (heap bytes) enables the pressure monitor: above
	// it the Memory tier sheds one eviction batch per check.
	MemoryPressureLimit   uint64
	PressureCheckInterval time.Duration // 0 => 30s

	MaxTrackedKeys   int            // access log cap; 0 => 1<<20
	Versions         versions.Store // nil => in-process, on the cache clock
	VersionRetention time.Duration  // 0 => 24h

	Logger Logger // nil => NopLogger
	Hooks  Hooks  // nil => NopHooks

	// Now is the clock; nil => time.Now.
	Now func() time.Time
}

func New[V any](opts Options[V]) (Cache[V], error) {
	return newCache[V](opts)
}
