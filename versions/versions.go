// Package versions tracks a per-key write counter. The cache bumps it on
// every Set and Delete; background work such as promotion snapshots it first
// and abandons its write if the counter moved in the meantime.
package versions

import (
	"context"
	"time"
)

// Store abstracts where versions live. Local is per-process; Redis shares
// versions between processes that share the same tiers.
type Store interface {
	// Current returns the version; missing => 0.
	Current(ctx context.Context, key string) (uint64, error)
	// Bump atomically increments and returns the new version.
	Bump(ctx context.Context, key string) (uint64, error)
	// Cleanup prunes versions untouched for longer than retention
	// (no-op where the backend expires them itself).
	Cleanup(retention time.Duration)
	Close(context.Context) error
}
