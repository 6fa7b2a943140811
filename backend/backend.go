// Package backend defines the storage medium behind one cache tier.
//
// Implementations must be byte-for-byte transparent: Get returns exactly the
// bytes previously passed to Set for that key. The engine owns framing,
// expiry and capacity accounting; a backend only stores bytes.
//
// Keys handed to a backend already carry the cache's "cache_" prefix.
// Scan and DelPrefix must confine themselves to the given prefix so a medium
// shared with other data is never disturbed.
package backend

import (
	"context"
	"errors"
	"time"
)

// ErrRejected is returned by Set when the medium refused the write
// (admission policy, size limit) without an I/O failure.
var ErrRejected = errors.New("backend: write rejected")

// Backend is a key -> bytes medium. Must be safe for concurrent use.
type Backend interface {
	// Get returns (value, true, nil) on hit and (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value. ttl <= 0 means no native expiry; backends without
	// per-entry TTL may ignore it (the engine enforces expiry on read).
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Del removes key. Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error

	// Scan calls fn for every stored key with the prefix. Returning an
	// error from fn stops the scan and is returned by Scan.
	Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error

	// DelPrefix removes every key with the prefix.
	DelPrefix(ctx context.Context, prefix string) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// Pinger is implemented by backends that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Sweeper is implemented by backends that can delete expired entries
// natively (e.g. a range query on an expiry index). It returns the keys it
// removed.
type Sweeper interface {
	SweepExpired(ctx context.Context, prefix string, now time.Time) ([]string, error)
}
