package tiercache

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const keyStripes = 256

// keyLocks serializes operations on one key without a lock per key.
// Unrelated keys may share a stripe.
type keyLocks struct {
	mu [keyStripes]sync.Mutex
}

func (l *keyLocks) lock(key string) func() {
	m := &l.mu[xxhash.Sum64String(key)%keyStripes]
	m.Lock()
	return m.Unlock
}
