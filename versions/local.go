package versions

import (
	"context"
	"sync"
	"time"
)

type localEntry struct {
	v       uint64
	touched time.Time
}

// Local keeps versions in-process. Pruning is driven by the caller's
// cleanup loop through Cleanup.
type Local struct {
	mu  sync.RWMutex
	m   map[string]localEntry
	now func() time.Time
}

var _ Store = (*Local)(nil)

func NewLocal() *Local {
	return &Local{m: make(map[string]localEntry), now: time.Now}
}

// NewLocalWithClock is NewLocal with an injected clock.
func NewLocalWithClock(now func() time.Time) *Local {
	l := NewLocal()
	if now != nil {
		l.now = now
	}
	return l
}

func (s *Local) Current(_ context.Context, k string) (uint64, error) {
	s.mu.RLock()
	e := s.m[k]
	s.mu.RUnlock()
	return e.v, nil
}

func (s *Local) Bump(_ context.Context, k string) (uint64, error) {
	now := s.now()
	s.mu.Lock()
	e := s.m[k]
	e.v++
	e.touched = now
	s.m[k] = e
	s.mu.Unlock()
	return e.v, nil
}

// Cleanup drops versions not bumped within retention. A pruned key reads
// as 0 again, which only matters to work that snapshotted it before the
// prune; retention must therefore exceed the longest background operation.
func (s *Local) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := s.now().Add(-retention)
	s.mu.Lock()
	for k, e := range s.m {
		if e.touched.Before(cutoff) {
			delete(s.m, k)
		}
	}
	s.mu.Unlock()
}

// Len reports how many keys carry a version.
func (s *Local) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

func (s *Local) Close(context.Context) error { return nil }
