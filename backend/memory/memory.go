// Package memory is the in-process map backend used by the Memory tier and,
// by default, the Session tier.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/unkn0wn-root/tiercache/backend"
)

type item struct {
	v   []byte
	exp time.Time // zero => no TTL
}

// Store is a mutex-guarded map. Expired items are dropped lazily on Get and
// skipped by Scan.
type Store struct {
	mu sync.RWMutex
	m  map[string]item
}

var _ backend.Backend = (*Store)(nil)

func New() *Store { return &Store{m: make(map[string]item)} }

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	it, ok := s.m[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !it.exp.IsZero() && !time.Now().Before(it.exp) {
		s.mu.Lock()
		if cur, ok := s.m[key]; ok && cur.exp.Equal(it.exp) {
			delete(s.m, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	return it.v, true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.m[key] = item{v: value, exp: exp}
	s.mu.Unlock()
	return nil
}

func (s *Store) Del(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
	return nil
}

func (s *Store) Scan(ctx context.Context, prefix string, fn func(string, []byte) error) error {
	now := time.Now()
	s.mu.RLock()
	snap := make(map[string][]byte, len(s.m))
	for k, it := range s.m {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if !it.exp.IsZero() && !now.Before(it.exp) {
			continue
		}
		snap[k] = it.v
	}
	s.mu.RUnlock()

	for k, v := range snap {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) DelPrefix(_ context.Context, prefix string) error {
	s.mu.Lock()
	for k := range s.m {
		if strings.HasPrefix(k, prefix) {
			delete(s.m, k)
		}
	}
	s.mu.Unlock()
	return nil
}

// Len reports the number of stored items, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

func (s *Store) Close(context.Context) error {
	s.mu.Lock()
	s.m = make(map[string]item)
	s.mu.Unlock()
	return nil
}
