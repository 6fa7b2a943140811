// Package ristretto backs a tier with dgraph-io/ristretto. Ristretto cannot
// enumerate its keys, so DelPrefix clears the whole cache and Scan is a
// no-op; give it a dedicated instance per tier.
package ristretto

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/tiercache/backend"
)

var ErrInvalidConfig = errors.New("ristretto: invalid config")

type Store struct {
	c *rc.Cache
}

var _ backend.Backend = (*Store)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64 // bytes; cost per entry is len(value)
	BufferItems int64
	Metrics     bool
}

func New(cfg Config) (*Store, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 {
		return nil, ErrInvalidConfig
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = 64
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Store{c: c}, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		s.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

// Set waits for ristretto's write buffer so the value is readable on return.
func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if !s.c.SetWithTTL(key, value, int64(len(value)), ttl) {
		return backend.ErrRejected
	}
	s.c.Wait()
	if _, ok := s.c.Get(key); !ok {
		// dropped by the admission policy after buffering
		return backend.ErrRejected
	}
	return nil
}

func (s *Store) Del(_ context.Context, key string) error {
	s.c.Del(key)
	return nil
}

func (s *Store) Scan(context.Context, string, func(string, []byte) error) error {
	return nil
}

func (s *Store) DelPrefix(context.Context, string) error {
	s.c.Clear()
	return nil
}

func (s *Store) Close(context.Context) error {
	s.c.Wait()
	s.c.Close()
	return nil
}

// Metrics exposes ristretto's counters; nil unless Config.Metrics is set.
func (s *Store) Metrics() *rc.Metrics { return s.c.Metrics }
