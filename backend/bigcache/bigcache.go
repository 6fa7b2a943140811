// Package bigcache backs the Session tier with allegro/bigcache: off-heap
// friendly, process-lifetime storage that does not survive a restart.
package bigcache

import (
	"context"
	"errors"
	"strings"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/tiercache/backend"
)

type Store struct {
	c *bc.BigCache
}

var _ backend.Backend = (*Store)(nil)

type Config struct {
	// LifeWindow is bigcache's global entry lifetime; 0 => 24h.
	// Per-entry TTLs are enforced by the engine on read.
	LifeWindow         time.Duration
	CleanWindow        time.Duration // 0 => no background cleanup
	Shards             int           // power of two; 0 => bigcache default
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // 0 = unlimited
}

func New(cfg Config) (*Store, error) {
	life := cfg.LifeWindow
	if life <= 0 {
		life = 24 * time.Hour
	}
	conf := bc.DefaultConfig(life)
	conf.CleanWindow = cfg.CleanWindow
	conf.Verbose = false
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, err
	}
	return &Store{c: c}, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := s.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	// no per-entry TTL in bigcache; LifeWindow applies to everything
	return s.c.Set(key, value)
}

func (s *Store) Del(_ context.Context, key string) error {
	err := s.c.Delete(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil
	}
	return err
}

func (s *Store) Scan(ctx context.Context, prefix string, fn func(string, []byte) error) error {
	it := s.c.Iterator()
	for it.SetNext() {
		if err := ctx.Err(); err != nil {
			return err
		}
		e, err := it.Value()
		if err != nil {
			// entry vanished between SetNext and Value
			continue
		}
		if !strings.HasPrefix(e.Key(), prefix) {
			continue
		}
		if err := fn(e.Key(), e.Value()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) DelPrefix(ctx context.Context, prefix string) error {
	var doomed []string
	err := s.Scan(ctx, prefix, func(k string, _ []byte) error {
		doomed = append(doomed, k)
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range doomed {
		if err := s.Del(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// Len reports bigcache's entry count.
func (s *Store) Len() int { return s.c.Len() }

func (s *Store) Close(_ context.Context) error {
	return s.c.Close()
}
