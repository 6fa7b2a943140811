// Package redis backs a tier with a Redis server. Keys live in the shared
// keyspace under the cache prefix; enumeration uses SCAN so it never blocks
// the server the way KEYS would.
package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/tiercache/backend"
)

var ErrNilClient = errors.New("redis backend: nil client")

const defaultScanCount = 512

type Store struct {
	rdb         goredis.UniversalClient
	closeClient bool
	scanCount   int64
}

var (
	_ backend.Backend = (*Store)(nil)
	_ backend.Pinger  = (*Store)(nil)
)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this store exclusively owns the client
	ScanCount   int64
}

func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	n := cfg.ScanCount
	if n <= 0 {
		n = defaultScanCount
	}
	return &Store{rdb: cfg.Client, closeClient: cfg.CloseClient, scanCount: n}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 0
	}
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *Store) Del(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

func (s *Store) Scan(ctx context.Context, prefix string, fn func(string, []byte) error) error {
	return s.eachNode(ctx, func(ctx context.Context, c goredis.UniversalClient) error {
		return s.scanKeys(ctx, c, prefix, func(keys []string) error {
			vals, err := c.MGet(ctx, keys...).Result()
			if err != nil {
				return err
			}
			for i, v := range vals {
				var b []byte
				switch vv := v.(type) {
				case nil:
					// expired or deleted since SCAN
					continue
				case string:
					b = []byte(vv)
				case []byte:
					b = vv
				default:
					continue
				}
				if err := fn(keys[i], b); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// DelPrefix collects a node's matching keys over a complete SCAN and only
// then unlinks them. Deleting between SCAN calls can make the cursor skip keys.
func (s *Store) DelPrefix(ctx context.Context, prefix string) error {
	return s.eachNode(ctx, func(ctx context.Context, c goredis.UniversalClient) error {
		var doomed []string
		err := s.scanKeys(ctx, c, prefix, func(keys []string) error {
			doomed = append(doomed, keys...)
			return nil
		})
		if err != nil {
			return err
		}
		for len(doomed) > 0 {
			n := min(len(doomed), int(s.scanCount))
			if err := c.Unlink(ctx, doomed[:n]...).Err(); err != nil {
				return err
			}
			doomed = doomed[n:]
		}
		return nil
	})
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the underlying client only when this store owns it.
func (s *Store) Close(context.Context) error {
	if s.closeClient {
		if err := s.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

// eachNode runs fn against every master of a cluster client, or once
// against a single-node client.
func (s *Store) eachNode(ctx context.Context, fn func(context.Context, goredis.UniversalClient) error) error {
	if cc, ok := s.rdb.(*goredis.ClusterClient); ok {
		return cc.ForEachMaster(ctx, func(ctx context.Context, c *goredis.Client) error {
			return fn(ctx, c)
		})
	}
	return fn(ctx, s.rdb)
}

// scanKeys hands fn one SCAN page of keys (per-key commands in a page stay
// on the node that returned them).
func (s *Store) scanKeys(ctx context.Context, c goredis.UniversalClient, prefix string, fn func([]string) error) error {
	match := escapeGlob(prefix) + "*"
	var cursor uint64
	for {
		keys, next, err := c.Scan(ctx, cursor, match, s.scanCount).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string { return globEscaper.Replace(s) }
