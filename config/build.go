package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/backend"
	badgerstore "github.com/unkn0wn-root/tiercache/backend/badger"
	bigcachestore "github.com/unkn0wn-root/tiercache/backend/bigcache"
	redisstore "github.com/unkn0wn-root/tiercache/backend/redis"
	ristrettostore "github.com/unkn0wn-root/tiercache/backend/ristretto"
	sqlitestore "github.com/unkn0wn-root/tiercache/backend/sqlite"
	"github.com/unkn0wn-root/tiercache/compress"
	"github.com/unkn0wn-root/tiercache/eviction"
	"github.com/unkn0wn-root/tiercache/versions"
)

// Build opens the backends f names and returns Options for tiercache.New.
// base supplies what YAML cannot express (Codec, Logger, Hooks, Now); its
// tier and store fields are overwritten.
//
// A backend that fails to open does not fail Build: its tier is passed on
// with InitErr set, so the cache starts degraded and reports it. Every
// opened backend and the version store are closed by Cache.Close.
func Build[V any](f *File, base tiercache.Options[V]) (tiercache.Options[V], error) {
	if err := f.Validate(); err != nil {
		return base, err
	}
	o := base
	log := o.Logger
	if log == nil {
		log = tiercache.NopLogger{}
	}

	kind, _ := eviction.ParseKind(f.Eviction.Policy)
	o.EvictionPolicy = kind
	o.EvictionFraction = f.Eviction.Fraction
	o.DefaultTTL = f.DefaultTTL
	o.CleanupInterval = f.CleanupInterval
	o.CompressionThreshold = f.CompressionThreshold
	o.BackendTimeout = f.BackendTimeout
	o.SyncPromotion = o.SyncPromotion || f.SyncPromotion
	o.LargeEntrySize = f.Heuristic.LargeEntrySize
	o.MediumEntrySize = f.Heuristic.MediumEntrySize
	o.LongTTL = f.Heuristic.LongTTL
	o.MemoryPressureLimit = f.Pressure.Limit
	o.PressureCheckInterval = f.Pressure.Interval
	o.MaxTrackedKeys = f.MaxTrackedKeys
	o.VersionRetention = f.VersionRetention
	o.MaxMemorySize = f.Memory.MaxSize
	o.MaxSessionSize = f.Session.MaxSize
	o.MaxLocalSize = f.Local.MaxSize
	o.MaxStructuredSize = f.Structured.MaxSize

	comp, err := compressor(f.Compression)
	if err != nil {
		return base, err
	}
	o.Compressor = comp

	var rdb goredis.UniversalClient
	if f.Session.Backend == BackendRedis || f.Versions == "redis" {
		rdb = goredis.NewUniversalClient(&goredis.UniversalOptions{
			Addrs:    redisAddrs(f.Redis),
			Username: f.Redis.Username,
			Password: f.Redis.Password,
			DB:       f.Redis.DB,
		})
	}
	// the version store owns the shared client when it uses it
	versionsOwnClient := f.Versions == "redis"

	o.Memory = tiercache.TierOptions{}
	o.Session = opened(log, tiercache.LevelSession, f.Session.Backend, func() (backend.Backend, error) {
		return openSession(f, rdb, !versionsOwnClient)
	})
	o.Local = opened(log, tiercache.LevelLocal, f.Local.Backend, func() (backend.Backend, error) {
		return openLocal(f.Local, log)
	})
	o.Structured = opened(log, tiercache.LevelStructured, f.Structured.Backend, func() (backend.Backend, error) {
		return openStructured(f.Structured)
	})

	o.Versions = nil
	if versionsOwnClient {
		vs, err := versions.NewRedis(versions.RedisConfig{
			Client:      rdb,
			Namespace:   coalesceString(f.Redis.Namespace, "tiercache"),
			TTL:         f.Redis.VersionTTL,
			CloseClient: true,
		})
		if err != nil {
			_ = CloseBackends(context.Background(), o)
			_ = rdb.Close()
			return base, err
		}
		o.Versions = vs
	}
	return o, nil
}

// CloseBackends closes what Build opened: every tier backend and the
// version store. Call it when the Options never reach a running cache,
// e.g. tiercache.New failed; otherwise Cache.Close owns them.
func CloseBackends[V any](ctx context.Context, o tiercache.Options[V]) error {
	var errs []error
	for _, t := range []tiercache.TierOptions{o.Memory, o.Session, o.Local, o.Structured} {
		if t.Backend == nil {
			continue
		}
		if err := t.Backend.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if o.Versions != nil {
		if err := o.Versions.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// opened runs open for a named backend. "" leaves the tier unset.
func opened(log tiercache.Logger, l tiercache.Level, name string, open func() (backend.Backend, error)) tiercache.TierOptions {
	if name == "" || (l == tiercache.LevelSession && name == BackendMemory) {
		return tiercache.TierOptions{}
	}
	b, err := open()
	if err != nil {
		log.Error("backend open failed", tiercache.Fields{"level": l.String(), "backend": name, "err": err})
		return tiercache.TierOptions{InitErr: err}
	}
	log.Info("backend opened", tiercache.Fields{"level": l.String(), "backend": name})
	return tiercache.TierOptions{Backend: b}
}

func openSession(f *File, rdb goredis.UniversalClient, ownClient bool) (backend.Backend, error) {
	s := f.Session
	switch s.Backend {
	case BackendBigcache:
		return bigcachestore.New(bigcachestore.Config{
			LifeWindow:         s.Bigcache.LifeWindow,
			CleanWindow:        s.Bigcache.CleanWindow,
			Shards:             s.Bigcache.Shards,
			HardMaxCacheSizeMB: s.Bigcache.HardMaxCacheSizeMB,
		})
	case BackendRistretto:
		return ristrettostore.New(ristrettostore.Config{
			NumCounters: s.Ristretto.NumCounters,
			MaxCost:     s.Ristretto.MaxCost,
			Metrics:     s.Ristretto.Metrics,
		})
	case BackendRedis:
		return redisstore.New(redisstore.Config{Client: rdb, CloseClient: ownClient})
	default:
		return nil, fmt.Errorf("%w: session.backend %q", ErrInvalid, s.Backend)
	}
}

func openLocal(c Local, log tiercache.Logger) (backend.Backend, error) {
	cfg := badgerstore.DefaultConfig(c.Dir)
	opts := []badgerstore.Option{badgerstore.WithLogger(badgerLogger{log})}
	if c.InMemory {
		opts = append(opts, badgerstore.WithInMemory())
	}
	if c.SyncWrites {
		opts = append(opts, badgerstore.WithSyncWrites())
	}
	if c.GCInterval != 0 {
		opts = append(opts, badgerstore.WithGCInterval(c.GCInterval))
	}
	return badgerstore.New(cfg, opts...)
}

func openStructured(c Structured) (backend.Backend, error) {
	cfg := sqlitestore.DefaultConfig(c.Path)
	var opts []sqlitestore.Option
	if c.DSN != "" {
		opts = append(opts, sqlitestore.WithDSN(c.DSN))
	}
	if c.Table != "" {
		opts = append(opts, sqlitestore.WithTable(c.Table))
	}
	if c.JournalMode != "" {
		opts = append(opts, sqlitestore.WithJournalMode(c.JournalMode))
	}
	if c.BusyTimeout > 0 {
		opts = append(opts, sqlitestore.WithBusyTimeout(c.BusyTimeout))
	}
	return sqlitestore.New(cfg, opts...)
}

func compressor(name string) (compress.Compressor, error) {
	switch strings.ToLower(name) {
	case "", "zstd":
		return compress.DefaultZstd()
	case "s2":
		return compress.S2{}, nil
	case "none":
		return compress.Nop{}, nil
	default:
		return nil, fmt.Errorf("%w: compression %q", ErrInvalid, name)
	}
}

func redisAddrs(r Redis) []string {
	if len(r.Addrs) > 0 {
		return r.Addrs
	}
	return []string{r.Addr}
}

func coalesceString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// badgerLogger routes badger's printf logging into the cache logger.
// Badger's info output is routine compaction noise, so it goes to Debug.
type badgerLogger struct{ l tiercache.Logger }

var badgerFields = tiercache.Fields{"component": "badger"}

func (b badgerLogger) Errorf(f string, a ...any) {
	b.l.Error(strings.TrimSpace(fmt.Sprintf(f, a...)), badgerFields)
}
func (b badgerLogger) Warningf(f string, a ...any) {
	b.l.Warn(strings.TrimSpace(fmt.Sprintf(f, a...)), badgerFields)
}
func (b badgerLogger) Infof(f string, a ...any) {
	b.l.Debug(strings.TrimSpace(fmt.Sprintf(f, a...)), badgerFields)
}
func (b badgerLogger) Debugf(f string, a ...any) {
	b.l.Debug(strings.TrimSpace(fmt.Sprintf(f, a...)), badgerFields)
}
