package tiercache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/tiercache/backend"
	"github.com/unkn0wn-root/tiercache/backend/memory"
	"github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/compress"
	"github.com/unkn0wn-root/tiercache/eviction"
	"github.com/unkn0wn-root/tiercache/internal/wire"
	"github.com/unkn0wn-root/tiercache/versions"
)

type cache[V any] struct {
	codec         codec.Codec[V]
	comp          compress.Compressor
	compressAbove int // < 0 disables compression
	defaultTTL    time.Duration
	syncPromotion bool

	versions         versions.Store
	versionRetention time.Duration
	maxTracked       int

	cleanupEvery  time.Duration
	pressureLimit uint64
	pressureEvery time.Duration
	heapInUse     func() uint64

	log   Logger
	hooks Hooks
	now   func() time.Time

	tiers   *tierSet
	tracker *tracker
	stats   counters
	locks   keyLocks

	promoMu sync.Mutex // orders promoWG.Add against Close
	promoWG sync.WaitGroup

	stop      chan struct{}
	bgWG      sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
}

func newCache[V any](opts Options[V]) (*cache[V], error) {
	policy, err := eviction.New(opts.EvictionPolicy)
	if err != nil {
		return nil, err
	}
	if opts.EvictionFraction < 0 || opts.EvictionFraction > 1 {
		return nil, fmt.Errorf("tiercache: eviction fraction %v outside (0,1]", opts.EvictionFraction)
	}

	c := &cache[V]{
		codec:         opts.Codec,
		comp:          opts.Compressor,
		syncPromotion: opts.SyncPromotion,
		versions:      opts.Versions,
		heapInUse:     heapAlloc,
		stop:          make(chan struct{}),
	}

	// defaults
	if c.codec == nil {
		c.codec = codec.JSON[V]{}
	}
	if c.comp == nil {
		if z, err := compress.DefaultZstd(); err == nil {
			c.comp = z
		} else {
			c.comp = compress.S2{}
		}
	}
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.now = opts.Now
	if c.now == nil {
		c.now = time.Now
	}
	if c.versions == nil {
		c.versions = versions.NewLocalWithClock(c.now)
	}
	c.compressAbove = coalesce(opts.CompressionThreshold, defaultCompressionThreshold)
	c.defaultTTL = coalesce(opts.DefaultTTL, defaultTTL)
	c.cleanupEvery = coalesce(opts.CleanupInterval, defaultCleanupInterval)
	c.pressureLimit = opts.MemoryPressureLimit
	c.pressureEvery = coalesce(opts.PressureCheckInterval, defaultPressureInterval)
	c.maxTracked = coalesce(opts.MaxTrackedKeys, defaultMaxTrackedKeys)
	c.versionRetention = coalesce(opts.VersionRetention, defaultVersionRetention)
	c.tracker = newTracker()

	env := &tierEnv{
		policy:   policy,
		fraction: coalesce(opts.EvictionFraction, eviction.DefaultFraction),
		tracker:  c.tracker,
		stats:    &c.stats,
		hooks:    c.hooks,
		log:      c.log,
		now:      c.now,
		timeout:  coalesce(opts.BackendTimeout, defaultBackendTimeout),
	}

	c.tiers = &tierSet{
		largeEntry:  coalesce(opts.LargeEntrySize, int64(defaultLargeEntrySize)),
		mediumEntry: coalesce(opts.MediumEntrySize, int64(defaultMediumEntrySize)),
		longTTL:     coalesce(opts.LongTTL, defaultLongTTL),
		all: []*tier{
			newTier(LevelMemory, inProcess(opts.Memory), capacity(opts.MaxMemorySize, defaultMaxMemorySize), opts.Memory.InitErr, env),
			newTier(LevelSession, inProcess(opts.Session), capacity(opts.MaxSessionSize, 0), opts.Session.InitErr, env),
			newTier(LevelLocal, opts.Local.Backend, capacity(opts.MaxLocalSize, defaultMaxLocalSize), opts.Local.InitErr, env),
			newTier(LevelStructured, opts.Structured.Backend, capacity(opts.MaxStructuredSize, 0), opts.Structured.InitErr, env),
		},
	}

	ctx := context.Background()
	for _, t := range c.tiers.all {
		if t.initErr != nil {
			c.log.Error("tier unavailable", Fields{"level": t.level.String(), "err": t.initErr})
			c.hooks.TierUnavailable(t.level, t.initErr)
			continue
		}
		if err := t.rebuild(ctx); err != nil {
			t.setDown(err)
			c.log.Error("tier unavailable: index rebuild failed", Fields{"level": t.level.String(), "err": err})
			c.hooks.TierUnavailable(t.level, err)
		}
	}

	c.startBackground()
	return c, nil
}

// inProcess gives Memory and Session an in-process map unless configured.
func inProcess(o TierOptions) backend.Backend {
	if o.Backend == nil && o.InitErr == nil {
		return memory.New()
	}
	return o.Backend
}

func capacity(v, def int64) int64 {
	switch {
	case v < 0:
		return 0
	case v == 0:
		return def
	default:
		return v
	}
}

func (c *cache[V]) Get(ctx context.Context, key string, opts ...GetOptions) (V, bool) {
	var zero V
	if c.closed.Load() {
		return zero, false
	}
	var o GetOptions
	if len(opts) > 0 {
		o = opts[0]
	}

	unlock := c.locks.lock(key)
	now := c.now()
	e, t := c.tiers.lookup(ctx, key, now)
	if e == nil {
		unlock()
		c.stats.misses.Add(1)
		return zero, false
	}
	v, reason, err := c.decodeEntry(e)
	if err != nil {
		t.heal(ctx, key, reason)
		unlock()
		c.stats.misses.Add(1)
		return zero, false
	}
	c.stats.hits.Add(1)
	c.tracker.record(key, now)

	if o.NoPromote || t.level == LevelMemory {
		unlock()
		return v, true
	}

	ver, err := c.versions.Current(ctx, key)
	if err != nil {
		unlock()
		c.log.Warn("version snapshot failed; skipping promotion", Fields{"key": key, "err": err})
		return v, true
	}
	if c.syncPromotion {
		c.promoteLocked(ctx, key, e, t, ver)
		unlock()
		return v, true
	}
	unlock()
	c.promoteAsync(ctx, key, e, t, ver)
	return v, true
}

func (c *cache[V]) promoteAsync(ctx context.Context, key string, e *wire.Entry, from *tier, ver uint64) {
	c.promoMu.Lock()
	if c.closed.Load() {
		c.promoMu.Unlock()
		return
	}
	c.promoWG.Add(1)
	c.promoMu.Unlock()

	go func() {
		defer c.promoWG.Done()
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), promotionTimeout)
		defer cancel()
		unlock := c.locks.lock(key)
		defer unlock()
		c.promoteLocked(pctx, key, e, from, ver)
	}()
}

// promoteLocked moves e from its tier to the next tier up when that tier
// has room. The destination is written before the source is deleted; if
// the delete fails the destination copy is dropped again. A version change
// since the read (Set, Delete, Touch) cancels the move.
func (c *cache[V]) promoteLocked(ctx context.Context, key string, e *wire.Entry, from *tier, ver uint64) {
	cur, err := c.versions.Current(ctx, key)
	if err != nil || cur != ver {
		c.log.Debug("promotion skipped: key changed", Fields{"key": key})
		return
	}
	if !from.has(key) {
		return
	}
	now := c.now()
	if !e.Valid(now) {
		return
	}
	dest := c.tiers.promotionTarget(from.level, key, e.Size())
	if dest == nil {
		return
	}

	moved := *e
	moved.LastAccessed = now
	if err := dest.store(ctx, key, &moved, false); err != nil {
		c.log.Debug("promotion failed", Fields{"key": key, "from": from.level.String(), "to": dest.level.String(), "err": err})
		return
	}
	if _, err := from.remove(ctx, key); err != nil {
		_, _ = dest.remove(ctx, key)
		c.log.Warn("promotion rolled back", Fields{"key": key, "from": from.level.String(), "err": err})
		return
	}
	c.stats.promotions.Add(1)
	c.hooks.Promoted(from.level, dest.level, key)
}

func (c *cache[V]) Set(ctx context.Context, key string, value V, opts ...SetOptions) bool {
	if c.closed.Load() {
		return false
	}
	var o SetOptions
	if len(opts) > 0 {
		o = opts[0]
	}

	now := c.now()
	e, err := c.buildEntry(value, o, now)
	if err != nil {
		c.stats.failedWrites.Add(1)
		c.log.Warn("encode failed", Fields{"key": key, "err": err})
		return false
	}

	unlock := c.locks.lock(key)
	defer unlock()

	c.bumpVersion(ctx, key)
	preferred := c.tiers.determineLevel(e.Size(), c.resolveTTL(o.TTL), o.Level)
	lvl, err := c.tiers.storeAt(ctx, key, e, preferred)
	if err != nil {
		// an older value must not outlive a failed overwrite
		c.tiers.removeAll(ctx, key)
		c.tracker.forget(key)
		c.stats.failedWrites.Add(1)
		c.log.Warn("write rejected by every tier", Fields{"key": key, "size": e.Size(), "err": err})
		c.hooks.WriteRejected(key, err)
		return false
	}

	c.stats.writes.Add(1)
	c.tracker.record(key, now)
	c.log.Debug("stored", Fields{
		"key": key, "level": lvl.String(), "preferred": preferred.String(),
		"size": e.Size(), "compressed": e.Compressed,
	})
	return true
}

func (c *cache[V]) Delete(ctx context.Context, key string) bool {
	if c.closed.Load() {
		return false
	}
	unlock := c.locks.lock(key)
	defer unlock()

	c.bumpVersion(ctx, key)
	removed := c.tiers.removeAll(ctx, key)
	c.tracker.forget(key)
	return removed
}

func (c *cache[V]) Clear(ctx context.Context, levels ...Level) bool {
	if c.closed.Load() {
		return false
	}
	all := len(levels) == 0
	if all {
		levels = Levels
	}

	ok := true
	for _, l := range levels {
		t := c.tiers.at(l)
		if t == nil {
			ok = false
			continue
		}
		if !t.configured {
			if !all {
				ok = false
			}
			continue
		}
		keys, err := t.clear(ctx)
		if err != nil {
			if errors.Is(err, ErrTierUnavailable) {
				t.markWipe()
			}
			ok = false
			continue
		}
		c.tracker.forget(keys...)
		c.log.Info("tier cleared", Fields{"level": l.String(), "entries": len(keys)})
	}
	if all {
		c.tracker.reset()
	}
	return ok
}

func (c *cache[V]) Exists(ctx context.Context, key string) bool {
	if c.closed.Load() {
		return false
	}
	unlock := c.locks.lock(key)
	defer unlock()
	e, _ := c.tiers.lookup(ctx, key, c.now())
	return e != nil
}

func (c *cache[V]) Touch(ctx context.Context, key string, ttl time.Duration) bool {
	if c.closed.Load() {
		return false
	}
	unlock := c.locks.lock(key)
	defer unlock()

	now := c.now()
	e, t := c.tiers.lookup(ctx, key, now)
	if e == nil {
		return false
	}
	touched := *e
	touched.LastAccessed = now
	if ttl > 0 {
		touched.Expires = now.Add(ttl)
	}
	c.bumpVersion(ctx, key)
	if err := t.store(ctx, key, &touched, false); err != nil {
		c.log.Warn("touch failed", Fields{"key": key, "level": t.level.String(), "err": err})
		return false
	}
	c.tracker.touch(key, now)
	return true
}

func (c *cache[V]) GetMultiple(ctx context.Context, keys []string, opts ...GetOptions) map[string]V {
	out := make(map[string]V, len(keys))
	for _, k := range keys {
		if v, ok := c.Get(ctx, k, opts...); ok {
			out[k] = v
		}
	}
	return out
}

// SetMultiple returns results in key order.
func (c *cache[V]) SetMultiple(ctx context.Context, items map[string]V, opts ...SetOptions) []Result {
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Result, 0, len(keys))
	for _, k := range keys {
		out = append(out, Result{Key: k, OK: c.Set(ctx, k, items[k], opts...)})
	}
	return out
}

// DeleteMultiple returns results in input order.
func (c *cache[V]) DeleteMultiple(ctx context.Context, keys []string) []Result {
	out := make([]Result, 0, len(keys))
	for _, k := range keys {
		out = append(out, Result{Key: k, OK: c.Delete(ctx, k)})
	}
	return out
}

func (c *cache[V]) Stats() Stats {
	s := c.stats.snapshot()
	s.Tiers = c.tiers.stats()
	s.TrackedKeys = c.tracker.len()
	return s
}

// HealthCheck pings every configured backend that supports it. A failed
// ping takes the tier out of rotation until a later check succeeds.
func (c *cache[V]) HealthCheck(ctx context.Context) Health {
	h := Health{Timestamp: c.now()}
	for _, t := range c.tiers.all {
		th := TierHealth{Level: t.level, Configured: t.configured}
		if t.b != nil && t.initErr == nil && !c.closed.Load() {
			wasDown := t.downErr() != nil
			err := t.ping(ctx)
			switch {
			case err != nil:
				if t.setDown(err) {
					c.log.Error("tier unavailable: ping failed", Fields{"level": t.level.String(), "err": err})
					c.hooks.TierUnavailable(t.level, err)
				}
				c.hooks.BackendError(t.level, "ping", err)
			case wasDown:
				if err := c.recoverTier(ctx, t); err != nil {
					t.setDown(err)
					c.log.Warn("tier recovery failed", Fields{"level": t.level.String(), "err": err})
				} else {
					c.log.Info("tier available again", Fields{"level": t.level.String()})
				}
			}
		}
		th.Available = t.available()
		if err := t.downErr(); err != nil && t.configured {
			th.Error = err.Error()
		}
		h.Tiers = append(h.Tiers, th)
	}
	h.Status = healthStatus(h.Tiers)
	return h
}

// recoverTier reconciles a tier that was down before it serves again. The
// index is rebuilt from the backend, then copies another tier holds and
// keys changed during the outage are dropped. The tier comes up only once
// nothing stale is pending.
func (c *cache[V]) recoverTier(ctx context.Context, t *tier) error {
	t.recoverMu.Lock()
	defer t.recoverMu.Unlock()
	if t.downErr() == nil {
		return nil
	}
	if err := t.rebuild(ctx); err != nil {
		return err
	}

	dropped := 0
	for _, k := range t.keys() {
		if !c.tiers.residentElsewhere(k, t) {
			continue
		}
		if err := c.dropStale(ctx, t, k); err != nil {
			return err
		}
		dropped++
	}
	for {
		keys, wipe, up := t.takeStale()
		if up {
			break
		}
		if wipe {
			gone, err := t.wipe(ctx)
			if err != nil {
				t.markWipe()
				return err
			}
			dropped += len(gone)
		}
		for i, k := range keys {
			if err := c.dropStale(ctx, t, k); err != nil {
				for _, rest := range keys[i:] {
					t.markStale(rest, c.maxTracked)
				}
				return err
			}
			dropped++
		}
	}
	if dropped > 0 {
		c.log.Info("tier reconciled", Fields{"level": t.level.String(), "dropped": dropped})
	}
	return nil
}

func (c *cache[V]) dropStale(ctx context.Context, t *tier, key string) error {
	unlock := c.locks.lock(key)
	defer unlock()
	return t.discard(ctx, key)
}

func (c *cache[V]) Close(ctx context.Context) error {
	err := ErrClosed
	c.closeOnce.Do(func() {
		c.promoMu.Lock()
		c.closed.Store(true)
		c.promoMu.Unlock()

		close(c.stop)
		c.bgWG.Wait()
		c.promoWG.Wait()

		var errs []error
		for _, t := range c.tiers.all {
			if t.b == nil {
				continue
			}
			if e := t.b.Close(ctx); e != nil {
				errs = append(errs, fmt.Errorf("%s: %w", t.level, e))
			}
		}
		if e := c.versions.Close(ctx); e != nil {
			errs = append(errs, fmt.Errorf("versions: %w", e))
		}
		err = errors.Join(errs...)
	})
	return err
}

func (c *cache[V]) bumpVersion(ctx context.Context, key string) {
	c.tiers.markStale(key, c.maxTracked)
	if _, err := c.versions.Bump(ctx, key); err != nil {
		c.log.Warn("version bump failed", Fields{"key": key, "err": err})
	}
}
