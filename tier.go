package tiercache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/unkn0wn-root/tiercache/backend"
	"github.com/unkn0wn-root/tiercache/eviction"
	"github.com/unkn0wn-root/tiercache/internal/util"
	"github.com/unkn0wn-root/tiercache/internal/wire"
)

// Level names a tier. Lower levels are read first and preferred on write.
type Level int

const (
	// LevelAuto lets the cache pick a tier from entry size and TTL.
	LevelAuto Level = iota
	LevelMemory
	LevelSession
	LevelLocal
	LevelStructured
)

var levelNames = [...]string{"auto", "memory", "session", "local", "structured"}

// Levels lists every tier in read order.
var Levels = []Level{LevelMemory, LevelSession, LevelLocal, LevelStructured}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *Level) UnmarshalText(b []byte) error {
	v, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// ParseLevel accepts a tier name in any casing; "" is LevelAuto.
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return LevelAuto, nil
	}
	for i, n := range levelNames {
		if n == s {
			return Level(i), nil
		}
	}
	return 0, fmt.Errorf("tiercache: unknown level %q", s)
}

func (l Level) valid() bool { return l >= LevelMemory && l <= LevelStructured }

// persistent reports whether the level survives a process restart.
func (l Level) persistent() bool { return l == LevelLocal || l == LevelStructured }

// tierEnv is what every tier shares with the cache.
type tierEnv struct {
	policy   eviction.Policy
	fraction float64
	tracker  *tracker
	stats    *counters
	hooks    Hooks
	log      Logger
	now      func() time.Time
	timeout  time.Duration
}

type resident struct {
	size    int64
	created time.Time
	expires time.Time
}

// tier wraps one backend with a resident index and byte accounting.
// mu guards the index and serializes every backend write or delete the
// tier makes, so eviction finishes before capacity is re-checked.
// Backend reads do not take mu; callers hold the key lock instead.
type tier struct {
	level      Level
	b          backend.Backend
	capacity   int64 // 0 = unbounded
	configured bool
	initErr    error // set when the backend could not be opened; permanent
	env        *tierEnv

	stateMu sync.RWMutex
	down    error
	// keys changed elsewhere while the tier was down; past the limit, or
	// after a skipped Clear, the whole prefix is wiped on recovery instead
	stale     map[string]struct{}
	wipeStale bool
	recoverMu sync.Mutex

	mu    sync.Mutex
	index map[string]resident
	used  int64
}

func newTier(level Level, b backend.Backend, capacity int64, initErr error, env *tierEnv) *tier {
	t := &tier{
		level:      level,
		b:          b,
		capacity:   capacity,
		configured: b != nil || initErr != nil,
		initErr:    initErr,
		env:        env,
		index:      make(map[string]resident),
	}
	switch {
	case initErr != nil:
		t.down = initErr
	case b == nil:
		t.down = ErrTierUnavailable
	}
	return t
}

func (t *tier) available() bool {
	t.stateMu.RLock()
	defer t.stateMu.RUnlock()
	return t.down == nil && t.b != nil
}

func (t *tier) downErr() error {
	t.stateMu.RLock()
	defer t.stateMu.RUnlock()
	return t.down
}

// setDown flips availability; it reports whether the state changed.
func (t *tier) setDown(err error) bool {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	changed := (t.down == nil) != (err == nil)
	t.down = err
	return changed
}

// markStale records that key changed while the tier was down. It is a
// no-op for an up tier or one that can never come back.
func (t *tier) markStale(key string, limit int) {
	if t.b == nil || t.initErr != nil {
		return
	}
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	if t.down == nil || t.wipeStale {
		return
	}
	if t.stale == nil {
		t.stale = make(map[string]struct{})
	}
	t.stale[key] = struct{}{}
	if limit > 0 && len(t.stale) > limit {
		t.stale, t.wipeStale = nil, true
	}
}

// markWipe schedules a full wipe of a down tier for when it recovers.
func (t *tier) markWipe() {
	if t.b == nil || t.initErr != nil {
		return
	}
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	if t.down != nil {
		t.stale, t.wipeStale = nil, true
	}
}

// takeStale hands out what is pending. With nothing pending it brings the
// tier up under the same lock, so no mark can slip in between.
func (t *tier) takeStale() (keys []string, wipe, up bool) {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	if len(t.stale) == 0 && !t.wipeStale {
		t.down = nil
		return nil, false, true
	}
	keys = make([]string, 0, len(t.stale))
	for k := range t.stale {
		keys = append(keys, k)
	}
	wipe = t.wipeStale
	t.stale, t.wipeStale = nil, false
	return keys, wipe, false
}

func (t *tier) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.env.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, t.env.timeout)
}

func (t *tier) backendErr(op, key string, err error) {
	t.env.log.Warn("backend error", Fields{"level": t.level.String(), "op": op, "key": key, "err": err})
	t.env.hooks.BackendError(t.level, op, err)
}

// load returns the stored entry, nil on miss. Unreadable bytes are deleted.
func (t *tier) load(ctx context.Context, key string) (*wire.Entry, error) {
	cctx, cancel := t.opCtx(ctx)
	raw, ok, err := t.b.Get(cctx, util.StorageKey(key))
	cancel()
	if err != nil {
		t.backendErr("get", key, err)
		return nil, err
	}
	if !ok {
		t.dropIndex(key)
		return nil, nil
	}
	e, err := wire.Decode(raw)
	if err != nil {
		t.heal(ctx, key, "corrupt")
		return nil, nil
	}
	if !t.adopt(ctx, key, e) {
		return nil, nil
	}
	return e, nil
}

// adopt indexes an entry found in the backend but unknown to this process,
// e.g. written by another process sharing the medium. An eviction may have
// deleted it since it was read, so presence is re-checked under mu.
func (t *tier) adopt(ctx context.Context, key string, e *wire.Entry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.index[key]; ok {
		return true
	}
	cctx, cancel := t.opCtx(ctx)
	_, ok, err := t.b.Get(cctx, util.StorageKey(key))
	cancel()
	if err != nil || !ok {
		return false
	}
	t.index[key] = resident{size: e.Size(), created: e.Created, expires: e.Expires}
	t.used += e.Size()
	return true
}

func (t *tier) heal(ctx context.Context, key, reason string) {
	_, _ = t.remove(ctx, key)
	t.env.tracker.forget(key)
	t.env.log.Warn("self-heal: dropped unreadable entry", Fields{"level": t.level.String(), "key": key, "reason": reason})
	t.env.hooks.SelfHeal(t.level, key, reason)
}

// expire removes an entry found expired on read.
func (t *tier) expire(ctx context.Context, key string) {
	if _, err := t.remove(ctx, key); err != nil {
		return
	}
	t.env.tracker.forget(key)
	t.env.stats.expirations.Add(1)
	t.env.hooks.Expired(t.level, key)
}

// store writes e under key. With evict set, a bounded tier makes room
// first; otherwise a full tier refuses with ErrCapacity.
func (t *tier) store(ctx context.Context, key string, e *wire.Entry, evict bool) error {
	if !t.available() {
		return ErrTierUnavailable
	}
	raw, err := wire.Encode(e)
	if err != nil {
		return err
	}
	size := e.Size()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.capacity > 0 {
		if size > t.capacity {
			return ErrEntryTooLarge
		}
		if need := t.overflowLocked(key, size); need > 0 {
			if !evict {
				return ErrCapacity
			}
			t.evictLocked(ctx, need, key, "capacity")
			if t.overflowLocked(key, size) > 0 {
				return ErrCapacity
			}
		}
	}

	cctx, cancel := t.opCtx(ctx)
	err = t.b.Set(cctx, util.StorageKey(key), raw, e.TTL(t.env.now()))
	cancel()
	if err != nil {
		t.backendErr("set", key, err)
		return err
	}

	if prev, ok := t.index[key]; ok {
		t.used -= prev.size
	}
	t.index[key] = resident{size: size, created: e.Created, expires: e.Expires}
	t.used += size
	return nil
}

// overflowLocked is how many bytes are missing for key to take size bytes.
func (t *tier) overflowLocked(key string, size int64) int64 {
	if t.capacity <= 0 {
		return 0
	}
	return t.used - t.index[key].size + size - t.capacity
}

// headroom reports whether key fits without evicting anything.
func (t *tier) headroom(key string, size int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.overflowLocked(key, size) <= 0
}

// evictLocked removes one policy-ordered batch. With need > 0 the batch
// stops as soon as need bytes are freed; skip is never a victim.
func (t *tier) evictLocked(ctx context.Context, need int64, skip, reason string) int {
	cands := make([]eviction.Candidate, 0, len(t.index))
	for k, r := range t.index {
		if k == skip {
			continue
		}
		c := eviction.Candidate{Key: k, Size: r.size, Created: r.created, LastAccess: r.created}
		if a, ok := t.env.tracker.lookup(k); ok {
			c.LastAccess = a.last
			c.Frequency = a.freq
		}
		cands = append(cands, c)
	}

	var enough func(int64) bool
	if need > 0 {
		enough = func(freed int64) bool { return freed >= need }
	}

	n := 0
	for _, v := range eviction.Select(t.env.policy, cands, t.env.fraction, enough) {
		if err := t.delBackend(ctx, v.Key); err != nil {
			continue
		}
		t.dropLocked(v.Key)
		t.env.tracker.forget(v.Key)
		t.env.stats.evictions.Add(1)
		t.env.hooks.Evicted(t.level, v.Key, reason)
		n++
	}
	if n > 0 {
		t.env.log.Debug("evicted entries", Fields{
			"level": t.level.String(), "count": n, "reason": reason, "used": t.used, "capacity": t.capacity,
		})
	}
	return n
}

// evictBatch runs a full eviction batch regardless of capacity.
func (t *tier) evictBatch(ctx context.Context, reason string) int {
	if !t.available() {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.evictLocked(ctx, 0, "", reason)
}

func (t *tier) delBackend(ctx context.Context, key string) error {
	cctx, cancel := t.opCtx(ctx)
	defer cancel()
	if err := t.b.Del(cctx, util.StorageKey(key)); err != nil {
		t.backendErr("del", key, err)
		return err
	}
	return nil
}

// remove deletes key and reports whether the tier held it.
func (t *tier) remove(ctx context.Context, key string) (bool, error) {
	if !t.available() {
		return false, ErrTierUnavailable
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.delBackend(ctx, key); err != nil {
		return false, err
	}
	_, had := t.index[key]
	t.dropLocked(key)
	return had, nil
}

// discard deletes key whether or not the tier is up. Recovery uses it
// before the tier serves again.
func (t *tier) discard(ctx context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.delBackend(ctx, key); err != nil {
		return err
	}
	t.dropLocked(key)
	return nil
}

func (t *tier) keys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.index))
	for k := range t.index {
		out = append(out, k)
	}
	return out
}

func (t *tier) has(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.index[key]
	return ok
}

func (t *tier) dropIndex(key string) {
	t.mu.Lock()
	t.dropLocked(key)
	t.mu.Unlock()
}

func (t *tier) dropLocked(key string) {
	if r, ok := t.index[key]; ok {
		t.used -= r.size
		delete(t.index, key)
	}
}

// sweep removes every indexed entry due at now and lets a Sweeper backend
// purge natively. It returns the removed keys.
func (t *tier) sweep(ctx context.Context, now time.Time) []string {
	if !t.available() {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	var due []string
	for k, r := range t.index {
		if !r.expires.IsZero() && !now.Before(r.expires) {
			due = append(due, k)
		}
	}
	removed := make([]string, 0, len(due))
	for _, k := range due {
		if err := t.delBackend(ctx, k); err != nil {
			continue
		}
		t.dropLocked(k)
		removed = append(removed, k)
	}

	if sw, ok := t.b.(backend.Sweeper); ok {
		cctx, cancel := t.opCtx(ctx)
		// backends stamp expiry with the wall clock
		keys, err := sw.SweepExpired(cctx, util.KeyPrefix, time.Now())
		cancel()
		if err != nil {
			t.backendErr("sweep", "", err)
		}
		for _, sk := range keys {
			k, ok := util.UserKey(sk)
			if !ok {
				continue
			}
			if _, had := t.index[k]; had {
				t.dropLocked(k)
				removed = append(removed, k)
			}
		}
	}

	for _, k := range removed {
		t.env.tracker.forget(k)
		t.env.hooks.Expired(t.level, k)
	}
	t.env.stats.expirations.Add(uint64(len(removed)))
	return removed
}

// rebuild indexes what the backend already holds. Expired or unreadable
// entries are deleted, access times are seeded into the tracker, and a tier
// found over capacity is evicted back under it.
func (t *tier) rebuild(ctx context.Context) error {
	if t.b == nil || t.initErr != nil {
		return nil
	}
	now := t.env.now()
	idx := make(map[string]resident)
	var (
		used   int64
		doomed []string
		seen   = make(map[string]time.Time)
	)
	err := t.b.Scan(ctx, util.KeyPrefix, func(sk string, raw []byte) error {
		k, ok := util.UserKey(sk)
		if !ok {
			return nil
		}
		e, err := wire.Decode(raw)
		if err != nil || !e.Valid(now) {
			doomed = append(doomed, k)
			return nil
		}
		idx[k] = resident{size: e.Size(), created: e.Created, expires: e.Expires}
		used += e.Size()
		seen[k] = e.LastAccessed
		return nil
	})
	if err != nil {
		t.backendErr("scan", "", err)
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, k := range doomed {
		_ = t.delBackend(ctx, k)
	}
	t.index = idx
	t.used = used
	for k, last := range seen {
		if !last.IsZero() {
			t.env.tracker.touch(k, last)
		}
	}
	if t.capacity > 0 && t.used > t.capacity {
		t.evictLocked(ctx, t.used-t.capacity, "", "capacity")
	}
	if len(idx) > 0 || len(doomed) > 0 {
		t.env.log.Info("tier index rebuilt", Fields{
			"level": t.level.String(), "entries": len(idx), "bytes": used, "dropped": len(doomed),
		})
	}
	return nil
}

// clear wipes the tier's prefix and returns the keys it held.
func (t *tier) clear(ctx context.Context) ([]string, error) {
	if !t.available() {
		return nil, ErrTierUnavailable
	}
	return t.wipe(ctx)
}

// wipe drops the whole prefix regardless of availability.
func (t *tier) wipe(ctx context.Context) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cctx, cancel := t.opCtx(ctx)
	err := t.b.DelPrefix(cctx, util.KeyPrefix)
	cancel()
	if err != nil {
		t.backendErr("clear", "", err)
		return nil, err
	}
	keys := make([]string, 0, len(t.index))
	for k := range t.index {
		keys = append(keys, k)
	}
	t.index = make(map[string]resident)
	t.used = 0
	return keys, nil
}

func (t *tier) ping(ctx context.Context) error {
	p, ok := t.b.(backend.Pinger)
	if !ok {
		return nil
	}
	cctx, cancel := t.opCtx(ctx)
	defer cancel()
	return p.Ping(cctx)
}

func (t *tier) snapshot() TierStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TierStats{
		Level:      t.level,
		Available:  t.available(),
		Persistent: t.level.persistent(),
		Entries:    len(t.index),
		Size:       t.used,
		Capacity:   t.capacity,
	}
}
