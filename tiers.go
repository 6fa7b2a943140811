package tiercache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/tiercache/internal/wire"
)

// tierSet routes reads and writes across the tiers.
type tierSet struct {
	all []*tier // read order, all[i].level == Level(i+1)

	largeEntry  int64
	mediumEntry int64
	longTTL     time.Duration
}

func (m *tierSet) at(l Level) *tier {
	if !l.valid() {
		return nil
	}
	return m.all[l-1]
}

// determineLevel picks the preferred tier. A pinned level is honored when
// that tier is up and could hold the entry at all; otherwise size and TTL
// decide: large entries to Structured, long-lived ones to Local, medium
// ones to Session, the rest to Memory.
func (m *tierSet) determineLevel(size int64, ttl time.Duration, pinned Level) Level {
	if t := m.at(pinned); t != nil && t.available() && (t.capacity <= 0 || size <= t.capacity) {
		return pinned
	}
	switch {
	case size > m.largeEntry:
		return LevelStructured
	case ttl > m.longTTL:
		return LevelLocal
	case size > m.mediumEntry:
		return LevelSession
	default:
		return LevelMemory
	}
}

// order is the preferred tier followed by every other tier in read order.
func (m *tierSet) order(preferred Level) []*tier {
	out := make([]*tier, 0, len(m.all))
	if t := m.at(preferred); t != nil {
		out = append(out, t)
	}
	for _, t := range m.all {
		if t.level != preferred {
			out = append(out, t)
		}
	}
	return out
}

// storeAt writes e to the first tier in order(preferred) that accepts it
// and removes any copy left in another tier. The caller holds the key lock.
func (m *tierSet) storeAt(ctx context.Context, key string, e *wire.Entry, preferred Level) (Level, error) {
	attempts := make(map[Level]error)
	for _, t := range m.order(preferred) {
		if !t.available() {
			if t.configured {
				attempts[t.level] = ErrTierUnavailable
			}
			continue
		}
		if err := t.store(ctx, key, e, true); err != nil {
			attempts[t.level] = err
			continue
		}
		m.removeElsewhere(ctx, key, t)
		return t.level, nil
	}
	return LevelAuto, &StoreError{Key: key, Attempts: attempts}
}

func (m *tierSet) removeElsewhere(ctx context.Context, key string, keep *tier) {
	for _, t := range m.all {
		if t == keep || !t.available() || !t.has(key) {
			continue
		}
		_, _ = t.remove(ctx, key)
	}
}

// removeAll deletes key from every available tier, indexed or not.
func (m *tierSet) removeAll(ctx context.Context, key string) bool {
	removed := false
	for _, t := range m.all {
		if !t.available() {
			continue
		}
		if ok, err := t.remove(ctx, key); err == nil && ok {
			removed = true
		}
	}
	return removed
}

// lookup returns the first valid entry in read order and its tier.
// Expired entries are deleted on the way and the search goes on.
func (m *tierSet) lookup(ctx context.Context, key string, now time.Time) (*wire.Entry, *tier) {
	for _, t := range m.all {
		if !t.available() {
			continue
		}
		e, err := t.load(ctx, key)
		if err != nil || e == nil {
			continue
		}
		if !e.Valid(now) {
			t.expire(ctx, key)
			continue
		}
		return e, t
	}
	return nil, nil
}

// promotionTarget is the nearest available tier above from with room for
// size bytes, or nil.
func (m *tierSet) promotionTarget(from Level, key string, size int64) *tier {
	for l := from - 1; l >= LevelMemory; l-- {
		t := m.at(l)
		if !t.available() {
			continue
		}
		if t.headroom(key, size) {
			return t
		}
		return nil
	}
	return nil
}

func (m *tierSet) resident(key string) bool {
	for _, t := range m.all {
		if t.has(key) {
			return true
		}
	}
	return false
}

func (m *tierSet) residentElsewhere(key string, skip *tier) bool {
	for _, t := range m.all {
		if t != skip && t.has(key) {
			return true
		}
	}
	return false
}

// markStale notes a change to key in every tier that is down.
func (m *tierSet) markStale(key string, limit int) {
	for _, t := range m.all {
		t.markStale(key, limit)
	}
}

func (m *tierSet) stats() []TierStats {
	out := make([]TierStats, 0, len(m.all))
	for _, t := range m.all {
		out = append(out, t.snapshot())
	}
	return out
}
