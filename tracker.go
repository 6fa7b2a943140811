package tiercache

import (
	"sort"
	"sync"
	"time"
)

type access struct {
	last time.Time
	freq uint64
}

// tracker records per-key last access and access frequency. Eviction
// policies read it; it never decides anything itself.
type tracker struct {
	mu sync.Mutex
	m  map[string]access
}

func newTracker() *tracker { return &tracker{m: make(map[string]access)} }

// record counts one access (a write or a hit).
func (t *tracker) record(key string, now time.Time) {
	t.mu.Lock()
	a := t.m[key]
	a.last = now
	a.freq++
	t.m[key] = a
	t.mu.Unlock()
}

// touch refreshes recency without counting an access.
func (t *tracker) touch(key string, now time.Time) {
	t.mu.Lock()
	a := t.m[key]
	a.last = now
	t.m[key] = a
	t.mu.Unlock()
}

func (t *tracker) lookup(key string) (access, bool) {
	t.mu.Lock()
	a, ok := t.m[key]
	t.mu.Unlock()
	return a, ok
}

func (t *tracker) forget(keys ...string) {
	t.mu.Lock()
	for _, k := range keys {
		delete(t.m, k)
	}
	t.mu.Unlock()
}

func (t *tracker) reset() {
	t.mu.Lock()
	t.m = make(map[string]access)
	t.mu.Unlock()
}

func (t *tracker) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.m)
}

func (t *tracker) keys() []string {
	t.mu.Lock()
	out := make([]string, 0, len(t.m))
	for k := range t.m {
		out = append(out, k)
	}
	t.mu.Unlock()
	return out
}

// capTo drops the least recently used records until at most max remain.
// It returns how many were dropped.
func (t *tracker) capTo(max int) int {
	if max <= 0 {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	over := len(t.m) - max
	if over <= 0 {
		return 0
	}
	type rec struct {
		k    string
		last time.Time
	}
	all := make([]rec, 0, len(t.m))
	for k, a := range t.m {
		all = append(all, rec{k, a.last})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].last.Before(all[j].last) })
	for _, r := range all[:over] {
		delete(t.m, r.k)
	}
	return over
}
