// Package asynchook moves tiercache hook delivery off the request path.
// Hook calls are queued and run on a fixed set of workers; a slow sink
// (remote log shipper, metrics push) then costs a dropped event instead
// of Get/Set latency.
//
//	logged := sloghooks.New(slog.Default(), sloghooks.Options{PromotedEvery: 50})
//	h := asynchook.New(logged, 2, 4096)
//	defer h.Close()
//
//	c, _ := tiercache.New(tiercache.Options[Profile]{Hooks: h})
//
// Close the cache before the hooks so no event arrives after Close.
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/tiercache"
)

// Hooks forwards events to inner on worker goroutines. When the queue is
// full the event is dropped and counted.
type Hooks struct {
	inner   tiercache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards closed against concurrent sends
	closed  bool
	dropped atomic.Uint64
}

var _ tiercache.Hooks = (*Hooks)(nil)

func New(inner tiercache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains the queue. Events sent afterwards are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped is the number of events lost to a full queue or a closed hook.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) Evicted(l tiercache.Level, k, r string) {
	h.try(func() { h.inner.Evicted(l, k, r) })
}
func (h *Hooks) Expired(l tiercache.Level, k string) { h.try(func() { h.inner.Expired(l, k) }) }
func (h *Hooks) Promoted(from, to tiercache.Level, k string) {
	h.try(func() { h.inner.Promoted(from, to, k) })
}
func (h *Hooks) WriteRejected(k string, err error) { h.try(func() { h.inner.WriteRejected(k, err) }) }
func (h *Hooks) BackendError(l tiercache.Level, op string, err error) {
	h.try(func() { h.inner.BackendError(l, op, err) })
}
func (h *Hooks) SelfHeal(l tiercache.Level, k, r string) {
	h.try(func() { h.inner.SelfHeal(l, k, r) })
}
func (h *Hooks) TierUnavailable(l tiercache.Level, err error) {
	h.try(func() { h.inner.TierUnavailable(l, err) })
}
