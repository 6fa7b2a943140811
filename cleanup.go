package tiercache

import (
	"context"
	"runtime"
	"time"
)

const sweepTimeout = time.Minute

func (c *cache[V]) startBackground() {
	if c.cleanupEvery > 0 {
		c.every(c.cleanupEvery, func() {
			ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
			defer cancel()
			c.sweep(ctx)
		})
	}
	if c.pressureLimit > 0 && c.pressureEvery > 0 {
		c.every(c.pressureEvery, func() {
			c.checkPressure(context.Background())
		})
	}
}

func (c *cache[V]) every(d time.Duration, fn func()) {
	c.bgWG.Add(1)
	go func() {
		defer c.bgWG.Done()
		t := time.NewTicker(d)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				fn()
			case <-c.stop:
				return
			}
		}
	}()
}

type sweepReport struct {
	expired   int // entries removed from tiers
	untracked int // access records for keys no tier holds
	capped    int // access records dropped by MaxTrackedKeys
}

// sweep removes expired entries from every tier and trims the access log.
func (c *cache[V]) sweep(ctx context.Context) sweepReport {
	now := c.now()
	var r sweepReport
	for _, t := range c.tiers.all {
		r.expired += len(t.sweep(ctx, now))
	}

	var stale []string
	for _, k := range c.tracker.keys() {
		if !c.tiers.resident(k) {
			stale = append(stale, k)
		}
	}
	c.tracker.forget(stale...)
	r.untracked = len(stale)
	r.capped = c.tracker.capTo(c.maxTracked)

	c.versions.Cleanup(c.versionRetention)

	if r != (sweepReport{}) {
		c.log.Debug("cleanup sweep", Fields{"expired": r.expired, "untracked": r.untracked, "capped": r.capped})
	}
	return r
}

// checkPressure sheds one eviction batch from the Memory tier when the
// heap is above MemoryPressureLimit.
func (c *cache[V]) checkPressure(ctx context.Context) int {
	heap := c.heapInUse()
	if heap <= c.pressureLimit {
		return 0
	}
	n := c.tiers.at(LevelMemory).evictBatch(ctx, "pressure")
	c.log.Warn("memory pressure", Fields{"heap": heap, "limit": c.pressureLimit, "evicted": n})
	return n
}

func heapAlloc() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}
