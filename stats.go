package tiercache

import (
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot. Counters are monotonic for the life of
// the cache.
type Stats struct {
	Hits         uint64
	Misses       uint64
	Evictions    uint64
	Writes       uint64
	FailedWrites uint64
	Expirations  uint64
	Promotions   uint64
	// HitRate is Hits/(Hits+Misses); 0 before the first lookup.
	HitRate float64
	// TrackedKeys is the size of the access/frequency log.
	TrackedKeys int
	Tiers       []TierStats
}

// TierStats describes one tier's residency.
type TierStats struct {
	Level      Level
	Available  bool
	Persistent bool
	Entries    int
	Size       int64
	Capacity   int64 // 0 = unbounded
}

// Tier returns the stats for l.
func (s Stats) Tier(l Level) (TierStats, bool) {
	for _, t := range s.Tiers {
		if t.Level == l {
			return t, true
		}
	}
	return TierStats{}, false
}

type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// Health reports tier availability. Unconfigured tiers are listed but do
// not affect Status.
type Health struct {
	Status    HealthStatus
	Tiers     []TierHealth
	Timestamp time.Time
}

type TierHealth struct {
	Level      Level
	Configured bool
	Available  bool
	Error      string `json:",omitempty"`
}

type counters struct {
	hits         atomic.Uint64
	misses       atomic.Uint64
	evictions    atomic.Uint64
	writes       atomic.Uint64
	failedWrites atomic.Uint64
	expirations  atomic.Uint64
	promotions   atomic.Uint64
}

func (c *counters) snapshot() Stats {
	s := Stats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Evictions:    c.evictions.Load(),
		Writes:       c.writes.Load(),
		FailedWrites: c.failedWrites.Load(),
		Expirations:  c.expirations.Load(),
		Promotions:   c.promotions.Load(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

func healthStatus(tiers []TierHealth) HealthStatus {
	configured, up := 0, 0
	for _, t := range tiers {
		if !t.Configured {
			continue
		}
		configured++
		if t.Available {
			up++
		}
	}
	switch {
	case up == 0:
		return StatusUnhealthy
	case up < configured:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}
