// Package eviction decides which resident entries a full tier gives up.
//
// A tier hands the policy every resident entry as a Candidate; the policy
// orders them so the first element is the first to go. The tier then
// removes a batch from the front of that order.
package eviction

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Candidate is one resident entry as seen by a policy.
type Candidate struct {
	Key        string
	Size       int64
	Created    time.Time
	LastAccess time.Time
	Frequency  uint64
}

// Policy orders candidates for eviction, first victim first.
type Policy interface {
	Kind() Kind
	Order(c []Candidate)
}

// Kind identifies a supported strategy.
type Kind string

const (
	// LRU evicts the entries that were accessed longest ago.
	LRU Kind = "LRU"
	// LFU evicts the entries with the fewest recorded accesses.
	LFU Kind = "LFU"
	// FIFO evicts the entries that were created first, regardless of use.
	FIFO Kind = "FIFO"
)

// ParseKind accepts any casing; empty selects LRU.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToUpper(strings.TrimSpace(s))) {
	case "", LRU:
		return LRU, nil
	case LFU:
		return LFU, nil
	case FIFO:
		return FIFO, nil
	default:
		return "", fmt.Errorf("eviction: unknown policy %q", s)
	}
}

// New returns the policy for k.
func New(k Kind) (Policy, error) {
	switch k {
	case LRU, "":
		return lru{}, nil
	case LFU:
		return lfu{}, nil
	case FIFO:
		return fifo{}, nil
	default:
		return nil, fmt.Errorf("eviction: unknown policy %q", k)
	}
}

// DefaultFraction is the share of resident entries one eviction pass may remove.
const DefaultFraction = 0.25

// BatchSize is the maximum number of victims for n residents: fraction of n,
// at least 1 (when n > 0).
func BatchSize(n int, fraction float64) int {
	if n <= 0 {
		return 0
	}
	if fraction <= 0 || fraction > 1 {
		fraction = DefaultFraction
	}
	b := int(float64(n) * fraction)
	if b < 1 {
		b = 1
	}
	return b
}

// Select orders c with p and returns the victims: candidates are taken from
// the front of the order, up to BatchSize, stopping early once enough(freed)
// reports the pending work is satisfied. A nil enough takes the full batch.
func Select(p Policy, c []Candidate, fraction float64, enough func(freed int64) bool) []Candidate {
	limit := BatchSize(len(c), fraction)
	if limit == 0 {
		return nil
	}
	p.Order(c)

	var freed int64
	out := make([]Candidate, 0, limit)
	for _, cand := range c {
		if len(out) == limit {
			break
		}
		if enough != nil && enough(freed) {
			break
		}
		out = append(out, cand)
		freed += cand.Size
	}
	return out
}

type lru struct{}

func (lru) Kind() Kind { return LRU }

func (lru) Order(c []Candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		if !c[i].LastAccess.Equal(c[j].LastAccess) {
			return c[i].LastAccess.Before(c[j].LastAccess)
		}
		return c[i].Created.Before(c[j].Created)
	})
}

type lfu struct{}

func (lfu) Kind() Kind { return LFU }

// Order breaks frequency ties by recency so a cold entry goes before a
// recently touched one with the same count.
func (lfu) Order(c []Candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].Frequency != c[j].Frequency {
			return c[i].Frequency < c[j].Frequency
		}
		return c[i].LastAccess.Before(c[j].LastAccess)
	})
}

type fifo struct{}

func (fifo) Kind() Kind { return FIFO }

func (fifo) Order(c []Candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		return c[i].Created.Before(c[j].Created)
	})
}
