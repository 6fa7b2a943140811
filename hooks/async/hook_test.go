package asynchook

import (
	"errors"
	"sync"
	"testing"

	"github.com/unkn0wn-root/tiercache"
)

type counting struct {
	tiercache.NopHooks
	mu     sync.Mutex
	events []string
	block  chan struct{}
}

func (c *counting) add(s string) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	c.events = append(c.events, s)
	c.mu.Unlock()
}

func (c *counting) Evicted(l tiercache.Level, k, r string) { c.add("evicted:" + k) }
func (c *counting) Promoted(from, to tiercache.Level, k string) {
	c.add("promoted:" + from.String() + ">" + to.String())
}
func (c *counting) WriteRejected(k string, err error) { c.add("rejected:" + err.Error()) }

func TestForwardsAllEventsBeforeClose(t *testing.T) {
	inner := &counting{}
	h := New(inner, 2, 64)
	h.Evicted(tiercache.LevelMemory, "a", "capacity")
	h.Promoted(tiercache.LevelSession, tiercache.LevelMemory, "a")
	h.WriteRejected("b", errors.New("full"))
	h.Close()

	if len(inner.events) != 3 {
		t.Fatalf("forwarded %d events: %v", len(inner.events), inner.events)
	}
	if h.Dropped() != 0 {
		t.Fatalf("dropped=%d", h.Dropped())
	}
}

func TestDropsWhenQueueFull(t *testing.T) {
	inner := &counting{block: make(chan struct{})}
	h := New(inner, 1, 1)

	// first event occupies the worker, second fills the queue
	for i := 0; i < 10; i++ {
		h.Evicted(tiercache.LevelMemory, "k", "capacity")
	}
	if h.Dropped() == 0 {
		t.Fatalf("expected drops with a blocked worker")
	}
	close(inner.block)
	h.Close()
}

func TestSendAfterCloseIsDropped(t *testing.T) {
	h := New(&counting{}, 1, 4)
	h.Close()
	h.Close()
	h.Expired(tiercache.LevelLocal, "k")
	if h.Dropped() != 1 {
		t.Fatalf("dropped=%d want 1", h.Dropped())
	}
}
