package eviction

import (
	"testing"
	"time"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return base.Add(time.Duration(sec) * time.Second) }

func keys(c []Candidate) []string {
	out := make([]string, len(c))
	for i := range c {
		out[i] = c[i].Key
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func candidates() []Candidate {
	return []Candidate{
		{Key: "a", Size: 10, Created: at(1), LastAccess: at(50), Frequency: 9},
		{Key: "b", Size: 10, Created: at(2), LastAccess: at(10), Frequency: 1},
		{Key: "c", Size: 10, Created: at(3), LastAccess: at(30), Frequency: 1},
		{Key: "d", Size: 10, Created: at(4), LastAccess: at(20), Frequency: 5},
	}
}

func TestOrderings(t *testing.T) {
	cases := []struct {
		kind Kind
		want []string
	}{
		{LRU, []string{"b", "d", "c", "a"}},
		{LFU, []string{"b", "c", "d", "a"}},
		{FIFO, []string{"a", "b", "c", "d"}},
	}
	for _, tc := range cases {
		p, err := New(tc.kind)
		if err != nil {
			t.Fatal(err)
		}
		if p.Kind() != tc.kind {
			t.Fatalf("Kind()=%s want %s", p.Kind(), tc.kind)
		}
		c := candidates()
		p.Order(c)
		if got := keys(c); !equal(got, tc.want) {
			t.Fatalf("%s order=%v want %v", tc.kind, got, tc.want)
		}
	}
}

func TestBatchSize(t *testing.T) {
	cases := []struct {
		n    int
		frac float64
		want int
	}{
		{0, 0.25, 0},
		{1, 0.25, 1},
		{3, 0.25, 1},
		{8, 0.25, 2},
		{10, 0.25, 2},
		{100, 0.25, 25},
		{10, 0, 2},
		{10, 0.5, 5},
	}
	for _, tc := range cases {
		if got := BatchSize(tc.n, tc.frac); got != tc.want {
			t.Fatalf("BatchSize(%d,%v)=%d want %d", tc.n, tc.frac, got, tc.want)
		}
	}
}

func TestSelectFullBatch(t *testing.T) {
	p, _ := New(LRU)
	c := make([]Candidate, 0, 8)
	for i := 0; i < 8; i++ {
		c = append(c, Candidate{Key: string(rune('a' + i)), Size: 1, LastAccess: at(8 - i)})
	}
	got := keys(Select(p, c, 0.25, nil))
	if !equal(got, []string{"h", "g"}) {
		t.Fatalf("victims=%v", got)
	}
}

func TestSelectStopsWhenEnough(t *testing.T) {
	p, _ := New(FIFO)
	c := candidates()
	got := Select(p, c, 1, func(freed int64) bool { return freed >= 15 })
	if !equal(keys(got), []string{"a", "b"}) {
		t.Fatalf("victims=%v", keys(got))
	}
}

func TestSelectAlwaysTakesOne(t *testing.T) {
	p, _ := New(LFU)
	got := Select(p, candidates(), 0.25, func(int64) bool { return false })
	if len(got) != 1 || got[0].Key != "b" {
		t.Fatalf("victims=%v", keys(got))
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"": LRU, "lru": LRU, " lfu ": LFU, "Fifo": FIFO} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Fatalf("ParseKind(%q)=%s,%v", in, got, err)
		}
	}
	if _, err := ParseKind("random"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := New("ARC"); err == nil {
		t.Fatalf("expected error")
	}
}
