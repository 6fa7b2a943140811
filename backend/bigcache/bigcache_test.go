package bigcache

import (
	"context"
	"testing"

	"github.com/unkn0wn-root/tiercache/backend/backendtest"
)

func TestConformance(t *testing.T) {
	s, err := New(Config{Shards: 16, MaxEntriesInWindow: 1024, MaxEntrySize: 256})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close(context.Background())
	backendtest.Run(t, s, backendtest.Options{})
}

func TestLen(t *testing.T) {
	ctx := context.Background()
	s, err := New(Config{Shards: 16})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close(ctx)
	_ = s.Set(ctx, "cache_a", []byte("1"), 0)
	_ = s.Set(ctx, "cache_b", []byte("2"), 0)
	if s.Len() != 2 {
		t.Fatalf("Len=%d", s.Len())
	}
}
