package badger

import (
	"context"
	"testing"
	"time"

	"github.com/unkn0wn-root/tiercache/backend/backendtest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{}, WithInMemory())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestConformance(t *testing.T) {
	backendtest.Run(t, newTestStore(t), backendtest.Options{})
}

func TestTTLRoundsUp(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.Set(ctx, "cache_short", []byte("v"), 300*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	// sub-second TTL must not truncate to "expires immediately"
	if _, ok, err := s.Get(ctx, "cache_short"); !ok || err != nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := New(DefaultConfig(dir))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, "cache_durable", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx); err == nil {
		t.Fatalf("Ping on closed store must fail")
	}

	s2, err := New(DefaultConfig(dir))
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close(ctx)
	v, ok, err := s2.Get(ctx, "cache_durable")
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("after reopen: v=%q ok=%v err=%v", v, ok, err)
	}
}
