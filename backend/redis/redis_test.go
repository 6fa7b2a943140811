package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/tiercache/backend/backendtest"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	s, err := New(Config{Client: rdb, CloseClient: true, ScanCount: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s, mr
}

func TestConformance(t *testing.T) {
	s, _ := newTestStore(t)
	backendtest.Run(t, s, backendtest.Options{})
}

func TestEscapeGlob(t *testing.T) {
	if got := escapeGlob(`cache_[a]*?`); got != `cache_\[a\]\*\?` {
		t.Fatalf("escapeGlob=%q", got)
	}
}

func TestNilClient(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNilClient) {
		t.Fatalf("expected ErrNilClient, got %v", err)
	}
}

func TestNativeTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)
	if err := s.Set(ctx, "cache_ttl", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL("cache_ttl"); ttl != time.Minute {
		t.Fatalf("TTL=%v", ttl)
	}
	mr.FastForward(2 * time.Minute)
	if _, ok, _ := s.Get(ctx, "cache_ttl"); ok {
		t.Fatalf("key must expire natively")
	}
}

func TestPingFailsWhenServerDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	s, _ := New(Config{Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1}), CloseClient: true})
	defer s.Close(context.Background())
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	mr.Close()
	if err := s.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error after server shutdown")
	}
}

func TestDelPrefixAcrossScanPages(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)
	for i := 0; i < 25; i++ {
		_ = mr.Set(fmt.Sprintf("cache_k%02d", i), "v")
	}
	_ = mr.Set("other", "keep")

	if err := s.DelPrefix(ctx, "cache_"); err != nil {
		t.Fatalf("DelPrefix: %v", err)
	}
	if keys := mr.Keys(); len(keys) != 1 || keys[0] != "other" {
		t.Fatalf("keys left: %v", keys)
	}
}
