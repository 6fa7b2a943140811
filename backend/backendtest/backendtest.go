// Package backendtest is a conformance suite shared by every backend.Backend
// implementation's tests.
package backendtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/unkn0wn-root/tiercache/backend"
)

// Options toggles checks for capabilities a backend does not have.
type Options struct {
	// NoScan is set for media that cannot enumerate keys.
	NoScan bool
	// ClearsAll is set when DelPrefix wipes the whole medium.
	ClearsAll bool
}

// Run exercises b. The backend must start empty and is not closed by Run.
func Run(t *testing.T, b backend.Backend, opts Options) {
	t.Helper()
	ctx := context.Background()

	t.Run("miss", func(t *testing.T) {
		v, ok, err := b.Get(ctx, "cache_absent")
		if err != nil || ok || v != nil {
			t.Fatalf("Get miss: v=%v ok=%v err=%v", v, ok, err)
		}
	})

	t.Run("set-get-overwrite", func(t *testing.T) {
		if err := b.Set(ctx, "cache_k1", []byte("v1"), 0); err != nil {
			t.Fatalf("Set: %v", err)
		}
		mustGet(t, b, "cache_k1", "v1")
		if err := b.Set(ctx, "cache_k1", []byte("v2"), time.Hour); err != nil {
			t.Fatalf("Set overwrite: %v", err)
		}
		mustGet(t, b, "cache_k1", "v2")
	})

	t.Run("binary-transparent", func(t *testing.T) {
		raw := []byte{0, 1, 2, 0xff, 0xfe, 0}
		if err := b.Set(ctx, "cache_bin", raw, 0); err != nil {
			t.Fatalf("Set: %v", err)
		}
		got, ok, err := b.Get(ctx, "cache_bin")
		if err != nil || !ok || !bytes.Equal(got, raw) {
			t.Fatalf("binary Get: %x ok=%v err=%v", got, ok, err)
		}
	})

	t.Run("del", func(t *testing.T) {
		if err := b.Set(ctx, "cache_gone", []byte("x"), 0); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if err := b.Del(ctx, "cache_gone"); err != nil {
			t.Fatalf("Del: %v", err)
		}
		if _, ok, _ := b.Get(ctx, "cache_gone"); ok {
			t.Fatalf("key still present after Del")
		}
		if err := b.Del(ctx, "cache_gone"); err != nil {
			t.Fatalf("Del of missing key must not fail: %v", err)
		}
	})

	if !opts.NoScan {
		t.Run("scan-prefix", func(t *testing.T) {
			for i := 0; i < 3; i++ {
				if err := b.Set(ctx, fmt.Sprintf("cache_scan%d", i), []byte{byte(i)}, 0); err != nil {
					t.Fatalf("Set: %v", err)
				}
			}
			if err := b.Set(ctx, "other_scan", []byte("foreign"), 0); err != nil {
				t.Fatalf("Set foreign: %v", err)
			}
			var seen []string
			err := b.Scan(ctx, "cache_scan", func(k string, v []byte) error {
				seen = append(seen, k)
				return nil
			})
			if err != nil {
				t.Fatalf("Scan: %v", err)
			}
			sort.Strings(seen)
			want := []string{"cache_scan0", "cache_scan1", "cache_scan2"}
			if fmt.Sprint(seen) != fmt.Sprint(want) {
				t.Fatalf("Scan saw %v want %v", seen, want)
			}

			stop := errors.New("stop")
			n := 0
			err = b.Scan(ctx, "cache_scan", func(string, []byte) error { n++; return stop })
			if !errors.Is(err, stop) || n != 1 {
				t.Fatalf("Scan must stop on callback error: err=%v n=%d", err, n)
			}
		})
	}

	t.Run("del-prefix", func(t *testing.T) {
		_ = b.Set(ctx, "cache_p1", []byte("1"), 0)
		_ = b.Set(ctx, "cache_p2", []byte("2"), 0)
		_ = b.Set(ctx, "keep_me", []byte("3"), 0)
		if err := b.DelPrefix(ctx, "cache_"); err != nil {
			t.Fatalf("DelPrefix: %v", err)
		}
		for _, k := range []string{"cache_p1", "cache_p2", "cache_k1"} {
			if _, ok, _ := b.Get(ctx, k); ok {
				t.Fatalf("%s survived DelPrefix", k)
			}
		}
		if !opts.ClearsAll {
			mustGet(t, b, "keep_me", "3")
		}
	})

	if p, ok := b.(backend.Pinger); ok {
		t.Run("ping", func(t *testing.T) {
			if err := p.Ping(ctx); err != nil {
				t.Fatalf("Ping: %v", err)
			}
		})
	}
}

func mustGet(t *testing.T, b backend.Backend, key, want string) {
	t.Helper()
	v, ok, err := b.Get(context.Background(), key)
	if err != nil || !ok {
		t.Fatalf("Get %s: ok=%v err=%v", key, ok, err)
	}
	if string(v) != want {
		t.Fatalf("Get %s = %q want %q", key, v, want)
	}
}
