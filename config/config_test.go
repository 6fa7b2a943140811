package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/eviction"
)

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TC_TEST_DIR", "/data/cache")
	doc := `
default_ttl: 90s
compression: s2
eviction:
  policy: lfu
  fraction: 0.5
local:
  backend: badger
  dir: ${TC_TEST_DIR}/badger
structured:
  backend: sqlite
  path: ${TC_TEST_UNSET:-/tmp}/entries.db
`
	f, err := Load(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.DefaultTTL != 90*time.Second {
		t.Fatalf("default_ttl=%v", f.DefaultTTL)
	}
	if f.Local.Dir != "/data/cache/badger" {
		t.Fatalf("local.dir=%q", f.Local.Dir)
	}
	if f.Structured.Path != "/tmp/entries.db" {
		t.Fatalf("structured.path=%q", f.Structured.Path)
	}
	if f.Eviction.Policy != "lfu" || f.Eviction.Fraction != 0.5 {
		t.Fatalf("eviction=%+v", f.Eviction)
	}
}

func TestLoadEmptyDocument(t *testing.T) {
	f, err := Load(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Session.Backend != "" || f.Local.Backend != "" {
		t.Fatalf("unexpected backends: %+v", f)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(strings.NewReader("memroy:\n  max_size: 10\n"))
	if !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("want ErrInvalidFormat, got %v", err)
	}
}

func TestStrictEnv(t *testing.T) {
	doc := "redis:\n  addr: ${TC_TEST_MISSING}\n"
	if _, err := Load(strings.NewReader(doc), WithStrictEnv()); !errors.Is(err, ErrMissingEnv) {
		t.Fatalf("want ErrMissingEnv, got %v", err)
	}
	if _, err := Load(strings.NewReader(doc)); err != nil {
		t.Fatalf("lenient Load: %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]File{
		"policy":      {Eviction: Eviction{Policy: "random"}},
		"fraction":    {Eviction: Eviction{Fraction: 2}},
		"compression": {Compression: "lz4"},
		"session":     {Session: Session{Backend: "memcached"}},
		"redis addr":  {Session: Session{Backend: BackendRedis}},
		"local dir":   {Local: Local{Backend: BackendBadger}},
		"sqlite path": {Structured: Structured{Backend: BackendSQLite}},
		"versions":    {Versions: "etcd"},
	}
	for name, f := range cases {
		if err := f.Validate(); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: want ErrInvalid, got %v", name, err)
		}
	}
	ok := File{
		Session:    Session{Backend: BackendBigcache},
		Local:      Local{Backend: BackendBadger, InMemory: true},
		Structured: Structured{Backend: BackendSQLite, DSN: "file::memory:"},
	}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tiercache.yaml")
	if err := os.WriteFile(p, []byte("memory:\n  max_size: 2048\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	f, err := LoadFile(p)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if f.Memory.MaxSize != 2048 {
		t.Fatalf("memory.max_size=%d", f.Memory.MaxSize)
	}
}

func TestBuildOpensDurableTiers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	f := &File{
		CleanupInterval: -1,
		Compression:     "none",
		Eviction:        Eviction{Policy: "fifo"},
		Memory:          Memory{MaxSize: 4096},
		Session:         Session{Backend: BackendBigcache},
		Local:           Local{Backend: BackendBadger, InMemory: true},
		Structured:      Structured{Backend: BackendSQLite, Path: filepath.Join(dir, "entries.db")},
	}
	o, err := Build(f, tiercache.Options[[]byte]{Codec: codec.Bytes{}, SyncPromotion: true})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if o.EvictionPolicy != eviction.FIFO || o.MaxMemorySize != 4096 {
		t.Fatalf("options not mapped: policy=%v mem=%d", o.EvictionPolicy, o.MaxMemorySize)
	}
	for _, tier := range []tiercache.TierOptions{o.Session, o.Local, o.Structured} {
		if tier.Backend == nil || tier.InitErr != nil {
			t.Fatalf("tier not opened: %+v", tier)
		}
	}

	c, err := tiercache.New(o)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close(ctx)

	if h := c.HealthCheck(ctx); h.Status != tiercache.StatusHealthy {
		t.Fatalf("health: %+v", h)
	}
	if !c.Set(ctx, "doc", []byte("payload"), tiercache.SetOptions{Level: tiercache.LevelStructured}) {
		t.Fatalf("Set to structured failed")
	}
	if v, ok := c.Get(ctx, "doc", tiercache.GetOptions{NoPromote: true}); !ok || string(v) != "payload" {
		t.Fatalf("Get: ok=%v v=%q", ok, v)
	}
	st, _ := c.Stats().Tier(tiercache.LevelStructured)
	if st.Entries != 1 || !st.Persistent {
		t.Fatalf("structured stats: %+v", st)
	}
}

func TestBuildFailedBackendLeavesTierDown(t *testing.T) {
	ctx := context.Background()
	f := &File{
		CleanupInterval: -1,
		Session:         Session{Backend: BackendRistretto}, // zero sizes are rejected
	}
	o, err := Build(f, tiercache.Options[string]{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if o.Session.InitErr == nil {
		t.Fatalf("expected InitErr for session tier")
	}
	c, err := tiercache.New(o)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close(ctx)

	if h := c.HealthCheck(ctx); h.Status != tiercache.StatusDegraded {
		t.Fatalf("status=%s want degraded", h.Status)
	}
	if !c.Set(ctx, "k", "v") {
		t.Fatalf("memory tier should still serve")
	}
}

func TestBuildSharesRedisClient(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	f := &File{
		CleanupInterval: -1,
		Session:         Session{Backend: BackendRedis},
		Redis:           Redis{Addr: mr.Addr(), Namespace: "test"},
		Versions:        "redis",
	}
	o, err := Build(f, tiercache.Options[string]{Codec: codec.String{}, SyncPromotion: true})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	c, err := tiercache.New(o)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !c.Set(ctx, "k", "v", tiercache.SetOptions{Level: tiercache.LevelSession}) {
		t.Fatalf("Set failed")
	}
	if !mr.Exists("cache_k") {
		t.Fatalf("entry not written to redis; keys=%v", mr.Keys())
	}
	if v, err := mr.Get("ver:test:k"); err != nil || v != "1" {
		t.Fatalf("version key: %q %v", v, err)
	}
	if err := c.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestBadgerLoggerRoutesLevels(t *testing.T) {
	rec := &recLogger{}
	l := badgerLogger{rec}
	l.Errorf("disk %s\n", "full")
	l.Infof("compaction done")
	if len(rec.lines) != 2 || rec.lines[0] != "error:disk full" || rec.lines[1] != "debug:compaction done" {
		t.Fatalf("lines=%v", rec.lines)
	}
}

type recLogger struct{ lines []string }

func (r *recLogger) Debug(m string, _ tiercache.Fields) { r.lines = append(r.lines, "debug:"+m) }
func (r *recLogger) Info(m string, _ tiercache.Fields)  { r.lines = append(r.lines, "info:"+m) }
func (r *recLogger) Warn(m string, _ tiercache.Fields)  { r.lines = append(r.lines, "warn:"+m) }
func (r *recLogger) Error(m string, _ tiercache.Fields) { r.lines = append(r.lines, "error:"+m) }

func TestCloseBackendsReleasesDurableTiers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	f := &File{
		CleanupInterval: -1,
		Local:           Local{Backend: BackendBadger, Dir: filepath.Join(dir, "badger")},
		Structured:      Structured{Backend: BackendSQLite, Path: filepath.Join(dir, "entries.db")},
	}
	o, err := Build(f, tiercache.Options[string]{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if o.Local.InitErr != nil || o.Structured.InitErr != nil {
		t.Fatalf("tiers not opened: local=%v structured=%v", o.Local.InitErr, o.Structured.InitErr)
	}

	held, err := Build(f, tiercache.Options[string]{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if held.Local.InitErr == nil {
		t.Fatalf("badger directory opened twice")
	}
	_ = CloseBackends(ctx, held)

	if err := CloseBackends(ctx, o); err != nil {
		t.Fatalf("CloseBackends: %v", err)
	}
	again, err := Build(f, tiercache.Options[string]{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer CloseBackends(ctx, again)
	if again.Local.InitErr != nil {
		t.Fatalf("badger directory still locked: %v", again.Local.InitErr)
	}
}
