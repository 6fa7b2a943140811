// Package config loads a tiercache deployment from YAML and opens the
// backends it names.
//
//	memory:
//	  max_size: 67108864
//	session:
//	  backend: bigcache   # memory | bigcache | ristretto | redis
//	local:
//	  backend: badger
//	  dir: ${TIERCACHE_DIR:-/var/lib/tiercache}/badger
//	structured:
//	  backend: sqlite
//	  path: ${TIERCACHE_DIR:-/var/lib/tiercache}/entries.db
//	redis:
//	  addr: ${REDIS_ADDR}
//	versions: redis
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/tiercache/eviction"
)

var (
	ErrNotFound      = errors.New("config: file not found")
	ErrInvalidFormat = errors.New("config: invalid format")
	ErrInvalid       = errors.New("config: invalid configuration")
	ErrMissingEnv    = errors.New("config: environment variable not set")
)

// Backend names accepted per tier.
const (
	BackendMemory    = "memory"
	BackendBigcache  = "bigcache"
	BackendRistretto = "ristretto"
	BackendRedis     = "redis"
	BackendBadger    = "badger"
	BackendSQLite    = "sqlite"
)

// File is the YAML document. Zero values fall through to the engine's
// defaults; sizes are bytes.
type File struct {
	DefaultTTL           time.Duration `yaml:"default_ttl"`
	CleanupInterval      time.Duration `yaml:"cleanup_interval"`
	CompressionThreshold int           `yaml:"compression_threshold"`
	Compression          string        `yaml:"compression"` // zstd | s2 | none
	BackendTimeout       time.Duration `yaml:"backend_timeout"`
	SyncPromotion        bool          `yaml:"sync_promotion"`

	Eviction  Eviction  `yaml:"eviction"`
	Heuristic Heuristic `yaml:"heuristic"`
	Pressure  Pressure  `yaml:"pressure"`

	MaxTrackedKeys   int           `yaml:"max_tracked_keys"`
	Versions         string        `yaml:"versions"` // local | redis
	VersionRetention time.Duration `yaml:"version_retention"`

	Memory     Memory     `yaml:"memory"`
	Session    Session    `yaml:"session"`
	Local      Local      `yaml:"local"`
	Structured Structured `yaml:"structured"`
	Redis      Redis      `yaml:"redis"`

	Log Log `yaml:"log"`
}

type Eviction struct {
	Policy   string  `yaml:"policy"`
	Fraction float64 `yaml:"fraction"`
}

type Heuristic struct {
	LargeEntrySize  int64         `yaml:"large_entry_size"`
	MediumEntrySize int64         `yaml:"medium_entry_size"`
	LongTTL         time.Duration `yaml:"long_ttl"`
}

type Pressure struct {
	Limit    uint64        `yaml:"limit"`
	Interval time.Duration `yaml:"interval"`
}

type Memory struct {
	MaxSize int64 `yaml:"max_size"`
}

type Session struct {
	Backend   string    `yaml:"backend"`
	MaxSize   int64     `yaml:"max_size"`
	Bigcache  Bigcache  `yaml:"bigcache"`
	Ristretto Ristretto `yaml:"ristretto"`
}

type Bigcache struct {
	LifeWindow         time.Duration `yaml:"life_window"`
	CleanWindow        time.Duration `yaml:"clean_window"`
	Shards             int           `yaml:"shards"`
	HardMaxCacheSizeMB int           `yaml:"hard_max_cache_size_mb"`
}

type Ristretto struct {
	NumCounters int64 `yaml:"num_counters"`
	MaxCost     int64 `yaml:"max_cost"`
	Metrics     bool  `yaml:"metrics"`
}

type Local struct {
	Backend    string        `yaml:"backend"` // "" disables the tier
	Dir        string        `yaml:"dir"`
	InMemory   bool          `yaml:"in_memory"`
	SyncWrites bool          `yaml:"sync_writes"`
	GCInterval time.Duration `yaml:"gc_interval"`
	MaxSize    int64         `yaml:"max_size"`
}

type Structured struct {
	Backend     string `yaml:"backend"` // "" disables the tier
	Path        string `yaml:"path"`
	DSN         string `yaml:"dsn"` // overrides path
	Table       string `yaml:"table"`
	JournalMode string `yaml:"journal_mode"`
	BusyTimeout int    `yaml:"busy_timeout_ms"`
	MaxSize     int64  `yaml:"max_size"`
}

// Redis is the connection shared by a redis Session tier and redis versions.
type Redis struct {
	Addr       string        `yaml:"addr"`
	Addrs      []string      `yaml:"addrs"` // cluster
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	Namespace  string        `yaml:"namespace"`
	VersionTTL time.Duration `yaml:"version_ttl"`
}

func (r Redis) configured() bool { return r.Addr != "" || len(r.Addrs) > 0 }

type Log struct {
	Level       string `yaml:"level"` // debug | info | warn | error
	Development bool   `yaml:"development"`
}

// Option tunes Load.
type Option func(*loader)

type loader struct {
	strictEnv bool
}

// WithStrictEnv fails Load when a referenced variable is unset and has no
// ${VAR:-default}.
func WithStrictEnv() Option { return func(l *loader) { l.strictEnv = true } }

// LoadFile reads and validates a YAML file.
func LoadFile(path string, opts ...Option) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Load(bytes.NewReader(data), opts...)
}

// Load parses YAML from r after expanding ${VAR} references. Unknown keys
// are rejected.
func Load(r io.Reader, opts ...Option) (*File, error) {
	l := &loader{}
	for _, o := range opts {
		o(l)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded, err := expandEnv(string(raw), l.strictEnv)
	if err != nil {
		return nil, err
	}

	f := &File{}
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// expandEnv replaces ${VAR}, $VAR and ${VAR:-default}.
func expandEnv(s string, strict bool) (string, error) {
	var missing []string
	out := os.Expand(s, func(name string) string {
		def, hasDef := "", false
		if i := strings.Index(name, ":-"); i >= 0 {
			name, def, hasDef = name[:i], name[i+2:], true
		}
		if v, ok := os.LookupEnv(name); ok && v != "" {
			return v
		}
		if !hasDef && strict {
			missing = append(missing, name)
		}
		return def
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(missing, ", "))
	}
	return out, nil
}

// Validate checks names and ranges; it does not touch any backend.
func (f *File) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if _, err := eviction.ParseKind(f.Eviction.Policy); err != nil {
		bad("eviction.policy: %v", err)
	}
	if f.Eviction.Fraction < 0 || f.Eviction.Fraction > 1 {
		bad("eviction.fraction %v outside [0,1]", f.Eviction.Fraction)
	}
	switch strings.ToLower(f.Compression) {
	case "", "zstd", "s2", "none":
	default:
		bad("compression %q (want zstd, s2 or none)", f.Compression)
	}

	switch f.Session.Backend {
	case "", BackendMemory, BackendBigcache, BackendRistretto:
	case BackendRedis:
		if !f.Redis.configured() {
			bad("session.backend redis needs redis.addr or redis.addrs")
		}
	default:
		bad("session.backend %q", f.Session.Backend)
	}
	switch f.Local.Backend {
	case "":
	case BackendBadger:
		if f.Local.Dir == "" && !f.Local.InMemory {
			bad("local.dir is required unless local.in_memory is set")
		}
	default:
		bad("local.backend %q", f.Local.Backend)
	}
	switch f.Structured.Backend {
	case "":
	case BackendSQLite:
		if f.Structured.Path == "" && f.Structured.DSN == "" {
			bad("structured.path or structured.dsn is required")
		}
	default:
		bad("structured.backend %q", f.Structured.Backend)
	}
	switch f.Versions {
	case "", "local":
	case "redis":
		if !f.Redis.configured() {
			bad("versions redis needs redis.addr or redis.addrs")
		}
	default:
		bad("versions %q (want local or redis)", f.Versions)
	}
	return errors.Join(errs...)
}
