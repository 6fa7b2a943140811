// Package badger backs a persistent tier with an embedded BadgerDB.
package badger

import (
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Config configures the BadgerDB store.
type Config struct {
	// Dir is the data directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps everything in RAM (tests).
	InMemory bool

	SyncWrites bool

	// ValueLogFileSize sets the size of value log files in bytes.
	ValueLogFileSize int64

	// GCDiscardRatio and GCInterval drive value-log garbage collection.
	// GCInterval 0 disables the GC loop.
	GCDiscardRatio float64
	GCInterval     time.Duration

	// Logger receives badger's internal logs; nil silences them.
	Logger badger.Logger
}

// Option configures the store.
type Option func(*Config)

func WithDir(dir string) Option {
	return func(c *Config) { c.Dir = dir }
}

func WithInMemory() Option {
	return func(c *Config) { c.InMemory = true }
}

func WithSyncWrites() Option {
	return func(c *Config) { c.SyncWrites = true }
}

func WithGCInterval(d time.Duration) Option {
	return func(c *Config) { c.GCInterval = d }
}

func WithGCDiscardRatio(r float64) Option {
	return func(c *Config) { c.GCDiscardRatio = r }
}

func WithLogger(l badger.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns defaults for an on-disk store at dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:              dir,
		ValueLogFileSize: 1 << 28,
		GCDiscardRatio:   0.5,
		GCInterval:       5 * time.Minute,
	}
}

var ErrOpen = errors.New("badger: open failed")

func openDB(cfg Config) (*badger.DB, error) {
	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.ValueLogFileSize > 0 && !cfg.InMemory {
		opts = opts.WithValueLogFileSize(cfg.ValueLogFileSize)
	}
	opts = opts.WithLogger(cfg.Logger)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Join(ErrOpen, err)
	}
	return db, nil
}
