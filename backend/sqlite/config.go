// Package sqlite backs the Structured tier with a SQLite table indexed by
// expiry, so expired rows can be swept with one range delete.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Config configures the SQLite store.
type Config struct {
	// DSN is the data source name (e.g. "file:cache.db?mode=rwc").
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// JournalMode sets the SQLite journal mode (e.g. "WAL").
	JournalMode string

	// BusyTimeout is the lock wait in milliseconds.
	BusyTimeout int

	// Table holds the entries; default "tiercache_entries".
	Table string
}

// Option configures the store.
type Option func(*Config)

func WithDSN(dsn string) Option {
	return func(c *Config) { c.DSN = dsn }
}

func WithJournalMode(mode string) Option {
	return func(c *Config) { c.JournalMode = mode }
}

func WithBusyTimeout(ms int) Option {
	return func(c *Config) { c.BusyTimeout = ms }
}

func WithTable(name string) Option {
	return func(c *Config) { c.Table = name }
}

// DefaultConfig returns defaults for a file database at path.
func DefaultConfig(path string) Config {
	return Config{
		DSN:             "file:" + path + "?mode=rwc",
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
		JournalMode:     "WAL",
		BusyTimeout:     5000,
	}
}

var (
	ErrOpen      = errors.New("sqlite: open failed")
	ErrMigration = errors.New("sqlite: migration failed")
)

const defaultTable = "tiercache_entries"

func openDB(cfg Config) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		return nil, errors.Join(ErrOpen, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	var pragmas []string
	if cfg.JournalMode != "" {
		pragmas = append(pragmas, "PRAGMA journal_mode="+cfg.JournalMode)
	}
	if cfg.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout))
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, errors.Join(ErrMigration, err)
		}
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Join(ErrOpen, err)
	}
	return db, nil
}
