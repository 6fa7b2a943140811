package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "github.com/mattn/go-sqlite3" // driver

	"github.com/unkn0wn-root/tiercache/backend"
	"github.com/unkn0wn-root/tiercache/internal/util"
)

type Store struct {
	db    *sql.DB
	table string
}

var (
	_ backend.Backend = (*Store)(nil)
	_ backend.Pinger  = (*Store)(nil)
	_ backend.Sweeper = (*Store)(nil)
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func New(cfg Config, opts ...Option) (*Store, error) {
	for _, opt := range opts {
		opt(&cfg)
	}
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("sqlite: invalid table name %q", table)
	}
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, table: table}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			size INTEGER NOT NULL,
			expires_at INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_expires_at ON %[1]s(expires_at);
	`, s.table)
	if _, err := s.db.Exec(schema); err != nil {
		return errors.Join(ErrMigration, err)
	}
	return nil
}

// bounds turns a prefix into a half-open key range. LIKE is unusable here:
// the cache prefix itself contains '_'.
func bounds(prefix string) (lo, hi string, open bool) {
	hi = util.PrefixEnd(prefix)
	return prefix, hi, hi == ""
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		v   []byte
		exp sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT value, expires_at FROM "+s.table+" WHERE key = ?", key,
	).Scan(&v, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if exp.Valid && exp.Int64 <= time.Now().UnixNano() {
		_, _ = s.db.ExecContext(ctx, "DELETE FROM "+s.table+" WHERE key = ? AND expires_at = ?", key, exp.Int64)
		return nil, false, nil
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := time.Now()
	var exp sql.NullInt64
	if ttl > 0 {
		exp = sql.NullInt64{Int64: now.Add(ttl).UnixNano(), Valid: true}
	}
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+s.table+` (key, value, size, expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   value = excluded.value,
		   size = excluded.size,
		   expires_at = excluded.expires_at,
		   updated_at = excluded.updated_at`,
		key, value, len(value), exp, now.UnixNano(), now.UnixNano(),
	)
	return err
}

func (s *Store) Del(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM "+s.table+" WHERE key = ?", key)
	return err
}

func (s *Store) Scan(ctx context.Context, prefix string, fn func(string, []byte) error) error {
	lo, hi, open := bounds(prefix)
	now := time.Now().UnixNano()

	q := "SELECT key, value FROM " + s.table + " WHERE key >= ? AND (expires_at IS NULL OR expires_at > ?)"
	args := []any{lo, now}
	if !open {
		q += " AND key < ?"
		args = append(args, hi)
	}
	rows, err := s.db.QueryContext(ctx, q+" ORDER BY key", args...)
	if err != nil {
		return err
	}

	// drain first: fn may write back to this table and a single
	// connection would deadlock against the open cursor
	type kv struct {
		k string
		v []byte
	}
	var batch []kv
	for rows.Next() {
		var e kv
		if err := rows.Scan(&e.k, &e.v); err != nil {
			_ = rows.Close()
			return err
		}
		batch = append(batch, e)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, e := range batch {
		if err := fn(e.k, e.v); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) DelPrefix(ctx context.Context, prefix string) error {
	lo, hi, open := bounds(prefix)
	if open {
		_, err := s.db.ExecContext(ctx, "DELETE FROM "+s.table+" WHERE key >= ?", lo)
		return err
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM "+s.table+" WHERE key >= ? AND key < ?", lo, hi)
	return err
}

// SweepExpired deletes rows under prefix whose expiry is at or before now
// and returns their keys.
func (s *Store) SweepExpired(ctx context.Context, prefix string, now time.Time) ([]string, error) {
	lo, hi, open := bounds(prefix)
	cond := "key >= ? AND expires_at IS NOT NULL AND expires_at <= ?"
	args := []any{lo, now.UnixNano()}
	if !open {
		cond += " AND key < ?"
		args = append(args, hi)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, "SELECT key FROM "+s.table+" WHERE "+cond, args...)
	if err != nil {
		return nil, err
	}
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			_ = rows.Close()
			return nil, err
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(keys) == 0 {
		return nil, nil
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+s.table+" WHERE "+cond, args...); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close(context.Context) error {
	return s.db.Close()
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }
