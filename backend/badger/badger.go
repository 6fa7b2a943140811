package badger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/unkn0wn-root/tiercache/backend"
)

type Store struct {
	db        *badger.DB
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var (
	_ backend.Backend = (*Store)(nil)
	_ backend.Pinger  = (*Store)(nil)
)

var errClosed = errors.New("badger: store closed")

func New(cfg Config, opts ...Option) (*Store, error) {
	for _, opt := range opts {
		opt(&cfg)
	}
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, stop: make(chan struct{})}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		ratio := cfg.GCDiscardRatio
		if ratio <= 0 || ratio >= 1 {
			ratio = 0.5
		}
		s.startGC(cfg.GCInterval, ratio)
	}
	return s, nil
}

func (s *Store) startGC(every time.Duration, ratio float64) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-t.C:
				// rewrite until badger reports nothing left to reclaim
				for s.db.RunValueLogGC(ratio) == nil {
				}
			}
		}
	}()
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// Set stores value. Badger TTLs have second granularity, so ttl is rounded
// up; the engine's own expiry check stays authoritative.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl.Truncate(time.Second) + time.Second)
		}
		return txn.SetEntry(e)
	})
}

func (s *Store) Del(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (s *Store) Scan(ctx context.Context, prefix string, fn func(string, []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(string(item.KeyCopy(nil)), v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) DelPrefix(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.DropPrefix([]byte(prefix))
}

func (s *Store) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errClosed
	}
	return nil
}

func (s *Store) Close(context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// DB exposes the underlying database.
func (s *Store) DB() *badger.DB { return s.db }
