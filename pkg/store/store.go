// Package store persists processed meshes in BadgerDB. It serves as the
// second tier behind the in-memory geometry cache so that results survive
// process restarts.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/chazu/kerf/pkg/kernel"
)

// ErrNotFound is returned by Get when no mesh is stored under a key.
var ErrNotFound = errors.New("store: mesh not found")

// keyPrefix namespaces mesh records inside the database.
var keyPrefix = []byte("mesh/")

// Config holds configuration for a Store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string `yaml:"path" toml:"path" json:"path"`
	// InMemory keeps everything in RAM. Useful for tests.
	InMemory bool `yaml:"in_memory" toml:"in_memory" json:"in_memory"`
	// SyncWrites fsyncs every write.
	SyncWrites bool `yaml:"sync_writes" toml:"sync_writes" json:"sync_writes"`
	// TTL expires records after the given duration. Zero keeps them forever.
	TTL time.Duration `yaml:"ttl" toml:"ttl" json:"ttl" validate:"gte=0"`
	// GCInterval runs value log GC periodically. Zero disables it.
	GCInterval time.Duration `yaml:"gc_interval" toml:"gc_interval" json:"gc_interval" validate:"gte=0"`

	// Logger receives badger's internal logging. Nil silences it.
	Logger *slog.Logger `yaml:"-" toml:"-" json:"-"`
}

// Enabled reports whether the config names a database.
func (c Config) Enabled() bool {
	return c.InMemory || c.Path != ""
}

// badgerLogger adapts slog.Logger to badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is a badger-backed mesh store. It is safe for concurrent use.
type Store struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger

	stopGC    chan struct{}
	gcDone    chan struct{}
	closeOnce sync.Once
}

// Open opens (or creates) the database described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("store: path is required for a persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("store: create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger database: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, ttl: cfg.TTL, logger: logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stopGC = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(cfg.GCInterval)
	}
	return s, nil
}

func (s *Store) runGC(interval time.Duration) {
	defer close(s.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(0.5)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("store: value log GC failed", "error", err)
			}
		}
	}
}

func recordKey(key string) []byte {
	return append(append([]byte{}, keyPrefix...), key...)
}

// Save stores m under key, replacing any previous record.
func (s *Store) Save(key string, m *kernel.Mesh) error {
	if m == nil || m.Released() {
		return fmt.Errorf("store: save %s: %w", key, kernel.ErrReleased)
	}
	val := encodeMesh(m)
	err := s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(recordKey(key), val)
		if s.ttl > 0 {
			e = e.WithTTL(s.ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("store: save %s: %w", key, err)
	}
	return nil
}

// Get returns the mesh stored under key or ErrNotFound.
func (s *Store) Get(key string) (*kernel.Mesh, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("store: get %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", key, err)
	}
	m, err := decodeMesh(val)
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", key, err)
	}
	return m, nil
}

// Load implements cache.Backing: a missing key is not an error.
func (s *Store) Load(key string) (*kernel.Mesh, bool, error) {
	m, err := s.Get(key)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return m, true, nil
}

// Delete removes the record under key. Deleting a missing key is a no-op.
func (s *Store) Delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(recordKey(key))
	})
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", key, err)
	}
	return nil
}

// Keys lists every stored key in byte order.
func (s *Store) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().KeyCopy(nil)
			keys = append(keys, string(k[len(keyPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: list keys: %w", err)
	}
	return keys, nil
}

// Clear removes every mesh record.
func (s *Store) Clear() error {
	if err := s.db.DropPrefix(keyPrefix); err != nil {
		return fmt.Errorf("store: clear: %w", err)
	}
	return nil
}

// Close stops background GC and closes the database.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.stopGC != nil {
			close(s.stopGC)
			<-s.gcDone
		}
		err = s.db.Close()
	})
	return err
}
