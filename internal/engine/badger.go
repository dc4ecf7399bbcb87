package engine

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	core "github.com/galyarder/galyarder-store/pkg/engine"
)

const defaultBadgerValueLogFileSize = 64 << 20 // 64MB

type badgerConfig struct {
	inMemory         bool
	valueLogFileSize int64
}

// BadgerOption customizes how the Badger cache is opened.
type BadgerOption func(*badgerConfig) error

// WithInMemory keeps the Badger database entirely in memory (tests, ephemeral devices).
func WithInMemory() BadgerOption {
	return func(cfg *badgerConfig) error {
		cfg.inMemory = true
		return nil
	}
}

// WithValueLogFileSize sets max bytes per value log file.
func WithValueLogFileSize(sizeBytes int64) BadgerOption {
	return func(cfg *badgerConfig) error {
		if sizeBytes <= 0 {
			return fmt.Errorf("badger value log file size must be > 0, got %d", sizeBytes)
		}
		cfg.valueLogFileSize = sizeBytes
		return nil
	}
}

// BadgerCache is a LocalCache on an embedded Badger database.
type BadgerCache struct {
	db *badger.DB
}

// OpenBadgerCache opens (or creates) a Badger-backed cache at dir.
func OpenBadgerCache(dir string, options ...BadgerOption) (*BadgerCache, error) {
	cfg := badgerConfig{valueLogFileSize: defaultBadgerValueLogFileSize}
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(&cfg); err != nil {
			return nil, err
		}
	}

	opts := badger.DefaultOptions(dir)
	if cfg.inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithValueLogFileSize(cfg.valueLogFileSize)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}
	return &BadgerCache{db: db}, nil
}

func (c *BadgerCache) Get(key string) ([]byte, error) {
	var out []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, core.ErrKeyNotFound
	}
	return out, err
}

func (c *BadgerCache) Set(key string, val []byte) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
}

func (c *BadgerCache) Delete(key string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (c *BadgerCache) Keys() ([]string, error) {
	var keys []string
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, err
}

// Close flushes and closes the database.
func (c *BadgerCache) Close() error {
	return c.db.Close()
}
