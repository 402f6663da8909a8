package prefs

import (
	"errors"
	"fmt"
	"os"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

const keyPrefix = "pref:"

// BadgerStore keeps flags in a BadgerDB directory.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) the store at dir. With inMemory set the
// directory is ignored and nothing touches disk.
func OpenBadger(dir string, inMemory bool, log *zap.Logger) (*BadgerStore, error) {
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create prefs directory: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}

	if log == nil {
		log = zap.NewNop()
	}
	opts = opts.WithLogger(badgerLogger{log.Named("badger").Sugar()}).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open prefs store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) GetBool(key string, def bool) (bool, error) {
	value := def
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			value = len(v) == 1 && v[0] == 1
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("failed to read pref %q: %w", key, err)
	}
	return value, nil
}

func (s *BadgerStore) SetBool(key string, value bool) error {
	b := byte(0)
	if value {
		b = 1
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+key), []byte{b})
	})
	if err != nil {
		return fmt.Errorf("failed to write pref %q: %w", key, err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// badgerLogger adapts zap to badger.Logger.
type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.Warnf(format, args...)
}
