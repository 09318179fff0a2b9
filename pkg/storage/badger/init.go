package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/absmach/fledge/pkg/fl"
	"github.com/dgraph-io/badger/v4"
)

var (
	ErrDBConnection  = errors.New("badger database connection error")
	ErrDBQuery       = errors.New("database query error")
	ErrCreate        = errors.New("create error")
	ErrUpdate        = errors.New("update error")
	ErrDelete        = errors.New("delete error")
	ErrRoundNotFound = errors.New("round not found")
	ErrNotFound      = errors.New("not found")
)

type RoundRepository interface {
	Create(ctx context.Context, r fl.Round) error
	Get(ctx context.Context, id string) (fl.Round, error)
	List(ctx context.Context, offset, limit uint64) ([]fl.Round, uint64, error)
}

type Database struct {
	db *badger.DB
}

func NewDatabase(path string) (*Database, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	return &Database{db: db}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) get(key []byte) ([]byte, error) {
	var val []byte
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)

		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return val, nil
}

// setAll writes every pair in a single transaction.
func (d *Database) setAll(pairs ...[2][]byte) error {
	err := d.db.Update(func(txn *badger.Txn) error {
		for _, p := range pairs {
			if err := txn.Set(p[0], p[1]); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpdate, err)
	}

	return nil
}

func (d *Database) listWithPrefix(prefix []byte, offset, limit uint64) ([][]byte, error) {
	var items [][]byte
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		if limit > 0 {
			opts.PrefetchSize = int(min(limit, 100))
		}
		it := txn.NewIterator(opts)
		defer it.Close()

		skipped := uint64(0)
		count := uint64(0)

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if skipped < offset {
				skipped++

				continue
			}
			if count >= limit {
				break
			}

			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			items = append(items, val)
			count++
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return items, nil
}

func (d *Database) countWithPrefix(prefix []byte) (uint64, error) {
	count := uint64(0)
	err := d.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return count, nil
}
