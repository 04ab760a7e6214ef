package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore implements Store using BadgerDB
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens a BadgerDB-backed store at path. An empty path opens
// an in-memory store.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil // Disable BadgerDB logs

	// Index records are empty and primary bodies small JSON documents
	opts.ValueThreshold = 1 << 10 // 1KB - store small values in LSM tree
	opts.NumCompactors = 2

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &BadgerStore{db: db}, nil
}

// Get retrieves the value stored under bucket/key
func (s *BadgerStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkName(bucket, key); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(encodeStoreKey(bucket, key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", bucket, key, err)
	}
	return value, nil
}

// Put creates or overwrites bucket/key
func (s *BadgerStore) Put(ctx context.Context, bucket, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkName(bucket, key); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(encodeStoreKey(bucket, key), value)
	})
	if err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Delete removes bucket/key
func (s *BadgerStore) Delete(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkName(bucket, key); err != nil {
		return err
	}

	storeKey := encodeStoreKey(bucket, key)
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(storeKey); err != nil {
			return err
		}
		return txn.Delete(storeKey)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

// MapReduce runs a key-filtered job over one bucket
func (s *BadgerStore) MapReduce(ctx context.Context, job *Job) ([]Match, error) {
	return runJob(ctx, job, s.scanKeys)
}

// scanKeys walks the keys of bucket without fetching values
func (s *BadgerStore) scanKeys(ctx context.Context, bucket string, fn func(key string) error) error {
	start, end := bucketRange(bucket)

	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // KEY ONLY - no values!
		opts.Prefix = start

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(start); it.Valid(); it.Next() {
			storeKey := it.Item().Key()
			if bytes.Compare(storeKey, end) >= 0 {
				break
			}
			if err := fn(string(storeKey[len(start):])); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the store
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
