package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// memDirname is the directory name used inside the in-memory filesystem
const memDirname = "kvindex"

// PebbleStore implements Store using Pebble
type PebbleStore struct {
	db *pebble.DB
}

// NewPebbleStore opens a Pebble-backed store at path. An empty path opens
// an in-memory store.
func NewPebbleStore(path string) (*PebbleStore, error) {
	opts := &pebble.Options{}
	if path == "" {
		opts.FS = vfs.NewMem()
		path = memDirname
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

// Get retrieves the value stored under bucket/key
func (s *PebbleStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkName(bucket, key); err != nil {
		return nil, err
	}

	data, closer, err := s.db.Get(encodeStoreKey(bucket, key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", bucket, key, err)
	}
	defer closer.Close()

	value := make([]byte, len(data))
	copy(value, data)
	return value, nil
}

// Put creates or overwrites bucket/key
func (s *PebbleStore) Put(ctx context.Context, bucket, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkName(bucket, key); err != nil {
		return err
	}

	if err := s.db.Set(encodeStoreKey(bucket, key), value, pebble.Sync); err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Delete removes bucket/key. Pebble deletes blindly, so existence is
// checked first to report ErrNotFound.
func (s *PebbleStore) Delete(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkName(bucket, key); err != nil {
		return err
	}

	storeKey := encodeStoreKey(bucket, key)
	_, closer, err := s.db.Get(storeKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", bucket, key, err)
	}
	closer.Close()

	if err := s.db.Delete(storeKey, pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

// MapReduce runs a key-filtered job over one bucket
func (s *PebbleStore) MapReduce(ctx context.Context, job *Job) ([]Match, error) {
	return runJob(ctx, job, s.scanKeys)
}

// scanKeys walks the keys of bucket
func (s *PebbleStore) scanKeys(ctx context.Context, bucket string, fn func(key string) error) error {
	start, end := bucketRange(bucket)

	iter := s.db.NewIter(&pebble.IterOptions{
		LowerBound: start,
		UpperBound: end,
	})

	var err error
	for valid := iter.First(); valid; valid = iter.Next() {
		if err = fn(string(iter.Key()[len(start):])); err != nil {
			break
		}
	}
	if closeErr := iter.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Close closes the store
func (s *PebbleStore) Close() error {
	return s.db.Close()
}
