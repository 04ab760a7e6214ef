// Package storage defines the key/value store the index layer runs on and
// ships two local implementations of it.
//
// The store holds opaque values under (bucket, key) and can run a
// map/reduce job over one bucket: every key is pushed through a key filter
// pipeline on the store side and the surviving keys are returned. Keys and
// bucket names cross the job boundary in their percent-escaped wire form,
// the way an HTTP key/value store hands them to its filters.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get and Delete when the key does not exist
	ErrNotFound = errors.New("key not found")

	// ErrInvalidName is returned for empty keys and unusable bucket names
	ErrInvalidName = errors.New("invalid bucket or key name")

	// ErrUnknownFilter is returned for key filters the store does not implement
	ErrUnknownFilter = errors.New("unknown key filter")

	// ErrInvalidFilter is returned for key filters with bad arguments
	ErrInvalidFilter = errors.New("invalid key filter")

	// ErrFilterFailed is returned when a key filter cannot process a key
	ErrFilterFailed = errors.New("key filter failed")

	// ErrUnsupportedPhase is returned for map/reduce phases other than the
	// identity reduce
	ErrUnsupportedPhase = errors.New("unsupported map/reduce phase")
)

// Store is the interface for bucket/key storage with server-side scans
type Store interface {
	// Get returns the value stored under bucket/key or ErrNotFound
	Get(ctx context.Context, bucket, key string) ([]byte, error)

	// Put creates or overwrites bucket/key
	Put(ctx context.Context, bucket, key string, value []byte) error

	// Delete removes bucket/key, returning ErrNotFound if it was absent
	Delete(ctx context.Context, bucket, key string) error

	// MapReduce runs a key-filtered job over one bucket
	MapReduce(ctx context.Context, job *Job) ([]Match, error)

	// Close releases the store
	Close() error
}

// Match is one result of a map/reduce job. Both fields are in wire form and
// must be unescaped by the caller.
type Match struct {
	Bucket string
	Key    string
}
