package storage

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openStores returns one fresh in-memory store per backend
func openStores(t *testing.T) map[string]Store {
	t.Helper()

	badgerStore, err := NewBadgerStore("")
	require.NoError(t, err)
	pebbleStore, err := NewPebbleStore("")
	require.NoError(t, err)

	stores := map[string]Store{
		"badger": badgerStore,
		"pebble": pebbleStore,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, s := range openStores(t) {
		s := s
		t.Run(name, func(t *testing.T) { fn(t, s) })
	}
}

func matchKeys(matches []Match) []string {
	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		keys = append(keys, m.Key)
	}
	sort.Strings(keys)
	return keys
}

func TestStoreGetPutDelete(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, s Store) {
		_, err := s.Get(ctx, "test", "p_key1")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.Put(ctx, "test", "p_key1", []byte(`{"field1":3}`)))
		value, err := s.Get(ctx, "test", "p_key1")
		require.NoError(t, err)
		assert.Equal(t, `{"field1":3}`, string(value))

		// Overwrite
		require.NoError(t, s.Put(ctx, "test", "p_key1", []byte(`{"field1":4}`)))
		value, err = s.Get(ctx, "test", "p_key1")
		require.NoError(t, err)
		assert.Equal(t, `{"field1":4}`, string(value))

		// Empty values are allowed; index records carry none
		require.NoError(t, s.Put(ctx, "idx=test=p=field1", "key1/4", nil))
		value, err = s.Get(ctx, "idx=test=p=field1", "key1/4")
		require.NoError(t, err)
		assert.Empty(t, value)

		require.NoError(t, s.Delete(ctx, "test", "p_key1"))
		_, err = s.Get(ctx, "test", "p_key1")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, "test", "p_key1"), ErrNotFound)
	})
}

func TestStoreBucketsAreDisjoint(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, s Store) {
		require.NoError(t, s.Put(ctx, "a", "k", []byte("1")))
		require.NoError(t, s.Put(ctx, "ab", "k", []byte("2")))

		value, err := s.Get(ctx, "a", "k")
		require.NoError(t, err)
		assert.Equal(t, "1", string(value))

		matches, err := s.MapReduce(ctx, NewJob("a"))
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, Match{Bucket: "a", Key: "k"}, matches[0])
	})
}

func TestStoreInvalidNames(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, s Store) {
		assert.ErrorIs(t, s.Put(ctx, "", "k", nil), ErrInvalidName)
		assert.ErrorIs(t, s.Put(ctx, "b", "", nil), ErrInvalidName)
		assert.ErrorIs(t, s.Put(ctx, "b\x00c", "k", nil), ErrInvalidName)
		_, err := s.Get(ctx, "", "k")
		assert.ErrorIs(t, err, ErrInvalidName)
		assert.ErrorIs(t, s.Delete(ctx, "b", ""), ErrInvalidName)

		_, err = s.MapReduce(ctx, NewJob(""))
		assert.ErrorIs(t, err, ErrInvalidName)
		_, err = s.MapReduce(ctx, NewJob("bad%zz"))
		assert.ErrorIs(t, err, ErrInvalidName)
	})
}

func TestStoreMapReduce(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, s Store) {
		bucket := "idx=test=p=field1"
		for _, key := range []string{"key1/3", "key2/3", "key3/4", "key4/10"} {
			require.NoError(t, s.Put(ctx, bucket, key, nil))
		}

		job := NewJob("idx%3Dtest%3Dp%3Dfield1",
			Filter("urldecode"),
			Filter("tokenize", "/", 2),
			Filter("string_to_int"),
			Filter("less_than", 4),
		).Reduce(IdentityReduce())

		matches, err := s.MapReduce(ctx, job)
		require.NoError(t, err)
		assert.Equal(t, []string{"key1%2F3", "key2%2F3"}, matchKeys(matches))
		for _, m := range matches {
			assert.Equal(t, "idx%3Dtest%3Dp%3Dfield1", m.Bucket)
		}

		// No filters returns every key
		matches, err = s.MapReduce(ctx, NewJob("idx%3Dtest%3Dp%3Dfield1"))
		require.NoError(t, err)
		assert.Len(t, matches, 4)

		// Unknown bucket is empty, not an error
		matches, err = s.MapReduce(ctx, NewJob("nothing"))
		require.NoError(t, err)
		assert.Empty(t, matches)
	})
}

func TestStoreMapReduceErrors(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, s Store) {
		require.NoError(t, s.Put(ctx, "b", "word", nil))

		_, err := s.MapReduce(ctx, nil)
		assert.Error(t, err)

		_, err = s.MapReduce(ctx, NewJob("b", Filter("my_bizarro_opprint", "test!")))
		assert.ErrorIs(t, err, ErrUnknownFilter)

		_, err = s.MapReduce(ctx, NewJob("b", Filter("string_to_int")))
		assert.ErrorIs(t, err, ErrFilterFailed)

		mapPhase := Phase{Map: &PhaseSpec{Language: "javascript", Module: "Riak", Function: "mapValues"}}
		_, err = s.MapReduce(ctx, NewJob("b").Reduce(mapPhase))
		assert.ErrorIs(t, err, ErrUnsupportedPhase)
	})
}

func TestStoreMapReduceCancelled(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		require.NoError(t, s.Put(context.Background(), "b", "k", nil))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := s.MapReduce(ctx, NewJob("b"))
		assert.ErrorIs(t, err, context.Canceled)

		job := NewJob("b")
		job.Timeout = time.Nanosecond
		_, err = s.MapReduce(context.Background(), job)
		// A one nanosecond deadline has expired before the first key
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
