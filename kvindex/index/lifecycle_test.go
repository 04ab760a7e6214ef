package index

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-kvindex/kvindex"
	"github.com/wbrown/janus-kvindex/kvindex/annotations"
	"github.com/wbrown/janus-kvindex/kvindex/storage"
)

func TestNewDefinition(t *testing.T) {
	def, err := NewDefinition("test", "p", "field1", "INT")
	require.NoError(t, err)
	assert.Equal(t, "test", def.Bucket())
	assert.Equal(t, "p", def.Prefix())
	assert.Equal(t, "field1", def.Field())
	assert.Equal(t, kvindex.TypeInt, def.FieldType())
	assert.Equal(t, "idx=test=p=field1", def.IndexBucket())
	assert.False(t, def.Bound())

	_, err = NewDefinition("test", "p", "field1", "list")
	assert.ErrorIs(t, err, kvindex.ErrIllegalDatatype)
	assert.Contains(t, err.Error(), "only: str, int, float, bool, unicode")

	for _, args := range [][3]string{
		{"", "p", "f"},
		{"test", "", "f"},
		{"test", "p", ""},
		{"te=st", "p", "f"},
		{"test", "p_q", "f"},
	} {
		_, err := NewDefinition(args[0], args[1], args[2], "str")
		assert.ErrorIs(t, err, ErrInvalidDefinition, "%v", args)
	}
}

func TestAddIndex(t *testing.T) {
	c, _, _ := newTestClient(t)

	assert.ErrorIs(t, c.AddIndex(nil), ErrInvalidDefinition)
	assert.ErrorIs(t, c.AddIndex(&Definition{}), ErrInvalidDefinition)

	first := mustIndex(t, c, "test", "p", "field1", "str")
	assert.True(t, first.Bound())
	assert.Same(t, c, first.Client())
	mustIndex(t, c, "test", "p", "field2", "int")
	mustIndex(t, c, "other", "q", "field1", "bool")

	// Same identity replaces silently
	replacement := mustIndex(t, c, "test", "p", "field1", "unicode")
	def, ok := c.Index("test", "p", "field1")
	require.True(t, ok)
	assert.Same(t, replacement, def)
	assert.Equal(t, 3, c.Registry().Len())

	// Re-adding to the same client is fine, to another client is not
	assert.NoError(t, c.AddIndex(replacement))
	other, _, _ := newTestClient(t)
	assert.ErrorIs(t, other.AddIndex(replacement), ErrInvalidDefinition)

	assert.Len(t, c.Registry().Lookup("test", "p"), 2)
	assert.Nil(t, c.Registry().Lookup("test", "nope"))

	var buckets []string
	for _, d := range c.Registry().Definitions() {
		buckets = append(buckets, d.IndexBucket())
	}
	assert.Equal(t, []string{"idx=other=q=field1", "idx=test=p=field1", "idx=test=p=field2"}, buckets)
}

func TestStoreCreatesIndexRecords(t *testing.T) {
	c, store, _ := newTestClient(t)
	mustIndex(t, c, "test", "p", "field1", "str")
	mustIndex(t, c, "test", "p", "field2", "int")

	obj := mustStore(t, c, "test", "p_key1", map[string]any{"field1": "test!", "field2": 3, "other": true})
	assert.True(t, obj.Exists())

	assert.Equal(t, []string{"key1/test%21"}, indexKeys(t, store, "idx=test=p=field1"))
	assert.Equal(t, []string{"key1/3"}, indexKeys(t, store, "idx=test=p=field2"))

	body, err := store.Get(context.Background(), "test", "p_key1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"field1": "test!", "field2": 3, "other": true}`, string(body))
}

func TestStoreEscapesValues(t *testing.T) {
	c, store, _ := newTestClient(t)
	mustIndex(t, c, "test", "p", "name", "unicode")
	mustIndex(t, c, "test", "p", "ok", "bool")
	mustIndex(t, c, "test", "p", "price", "float")

	mustStore(t, c, "test", "p_key1", map[string]any{"name": "a/b=c ü", "ok": true, "price": 4.0})

	assert.Equal(t, []string{"key1/a%2Fb%3Dc%20%C3%BC"}, indexKeys(t, store, "idx=test=p=name"))
	assert.Equal(t, []string{"key1/1"}, indexKeys(t, store, "idx=test=p=ok"))
	assert.Equal(t, []string{"key1/4"}, indexKeys(t, store, "idx=test=p=price"))
}

func TestNoSpuriousIndexing(t *testing.T) {
	c, store, events := newTestClient(t)
	mustIndex(t, c, "test", "p", "field1", "str")

	mustStore(t, c, "test", "q_key1", map[string]any{"field1": "x"})
	mustStore(t, c, "elsewhere", "p_key1", map[string]any{"field1": "x"})
	assert.Empty(t, indexKeys(t, store, "idx=test=p=field1"))

	// Keys without a prefix are stored but never indexed
	events.Reset()
	obj := mustStore(t, c, "test", "noprefix", map[string]any{"field1": "x"})
	assert.True(t, obj.Exists())
	assert.Empty(t, indexKeys(t, store, "idx=test=p=field1"))
	assert.Equal(t, []string{annotations.IndexSkipped, annotations.ObjectStored}, events.Names())
}

func TestStoreMissingFieldWritesNothing(t *testing.T) {
	c, store, _ := newTestClient(t)
	mustIndex(t, c, "test", "p", "field1", "str")
	mustIndex(t, c, "test", "p", "field2", "int")

	mustStore(t, c, "test", "p_key1", map[string]any{"field2": 7})
	assert.Empty(t, indexKeys(t, store, "idx=test=p=field1"))
	assert.Equal(t, []string{"key1/7"}, indexKeys(t, store, "idx=test=p=field2"))

	// Empty text has no index record
	mustStore(t, c, "test", "p_key2", map[string]any{"field1": ""})
	assert.Empty(t, indexKeys(t, store, "idx=test=p=field1"))
}

func TestUpdateMovesIndex(t *testing.T) {
	ctx := context.Background()
	c, store, events := newTestClient(t)
	mustIndex(t, c, "test", "p", "field1", "int")
	mustIndex(t, c, "test", "p", "field2", "str")

	mustStore(t, c, "test", "p_key1", map[string]any{"field1": 3, "field2": "same"})

	obj, err := c.Bucket("test").Get(ctx, "p_key1")
	require.NoError(t, err)
	require.True(t, obj.Exists())
	assert.Equal(t, json.Number("3"), obj.Data()["field1"])

	events.Reset()
	_, err = obj.SetData(map[string]any{"field1": 4, "field2": "same"}).Store(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"key1/4"}, indexKeys(t, store, "idx=test=p=field1"))
	assert.Equal(t, []string{"key1/same"}, indexKeys(t, store, "idx=test=p=field2"))
	assert.Equal(t, []string{
		annotations.IndexRemoved, // field1 3
		annotations.IndexWritten, // field1 4
		annotations.IndexWritten, // field2 unchanged, rewritten
		annotations.ObjectStored,
	}, events.Names())

	// Removing the field drops its record
	_, err = obj.SetData(map[string]any{"field2": "same"}).Store(ctx)
	require.NoError(t, err)
	assert.Empty(t, indexKeys(t, store, "idx=test=p=field1"))
}

func TestUpdateKeepsFirstSnapshot(t *testing.T) {
	ctx := context.Background()
	c, store, _ := newTestClient(t)
	mustIndex(t, c, "test", "p", "field1", "int")

	obj := mustStore(t, c, "test", "p_key1", map[string]any{"field1": 1})
	obj.SetData(map[string]any{"field1": 2})
	obj.SetData(map[string]any{"field1": 3})
	_, err := obj.Store(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"key1/3"}, indexKeys(t, store, "idx=test=p=field1"))
}

func TestTolerantCleanup(t *testing.T) {
	ctx := context.Background()
	c, store, events := newTestClient(t)
	mustIndex(t, c, "test", "p", "field1", "int")

	obj := mustStore(t, c, "test", "p_key1", map[string]any{"field1": 3})

	// Old record vanishes behind our back
	require.NoError(t, store.Delete(ctx, "idx=test=p=field1", "key1/3"))

	events.Reset()
	_, err := obj.SetData(map[string]any{"field1": 4}).Store(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"key1/4"}, indexKeys(t, store, "idx=test=p=field1"))
	assert.Contains(t, events.Names(), annotations.IndexMissing)
}

func TestDeleteRemovesIndexes(t *testing.T) {
	ctx := context.Background()
	c, store, _ := newTestClient(t)
	mustIndex(t, c, "test", "p", "field1", "str")
	mustIndex(t, c, "test", "p", "field2", "int")
	mustIndex(t, c, "test", "p", "field3", "bool")

	mustStore(t, c, "test", "p_key1", map[string]any{"field1": "a", "field2": 1, "field3": false})
	mustStore(t, c, "test", "p_key2", map[string]any{"field1": "b", "field2": 2, "field3": true})

	obj, err := c.Bucket("test").Get(ctx, "p_key1")
	require.NoError(t, err)
	require.NoError(t, obj.Delete(ctx))
	assert.False(t, obj.Exists())

	again, err := c.Bucket("test").Get(ctx, "p_key1")
	require.NoError(t, err)
	assert.False(t, again.Exists())

	assert.Equal(t, []string{"key2/b"}, indexKeys(t, store, "idx=test=p=field1"))
	assert.Equal(t, []string{"key2/2"}, indexKeys(t, store, "idx=test=p=field2"))
	assert.Equal(t, []string{"key2/1"}, indexKeys(t, store, "idx=test=p=field3"))
}

func TestDeleteWithPendingUpdate(t *testing.T) {
	ctx := context.Background()
	c, store, _ := newTestClient(t)
	mustIndex(t, c, "test", "p", "field1", "int")

	obj := mustStore(t, c, "test", "p_key1", map[string]any{"field1": 3})
	obj.SetData(map[string]any{"field1": 4})
	require.NoError(t, obj.Delete(ctx))

	assert.Empty(t, indexKeys(t, store, "idx=test=p=field1"))
}

// Floats outside the plain-decimal range of %g come back from the store as
// json.Number and must still name the record written at store time
func TestFloatDeleteAfterGet(t *testing.T) {
	ctx := context.Background()
	c, store, events := newTestClient(t)
	mustIndex(t, c, "test", "p", "price", "float")

	mustStore(t, c, "test", "p_key1", map[string]any{"price": 2500000.0})
	mustStore(t, c, "test", "p_key2", map[string]any{"price": 1e-7})
	assert.Equal(t, []string{"key1/2500000", "key2/1e-7"}, indexKeys(t, store, "idx=test=p=price"))

	for _, key := range []string{"p_key1", "p_key2"} {
		obj, err := c.Bucket("test").Get(ctx, key)
		require.NoError(t, err)
		require.True(t, obj.Exists())

		events.Reset()
		require.NoError(t, obj.Delete(ctx))
		assert.NotContains(t, events.Names(), annotations.IndexMissing, key)
	}
	assert.Empty(t, indexKeys(t, store, "idx=test=p=price"))
}

func TestFloatUpdateAfterGet(t *testing.T) {
	ctx := context.Background()
	c, store, events := newTestClient(t)
	def := mustIndex(t, c, "test", "p", "price", "float")

	mustStore(t, c, "test", "p_key1", map[string]any{"price": 0.00001})
	assert.Equal(t, []string{"key1/0.00001"}, indexKeys(t, store, "idx=test=p=price"))

	obj, err := c.Bucket("test").Get(ctx, "p_key1")
	require.NoError(t, err)
	assert.Equal(t, json.Number("0.00001"), obj.Data()["price"])

	events.Reset()
	_, err = obj.SetData(map[string]any{"price": 12345678.5}).Store(ctx)
	require.NoError(t, err)
	assert.NotContains(t, events.Names(), annotations.IndexMissing)
	assert.Equal(t, []string{"key1/12345678.5"}, indexKeys(t, store, "idx=test=p=price"))

	matches, err := def.QueryDefault(ctx, "greater_than", 1e7)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"test/p_key1": 12345678.5}, matchSet(matches))
}

func TestDeleteMissingPrimary(t *testing.T) {
	ctx := context.Background()
	c, store, _ := newTestClient(t)
	mustIndex(t, c, "test", "p", "field1", "int")

	before := store.Calls()
	err := c.Bucket("test").New("p_ghost", map[string]any{"field1": 1}).Delete(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, before+1, store.Calls(), "no index work after a failed primary delete")
}

func TestPrimaryFailureSkipsIndexes(t *testing.T) {
	c, store, _ := newTestClient(t)
	mustIndex(t, c, "test", "p", "field1", "int")

	boom := errors.New("connection reset")
	store.failPut = func(bucket, key string) error {
		if bucket == "test" {
			return boom
		}
		return nil
	}

	obj, err := c.Bucket("test").New("p_key1", map[string]any{"field1": 1}).Store(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, obj)
	assert.Empty(t, indexKeys(t, store, "idx=test=p=field1"))
}

func TestIndexDrift(t *testing.T) {
	ctx := context.Background()
	c, store, events := newTestClient(t)
	mustIndex(t, c, "test", "p", "field1", "int")
	mustIndex(t, c, "test", "p", "field2", "int")

	boom := errors.New("timeout")
	store.failPut = func(bucket, key string) error {
		if bucket == "idx=test=p=field1" {
			return boom
		}
		return nil
	}

	obj, err := c.Bucket("test").New("p_key1", map[string]any{"field1": 1, "field2": 2}).Store(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIndexDrift)
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, obj)
	assert.True(t, obj.Exists())

	// The primary write and the other field went through
	_, err = store.Get(ctx, "test", "p_key1")
	assert.NoError(t, err)
	assert.Empty(t, indexKeys(t, store, "idx=test=p=field1"))
	assert.Equal(t, []string{"key1/2"}, indexKeys(t, store, "idx=test=p=field2"))
	assert.Contains(t, events.Names(), annotations.IndexError)

	// Delete failures other than not-found are reported too
	store.failPut = nil
	store.failDelete = func(bucket, key string) error {
		if bucket == "idx=test=p=field2" {
			return boom
		}
		return nil
	}
	err = obj.Delete(ctx)
	assert.ErrorIs(t, err, ErrIndexDrift)
	assert.False(t, obj.Exists())
}

func TestUnindexableKey(t *testing.T) {
	ctx := context.Background()
	c, store, _ := newTestClient(t)
	mustIndex(t, c, "test", "p", "field1", "int")

	_, err := c.Bucket("test").New("p_a/b", map[string]any{"field1": 1}).Store(ctx)
	assert.ErrorIs(t, err, ErrUnindexableKey)

	// The primary write already happened
	_, err = store.Get(ctx, "test", "p_a/b")
	assert.NoError(t, err)
	assert.Empty(t, indexKeys(t, store, "idx=test=p=field1"))

	// Without definitions for the prefix the key is fine
	_, err = c.Bucket("test").New("q_a/b", map[string]any{"field1": 1}).Store(ctx)
	assert.NoError(t, err)
}

func TestUnsupportedFieldValue(t *testing.T) {
	ctx := context.Background()
	c, store, _ := newTestClient(t)
	mustIndex(t, c, "test", "p", "field1", "str")

	_, err := c.Bucket("test").New("p_key1", map[string]any{"field1": []any{"a"}}).Store(ctx)
	assert.ErrorIs(t, err, ErrIndexDrift)
	assert.Empty(t, indexKeys(t, store, "idx=test=p=field1"))
}
