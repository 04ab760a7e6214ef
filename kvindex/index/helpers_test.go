package index

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-kvindex/kvindex/annotations"
	"github.com/wbrown/janus-kvindex/kvindex/codec"
	"github.com/wbrown/janus-kvindex/kvindex/storage"
)

// faultyStore wraps a store, counting calls and failing the ones its hooks
// return an error for
type faultyStore struct {
	storage.Store

	mu         sync.Mutex
	calls      int
	failPut    func(bucket, key string) error
	failDelete func(bucket, key string) error
}

func (s *faultyStore) count() {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

func (s *faultyStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *faultyStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	s.count()
	return s.Store.Get(ctx, bucket, key)
}

func (s *faultyStore) Put(ctx context.Context, bucket, key string, value []byte) error {
	s.count()
	if s.failPut != nil {
		if err := s.failPut(bucket, key); err != nil {
			return err
		}
	}
	return s.Store.Put(ctx, bucket, key, value)
}

func (s *faultyStore) Delete(ctx context.Context, bucket, key string) error {
	s.count()
	if s.failDelete != nil {
		if err := s.failDelete(bucket, key); err != nil {
			return err
		}
	}
	return s.Store.Delete(ctx, bucket, key)
}

func (s *faultyStore) MapReduce(ctx context.Context, job *storage.Job) ([]storage.Match, error) {
	s.count()
	return s.Store.MapReduce(ctx, job)
}

// newTestStore opens an in-memory badger store wrapped for fault injection
func newTestStore(t *testing.T) *faultyStore {
	t.Helper()
	store, err := storage.NewBadgerStore("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return &faultyStore{Store: store}
}

// newTestClient returns a client whose annotation events land in the
// returned collector
func newTestClient(t *testing.T) (*Client, *faultyStore, *annotations.Collector) {
	t.Helper()
	store := newTestStore(t)
	events := annotations.NewCollector(func(annotations.Event) {})

	opts := DefaultOptions()
	opts.Handler = events.Add
	return NewClientWithOptions(store, opts), store, events
}

func mustDefinition(t *testing.T, bucket, prefix, field, fieldType string) *Definition {
	t.Helper()
	def, err := NewDefinition(bucket, prefix, field, fieldType)
	require.NoError(t, err)
	return def
}

func mustIndex(t *testing.T, c *Client, bucket, prefix, field, fieldType string) *Definition {
	t.Helper()
	def := mustDefinition(t, bucket, prefix, field, fieldType)
	require.NoError(t, c.AddIndex(def))
	return def
}

func mustStore(t *testing.T, c *Client, bucket, key string, data map[string]any) *Object {
	t.Helper()
	obj, err := c.Bucket(bucket).New(key, data).Store(context.Background())
	require.NoError(t, err)
	return obj
}

// indexKeys lists the raw keys of an index bucket, sorted
func indexKeys(t *testing.T, s storage.Store, idxBucket string) []string {
	t.Helper()
	matches, err := s.MapReduce(context.Background(), storage.NewJob(codec.Escape(idxBucket)))
	require.NoError(t, err)

	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		key, err := codec.Decode(m.Key)
		require.NoError(t, err)
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// matchSet renders query results order-independently
func matchSet(matches []Match) map[string]any {
	set := make(map[string]any, len(matches))
	for _, m := range matches {
		set[m.Bucket+"/"+m.Key] = m.Value
	}
	return set
}
