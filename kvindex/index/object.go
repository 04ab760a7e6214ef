package index

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wbrown/janus-kvindex/kvindex/annotations"
	"github.com/wbrown/janus-kvindex/kvindex/storage"
)

// Bucket is a handle on one data bucket of a client
type Bucket struct {
	client *Client
	name   string
}

// Name returns the bucket name
func (b *Bucket) Name() string {
	return b.name
}

// New creates an object that has not been stored yet
func (b *Bucket) New(key string, data map[string]any) *Object {
	return &Object{bucket: b, key: key, data: data}
}

// Get fetches an object. A missing key yields an object whose Exists
// reports false rather than an error.
func (b *Bucket) Get(ctx context.Context, key string) (*Object, error) {
	body, err := b.client.store.Get(ctx, b.name, key)
	if errors.Is(err, storage.ErrNotFound) {
		return &Object{bucket: b, key: key}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", b.name, key, err)
	}

	data, err := decodeData(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s/%s: %w", b.name, key, err)
	}
	return &Object{bucket: b, key: key, data: data, exists: true}, nil
}

// Object is a primary object: a JSON document stored under one key
type Object struct {
	bucket  *Bucket
	key     string
	data    map[string]any
	oldData map[string]any // data before the first SetData since the last Store
	exists  bool
}

func (o *Object) Bucket() *Bucket { return o.bucket }
func (o *Object) Key() string     { return o.key }

// Data returns the object's current data
func (o *Object) Data() map[string]any {
	return o.data
}

// Exists reports whether the object was fetched from or written to the store
func (o *Object) Exists() bool {
	return o.exists
}

// SetData replaces the object's data. The data held before the first
// SetData since the last Store is kept so that Store can retire the index
// records of values that changed.
func (o *Object) SetData(data map[string]any) *Object {
	if o.data != nil && o.oldData == nil {
		o.oldData = make(map[string]any, len(o.data))
		for k, v := range o.data {
			o.oldData[k] = v
		}
	}
	o.data = data
	return o
}

// Store writes the object and then brings its index records up to date.
// A failed primary write is returned as is and leaves the indexes alone.
// Once the primary write succeeds the object is returned even when index
// maintenance fails; such failures are reported as ErrIndexDrift, or
// ErrUnindexableKey for keys whose name cannot be placed in an index key.
func (o *Object) Store(ctx context.Context) (*Object, error) {
	c := o.bucket.client
	start := time.Now()
	collector := c.collector()

	data := o.data
	if data == nil {
		data = map[string]any{}
	}
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s/%s: %w", o.bucket.name, o.key, err)
	}
	if err := c.store.Put(ctx, o.bucket.name, o.key, body); err != nil {
		return nil, fmt.Errorf("failed to store %s/%s: %w", o.bucket.name, o.key, err)
	}
	o.exists = true

	oldData := o.oldData
	o.oldData = nil

	written, err := c.updateIndexes(ctx, collector, o.bucket.name, o.key, oldData, o.data)
	collector.AddTiming(annotations.ObjectStored, start, map[string]interface{}{
		"bucket":  o.bucket.name,
		"key":     o.key,
		"indexes": written,
	})
	return o, err
}

// Delete removes the object and then its index records. A failed primary
// delete, including a missing key, is returned as is and leaves the indexes
// alone.
func (o *Object) Delete(ctx context.Context) error {
	c := o.bucket.client
	start := time.Now()
	collector := c.collector()

	data, oldData := o.data, o.oldData
	if err := c.store.Delete(ctx, o.bucket.name, o.key); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", o.bucket.name, o.key, err)
	}
	o.exists = false
	o.data = nil
	o.oldData = nil

	err := c.removeIndexes(ctx, collector, o.bucket.name, o.key, data, oldData)
	collector.AddTiming(annotations.ObjectDeleted, start, map[string]interface{}{
		"bucket": o.bucket.name,
		"key":    o.key,
	})
	return err
}

// decodeData parses a stored body, keeping numbers in their stored text
func decodeData(body []byte) (map[string]any, error) {
	var data map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	return data, nil
}
