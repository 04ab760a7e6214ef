package index

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wbrown/janus-kvindex/kvindex"
	"github.com/wbrown/janus-kvindex/kvindex/annotations"
	"github.com/wbrown/janus-kvindex/kvindex/codec"
	"github.com/wbrown/janus-kvindex/kvindex/storage"
)

// emptyIndexBody is the body of every index record; only the key matters
var emptyIndexBody = []byte{}

// indexedKey resolves the definitions that apply to bucket/key. It returns
// no definitions for keys outside every indexed key space.
func (c *Client) indexedKey(collector *annotations.Collector, bucket, key string) (kvindex.PrimaryKey, map[string]*Definition, error) {
	pk, err := kvindex.ParseKey(key)
	if err != nil {
		collector.Add(annotations.Event{
			Name: annotations.IndexSkipped,
			Data: map[string]interface{}{"key": key, "reason": "no key prefix"},
		})
		return pk, nil, nil
	}

	defs := c.registry.Lookup(bucket, pk.Prefix)
	if len(defs) == 0 {
		return pk, nil, nil
	}
	if strings.Contains(pk.Name, "/") {
		return pk, nil, fmt.Errorf("%w: %s/%s: name %q contains '/'", ErrUnindexableKey, bucket, key, pk.Name)
	}
	return pk, defs, nil
}

// fieldValue returns the encoded value of field in data. ok is false when
// the field is absent or encodes to nothing, in which case no index record
// exists for it.
func fieldValue(data map[string]any, field string) (encoded string, ok bool, err error) {
	v, present := data[field]
	if !present {
		return "", false, nil
	}
	encoded, err = codec.Encode(v)
	if err != nil {
		return "", false, fmt.Errorf("field %q: %w", field, err)
	}
	return encoded, encoded != "", nil
}

// updateIndexes moves the index records of key from oldData to newData,
// field by field. It returns the number of records written.
func (c *Client) updateIndexes(ctx context.Context, collector *annotations.Collector, bucket, key string, oldData, newData map[string]any) (int, error) {
	pk, defs, err := c.indexedKey(collector, bucket, key)
	if err != nil || len(defs) == 0 {
		return 0, err
	}

	var errs []error
	written := 0
	for _, field := range sortedFields(defs) {
		def := defs[field]
		idxBucket := def.IndexBucket()

		newValue, hasNew, err := fieldValue(newData, field)
		if err != nil {
			errs = append(errs, c.indexError(collector, idxBucket, pk.Name, "encode", err))
			continue
		}

		// Old values that never encoded were never written
		if oldValue, hasOld, _ := fieldValue(oldData, field); hasOld && (!hasNew || oldValue != newValue) {
			if err := c.removeIndexRecord(ctx, collector, idxBucket, kvindex.IndexKey(pk.Name, oldValue)); err != nil {
				errs = append(errs, err)
			}
		}

		if !hasNew {
			continue
		}
		indexKey := kvindex.IndexKey(pk.Name, newValue)
		if err := c.store.Put(ctx, idxBucket, indexKey, emptyIndexBody); err != nil {
			errs = append(errs, c.indexError(collector, idxBucket, indexKey, "put", err))
			continue
		}
		written++
		IndexWrites.WithLabelValues(idxBucket).Inc()
		collector.Add(annotations.Event{
			Name: annotations.IndexWritten,
			Data: map[string]interface{}{"bucket": idxBucket, "key": indexKey},
		})
	}
	return written, driftError(bucket, key, errs)
}

// removeIndexes deletes the index records of key for every value it held
// in data or, when an update was pending, in oldData
func (c *Client) removeIndexes(ctx context.Context, collector *annotations.Collector, bucket, key string, data, oldData map[string]any) error {
	pk, defs, err := c.indexedKey(collector, bucket, key)
	if err != nil || len(defs) == 0 {
		return err
	}

	var errs []error
	for _, field := range sortedFields(defs) {
		idxBucket := defs[field].IndexBucket()

		value, ok, err := fieldValue(data, field)
		if err != nil {
			errs = append(errs, c.indexError(collector, idxBucket, pk.Name, "encode", err))
		} else if ok {
			if err := c.removeIndexRecord(ctx, collector, idxBucket, kvindex.IndexKey(pk.Name, value)); err != nil {
				errs = append(errs, err)
			}
		}

		if oldValue, hasOld, _ := fieldValue(oldData, field); hasOld && (!ok || oldValue != value) {
			if err := c.removeIndexRecord(ctx, collector, idxBucket, kvindex.IndexKey(pk.Name, oldValue)); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return driftError(bucket, key, errs)
}

// removeIndexRecord deletes one index record. A record that is already gone
// is not an error.
func (c *Client) removeIndexRecord(ctx context.Context, collector *annotations.Collector, idxBucket, indexKey string) error {
	err := c.store.Delete(ctx, idxBucket, indexKey)
	switch {
	case err == nil:
		IndexRemovals.WithLabelValues(idxBucket, "removed").Inc()
		collector.Add(annotations.Event{
			Name: annotations.IndexRemoved,
			Data: map[string]interface{}{"bucket": idxBucket, "key": indexKey},
		})
		return nil
	case errors.Is(err, storage.ErrNotFound):
		IndexRemovals.WithLabelValues(idxBucket, "missing").Inc()
		collector.Add(annotations.Event{
			Name: annotations.IndexMissing,
			Data: map[string]interface{}{"bucket": idxBucket, "key": indexKey},
		})
		return nil
	default:
		return c.indexError(collector, idxBucket, indexKey, "delete", err)
	}
}

func (c *Client) indexError(collector *annotations.Collector, idxBucket, indexKey, op string, err error) error {
	IndexErrors.WithLabelValues(idxBucket, op).Inc()
	collector.Add(annotations.Event{
		Name: annotations.IndexError,
		Data: map[string]interface{}{"bucket": idxBucket, "key": indexKey, "op": op, "error": err},
	})
	return fmt.Errorf("%s %s/%s: %w", op, idxBucket, indexKey, err)
}

func driftError(bucket, key string, errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s/%s: %w", ErrIndexDrift, bucket, key, errors.Join(errs...))
}
