package index

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/wbrown/janus-kvindex/kvindex"
	"github.com/wbrown/janus-kvindex/kvindex/annotations"
	"github.com/wbrown/janus-kvindex/kvindex/codec"
	"github.com/wbrown/janus-kvindex/kvindex/storage"
)

// Match is one query result: the primary object's bucket and key and the
// indexed value, typed by the definition's field type (int64, float64,
// bool or string).
type Match struct {
	Bucket string
	Key    string
	Value  any
}

// Operators whose value is a list rather than a single operand
const (
	OpBetween   = "between"
	OpSetMember = "set_member"
)

// QueryDefault runs Query with the client's configured timeout
func (d *Definition) QueryDefault(ctx context.Context, op string, value any) ([]Match, error) {
	c := d.Client()
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotBound, d.IndexBucket())
	}
	return d.Query(ctx, op, value, c.options.QueryTimeout)
}

// Query returns the objects whose indexed field satisfies op against value.
// op is a store key filter predicate such as less_than or eq; between takes
// a two element slice and set_member a slice of candidates. Results are in
// no particular order.
func (d *Definition) Query(ctx context.Context, op string, value any, timeout time.Duration) ([]Match, error) {
	c := d.Client()
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotBound, d.IndexBucket())
	}

	start := time.Now()
	collector := c.collector()
	idxBucket := d.IndexBucket()
	collector.Add(annotations.Event{
		Name:  annotations.QueryInvoked,
		Start: start,
		Data:  map[string]interface{}{"bucket": idxBucket, "op": op, "value": value},
	})

	matches, err := d.runQuery(ctx, c, op, value, timeout)

	QueryDuration.WithLabelValues(idxBucket).Observe(time.Since(start).Seconds())
	if err != nil {
		QueryCount.WithLabelValues(idxBucket, "error").Inc()
		collector.AddTiming(annotations.QueryComplete, start, map[string]interface{}{
			"success": false,
			"error":   err,
		})
		return nil, &QueryError{Index: idxBucket, Op: op, Err: err}
	}

	QueryCount.WithLabelValues(idxBucket, "ok").Inc()
	collector.AddTiming(annotations.QueryComplete, start, map[string]interface{}{
		"success": true,
		"matches": len(matches),
	})
	return matches, nil
}

func (d *Definition) runQuery(ctx context.Context, c *Client, op string, value any, timeout time.Duration) ([]Match, error) {
	job, err := d.BuildJob(op, value, timeout)
	if err != nil {
		return nil, err
	}

	raw, err := c.store.MapReduce(ctx, job)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(raw))
	for _, m := range raw {
		match, err := d.DecodeMatch(m)
		if err != nil {
			return nil, err
		}
		matches = append(matches, match)
	}
	return matches, nil
}

// BuildJob translates a query into the store job that runs it: the raw
// index key is url-decoded, its value segment taken, coerced to a number
// for numeric types, and tested with op.
func (d *Definition) BuildJob(op string, value any, timeout time.Duration) (*storage.Job, error) {
	operands, err := d.prepareOperands(op, value)
	if err != nil {
		return nil, err
	}

	filters := []storage.KeyFilter{
		storage.Filter("urldecode"),
		storage.Filter("tokenize", "/", 2),
	}
	switch d.fieldType {
	case kvindex.TypeInt, kvindex.TypeBool:
		filters = append(filters, storage.Filter("string_to_int"))
	case kvindex.TypeFloat:
		filters = append(filters, storage.Filter("string_to_float"))
	}
	filters = append(filters, storage.Filter(op, operands...))

	job := storage.NewJob(codec.Escape(d.IndexBucket()), filters...).Reduce(storage.IdentityReduce())
	job.Timeout = timeout
	return job, nil
}

// prepareOperands turns the query value into filter arguments
func (d *Definition) prepareOperands(op string, value any) ([]any, error) {
	if op != OpBetween && op != OpSetMember {
		v, err := d.prepareValue(value)
		if err != nil {
			return nil, err
		}
		return []any{v}, nil
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%s needs a list of values, got %T", op, value)
	}
	if op == OpBetween && rv.Len() != 2 {
		return nil, fmt.Errorf("between needs exactly two values, got %d", rv.Len())
	}
	if rv.Len() == 0 {
		return nil, fmt.Errorf("%s needs at least one value", op)
	}

	operands := make([]any, rv.Len())
	for i := range operands {
		v, err := d.prepareValue(rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		operands[i] = v
	}
	return operands, nil
}

// prepareValue matches one operand to the form the filters compare against:
// numbers pass through, booleans become 0 or 1 and text is escaped the way
// it is stored.
func (d *Definition) prepareValue(value any) (any, error) {
	switch d.fieldType {
	case kvindex.TypeInt, kvindex.TypeFloat:
		return value, nil
	case kvindex.TypeBool:
		if b, ok := value.(bool); ok {
			if b {
				return 1, nil
			}
			return 0, nil
		}
		return value, nil
	default:
		return codec.Encode(value)
	}
}

// DecodeMatch turns a raw store match from this definition's index bucket
// back into the primary key and typed value it records
func (d *Definition) DecodeMatch(m storage.Match) (Match, error) {
	bucketName, err := codec.Decode(m.Bucket)
	if err != nil {
		return Match{}, fmt.Errorf("%w: bucket %q: %v", kvindex.ErrMalformedIndexEntry, m.Bucket, err)
	}
	parts, err := kvindex.ParseIndexBucket(bucketName)
	if err != nil {
		return Match{}, err
	}

	key, err := codec.Decode(m.Key)
	if err != nil {
		return Match{}, fmt.Errorf("%w: key %q: %v", kvindex.ErrMalformedIndexEntry, m.Key, err)
	}
	name, text, err := kvindex.ParseIndexKey(key)
	if err != nil {
		return Match{}, err
	}
	value, err := kvindex.CoerceValue(d.fieldType, text)
	if err != nil {
		return Match{}, err
	}

	return Match{
		Bucket: parts.Bucket,
		Key:    kvindex.PrimaryKey{Prefix: parts.Prefix, Name: name}.String(),
		Value:  value,
	}, nil
}
