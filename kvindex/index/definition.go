package index

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/wbrown/janus-kvindex/kvindex"
)

// Definition indexes one field of the objects stored under
// <prefix>_<name> keys in one bucket. It is immutable apart from the client
// it gets bound to on registration.
type Definition struct {
	bucket    string
	prefix    string
	field     string
	fieldType kvindex.FieldType

	client atomic.Pointer[Client]
}

// NewDefinition validates and builds an index definition. fieldType is one
// of str, int, float, bool or unicode.
func NewDefinition(bucket, prefix, field, fieldType string) (*Definition, error) {
	ft, err := kvindex.ParseFieldType(fieldType)
	if err != nil {
		return nil, err
	}
	if bucket == "" || prefix == "" || field == "" {
		return nil, fmt.Errorf("%w: bucket, prefix and field are required", ErrInvalidDefinition)
	}
	if strings.Contains(bucket, "=") || strings.Contains(prefix, "=") {
		return nil, fmt.Errorf("%w: bucket %q and prefix %q must not contain '='", ErrInvalidDefinition, bucket, prefix)
	}
	if strings.Contains(prefix, kvindex.KeySeparator) {
		return nil, fmt.Errorf("%w: prefix %q must not contain %q", ErrInvalidDefinition, prefix, kvindex.KeySeparator)
	}

	return &Definition{
		bucket:    bucket,
		prefix:    prefix,
		field:     field,
		fieldType: ft,
	}, nil
}

func (d *Definition) Bucket() string               { return d.bucket }
func (d *Definition) Prefix() string               { return d.prefix }
func (d *Definition) Field() string                { return d.field }
func (d *Definition) FieldType() kvindex.FieldType { return d.fieldType }

// IndexBucket returns the bucket holding this definition's index records
func (d *Definition) IndexBucket() string {
	return kvindex.IndexBucket(d.bucket, d.prefix, d.field)
}

// Client returns the client the definition is registered with, or nil
func (d *Definition) Client() *Client {
	return d.client.Load()
}

// Bound reports whether the definition has been registered
func (d *Definition) Bound() bool {
	return d.client.Load() != nil
}

func (d *Definition) String() string {
	return fmt.Sprintf("%s (%s)", d.IndexBucket(), d.fieldType)
}

// valid reports whether d was built by NewDefinition
func (d *Definition) valid() bool {
	return d != nil && d.bucket != "" && d.prefix != "" && d.field != "" && d.fieldType.Valid()
}
