package kvindex

import (
	"fmt"
	"strings"

	"github.com/wbrown/janus-kvindex/kvindex/codec"
)

const (
	// KeySeparator splits a primary key into prefix and local name
	KeySeparator = "_"

	// IndexBucketPrefix is the first segment of every index bucket name
	IndexBucketPrefix = "idx"

	bucketSeparator = "="
	valueSeparator  = "/"
)

// PrimaryKey is a primary key split into its prefix and local name
type PrimaryKey struct {
	Prefix string
	Name   string
}

// ParseKey splits key on its first underscore. Keys without an underscore,
// or with an empty prefix or name, cannot take part in indexing.
func ParseKey(key string) (PrimaryKey, error) {
	prefix, name, ok := strings.Cut(key, KeySeparator)
	if !ok || prefix == "" || name == "" {
		return PrimaryKey{}, fmt.Errorf("%w: %q", ErrNoKeyPrefix, key)
	}
	return PrimaryKey{Prefix: prefix, Name: name}, nil
}

// String rebuilds the full primary key
func (k PrimaryKey) String() string {
	return k.Prefix + KeySeparator + k.Name
}

// IndexBucket names the bucket holding the index records of one field:
// idx=<bucket>=<prefix>=<field>
func IndexBucket(bucket, prefix, field string) string {
	return strings.Join([]string{IndexBucketPrefix, bucket, prefix, field}, bucketSeparator)
}

// IndexBucketName is an index bucket name split into its parts
type IndexBucketName struct {
	Bucket string
	Prefix string
	Field  string
}

// ParseIndexBucket splits an index bucket name back into data bucket, key
// prefix and field. The field takes whatever follows the third `=`.
func ParseIndexBucket(name string) (IndexBucketName, error) {
	parts := strings.SplitN(name, bucketSeparator, 4)
	if len(parts) != 4 || parts[0] != IndexBucketPrefix {
		return IndexBucketName{}, fmt.Errorf("%w: bucket %q", ErrMalformedIndexEntry, name)
	}
	return IndexBucketName{Bucket: parts[1], Prefix: parts[2], Field: parts[3]}, nil
}

// IndexKey builds the key of an index record: <name>/<encoded-value>.
// encoded must already be escaped with codec.Encode.
func IndexKey(name, encoded string) string {
	return name + valueSeparator + encoded
}

// ParseIndexKey splits an index key on its first `/` and decodes the value
// segment, returning the local name and the value's canonical text.
func ParseIndexKey(key string) (name, value string, err error) {
	name, encoded, ok := strings.Cut(key, valueSeparator)
	if !ok {
		return "", "", fmt.Errorf("%w: key %q", ErrMalformedIndexEntry, key)
	}
	value, err = codec.Decode(encoded)
	if err != nil {
		return "", "", fmt.Errorf("%w: key %q: %v", ErrMalformedIndexEntry, key, err)
	}
	return name, value, nil
}
