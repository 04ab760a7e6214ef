package storage

import (
	"fmt"
	"strings"
)

// bucketTerminator separates the bucket from the key in the backing
// keyspace; bucketUpper is the first byte past it for range scans
const (
	bucketTerminator = 0x00
	bucketUpper      = 0x01
)

// concatBytes efficiently concatenates byte slices
func concatBytes(parts ...[]byte) []byte {
	size := 0
	for _, p := range parts {
		size += len(p)
	}

	result := make([]byte, size)
	offset := 0
	for _, p := range parts {
		copy(result[offset:], p)
		offset += len(p)
	}

	return result
}

// checkName rejects names the keyspace layout cannot represent
func checkName(bucket, key string) error {
	if bucket == "" || strings.IndexByte(bucket, bucketTerminator) >= 0 {
		return fmt.Errorf("%w: bucket %q", ErrInvalidName, bucket)
	}
	if key == "" {
		return fmt.Errorf("%w: empty key in bucket %q", ErrInvalidName, bucket)
	}
	return nil
}

// encodeStoreKey lays out bucket/key as bucket 0x00 key
func encodeStoreKey(bucket, key string) []byte {
	return concatBytes([]byte(bucket), []byte{bucketTerminator}, []byte(key))
}

// bucketRange returns the [start, end) range holding every key of bucket
func bucketRange(bucket string) (start, end []byte) {
	start = concatBytes([]byte(bucket), []byte{bucketTerminator})
	end = concatBytes([]byte(bucket), []byte{bucketUpper})
	return start, end
}
