package storage

import (
	"context"
	"fmt"

	"github.com/wbrown/janus-kvindex/kvindex/codec"
)

// scanFunc calls fn with every key of bucket, in store order
type scanFunc func(ctx context.Context, bucket string, fn func(key string) error) error

// runJob executes job the way the remote store does: filters are compiled
// up front, each key is presented in wire form, and the identity reduce
// returns the surviving bucket/key pairs.
func runJob(ctx context.Context, job *Job, scan scanFunc) ([]Match, error) {
	if job == nil {
		return nil, fmt.Errorf("%w: nil job", ErrInvalidFilter)
	}
	if err := job.validatePhases(); err != nil {
		return nil, err
	}

	bucket, err := codec.Unescape(job.Inputs.Bucket)
	if err != nil {
		return nil, fmt.Errorf("%w: bucket %q: %v", ErrInvalidName, job.Inputs.Bucket, err)
	}
	if err := checkName(bucket, "-"); err != nil {
		return nil, err
	}

	pipeline, err := compileFilters(job.Inputs.KeyFilters)
	if err != nil {
		return nil, err
	}

	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	wireBucket := codec.Escape(bucket)
	var matches []Match
	err = scan(ctx, bucket, func(key string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		wireKey := codec.Escape(key)
		ok, err := pipeline.accept(wireKey)
		if err != nil {
			return fmt.Errorf("key %q: %w", wireKey, err)
		}
		if ok {
			matches = append(matches, Match{Bucket: wireBucket, Key: wireKey})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mapreduce over %q: %w", bucket, err)
	}
	return matches, nil
}
