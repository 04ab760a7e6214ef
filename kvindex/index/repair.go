package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wbrown/janus-kvindex/kvindex"
	"github.com/wbrown/janus-kvindex/kvindex/annotations"
	"github.com/wbrown/janus-kvindex/kvindex/codec"
	"github.com/wbrown/janus-kvindex/kvindex/storage"
)

// RepairReport summarizes one repair run
type RepairReport struct {
	Index    string
	DryRun   bool
	Scanned  int      // primary objects read
	Skipped  int      // primary objects that cannot be indexed
	Expected int      // index records the primary objects call for
	Existing int      // index records found in the index bucket
	Created  []string // index keys written (or that would be)
	Removed  []string // index keys deleted (or that would be)
}

// Clean reports whether the index already matched its primary objects
func (r RepairReport) Clean() bool {
	return len(r.Created) == 0 && len(r.Removed) == 0
}

// Repair reconciles one index with the primary objects it covers. Primary
// objects are the source of truth: missing index records are written and
// records no object accounts for are deleted. With dryRun nothing is
// changed and the report lists what would be.
func (c *Client) Repair(ctx context.Context, def *Definition, dryRun bool) (RepairReport, error) {
	if !def.valid() {
		return RepairReport{}, fmt.Errorf("%w: not built by NewDefinition", ErrInvalidDefinition)
	}
	if def.Client() != c {
		return RepairReport{}, fmt.Errorf("%w: %s", ErrNotBound, def.IndexBucket())
	}

	start := time.Now()
	collector := c.collector()
	idxBucket := def.IndexBucket()
	report := RepairReport{Index: idxBucket, DryRun: dryRun}

	expected, err := c.expectedIndexKeys(ctx, def, &report)
	if err != nil {
		return report, err
	}
	existing, err := c.scanKeys(ctx, idxBucket, nil)
	if err != nil {
		return report, fmt.Errorf("failed to scan %s: %w", idxBucket, err)
	}
	report.Expected = len(expected)
	report.Existing = len(existing)

	have := make(map[string]bool, len(existing))
	for _, k := range existing {
		have[k] = true
	}
	for _, k := range expected {
		if !have[k] {
			report.Created = append(report.Created, k)
		}
	}
	want := make(map[string]bool, len(expected))
	for _, k := range expected {
		want[k] = true
	}
	for _, k := range existing {
		if !want[k] {
			report.Removed = append(report.Removed, k)
		}
	}

	if !dryRun {
		for _, k := range report.Created {
			if err := c.store.Put(ctx, idxBucket, k, emptyIndexBody); err != nil {
				return report, fmt.Errorf("failed to write %s/%s: %w", idxBucket, k, err)
			}
			RepairChanges.WithLabelValues(idxBucket, "created").Inc()
		}
		for _, k := range report.Removed {
			if err := c.store.Delete(ctx, idxBucket, k); err != nil && !errors.Is(err, storage.ErrNotFound) {
				return report, fmt.Errorf("failed to remove %s/%s: %w", idxBucket, k, err)
			}
			RepairChanges.WithLabelValues(idxBucket, "removed").Inc()
		}
	}

	collector.AddTiming(annotations.RepairComplete, start, map[string]interface{}{
		"bucket":  idxBucket,
		"scanned": report.Scanned,
		"written": len(report.Created),
		"removed": len(report.Removed),
	})
	return report, nil
}

// expectedIndexKeys reads every primary object under the definition's
// prefix and returns the index keys they should have, sorted
func (c *Client) expectedIndexKeys(ctx context.Context, def *Definition, report *RepairReport) ([]string, error) {
	prefix := def.prefix + kvindex.KeySeparator
	keys, err := c.scanKeys(ctx, def.bucket, []storage.KeyFilter{
		storage.Filter("urldecode"),
		storage.Filter("starts_with", prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", def.bucket, err)
	}

	var expected []string
	for _, key := range keys {
		pk, err := kvindex.ParseKey(key)
		if err != nil || pk.Prefix != def.prefix {
			continue
		}
		body, err := c.store.Get(ctx, def.bucket, key)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get %s/%s: %w", def.bucket, key, err)
		}
		report.Scanned++

		data, err := decodeData(body)
		if err != nil {
			report.Skipped++
			continue
		}
		value, ok, err := fieldValue(data, def.field)
		if err != nil || !ok {
			if err != nil {
				report.Skipped++
			}
			continue
		}
		if strings.Contains(pk.Name, "/") {
			report.Skipped++
			continue
		}
		expected = append(expected, kvindex.IndexKey(pk.Name, value))
	}
	sort.Strings(expected)
	return expected, nil
}

// scanKeys lists the keys of bucket that pass filters, unescaped
func (c *Client) scanKeys(ctx context.Context, bucket string, filters []storage.KeyFilter) ([]string, error) {
	job := storage.NewJob(codec.Escape(bucket), filters...).Reduce(storage.IdentityReduce())
	job.Timeout = c.options.QueryTimeout

	matches, err := c.store.MapReduce(ctx, job)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		key, err := codec.Decode(m.Key)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", kvindex.ErrMalformedIndexEntry, m.Key, err)
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}
