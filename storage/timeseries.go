package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/kulu-io/kulu/types"
)

var keyLastRetentionSweep = []byte("last_retention_sweep")

// BulkUpsertSamples writes a batch of samples in one transaction.
// Sample keys are composite (resource, metric, aggregation, timestamp),
// so replaying a window overwrites instead of duplicating.
func (s *Store) BulkUpsertSamples(ctx context.Context, samples []types.MetricSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSamples)

		for i := range samples {
			value, err := json.Marshal(samples[i])
			if err != nil {
				return fmt.Errorf("failed to marshal sample %s: %w", samples[i].Key(), err)
			}
			if err := bucket.Put([]byte(samples[i].Key()), value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write %d samples: %w", len(samples), err)
	}
	return nil
}

// QuerySamples returns one series between from and to inclusive,
// ordered by timestamp ascending. Key layout makes this a single
// cursor range scan.
func (s *Store) QuerySamples(ctx context.Context, resourceID, metricName string, agg types.Aggregation, from, to time.Time) ([]types.MetricSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(types.SamplePrefix(resourceID, metricName, agg))
	seek := []byte(types.SampleKey(resourceID, metricName, agg, from))

	var results []types.MetricSample
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketSamples).Cursor()

		for k, v := c.Seek(seek); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var sample types.MetricSample
			if err := json.Unmarshal(v, &sample); err != nil {
				return fmt.Errorf("corrupt sample record %s: %w", k, err)
			}
			if sample.Timestamp.After(to) {
				break
			}
			results = append(results, sample)
		}
		return nil
	})
	return results, err
}

// DeleteSamplesBefore removes all samples older than cutoff and
// records the sweep time. Each batch acquires and releases the store
// lock, so concurrent sample writers interleave with a long sweep
// instead of blocking behind it.
func (s *Store) DeleteSamplesBefore(ctx context.Context, cutoff time.Time) (int, error) {
	const batchSize = 1000
	start := time.Now()
	deleted := 0

	for {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		batch, err := s.expiredSampleKeys(cutoff, batchSize)
		if err != nil {
			return deleted, err
		}
		if len(batch) == 0 {
			break
		}

		if err := s.deleteSampleKeys(batch); err != nil {
			return deleted, err
		}
		deleted += len(batch)
	}

	s.mu.Lock()
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyLastRetentionSweep, int64ToBytes(time.Now().UnixNano()))
	})
	s.mu.Unlock()
	if err != nil {
		return deleted, err
	}

	s.logger.LogRetentionSweep(ctx, deleted, float64(time.Since(start).Milliseconds()))
	return deleted, nil
}

func (s *Store) expiredSampleKeys(cutoff time.Time, limit int) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var batch [][]byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketSamples).Cursor()
		for k, v := c.First(); k != nil && len(batch) < limit; k, v = c.Next() {
			var sample types.MetricSample
			if err := json.Unmarshal(v, &sample); err != nil {
				return fmt.Errorf("corrupt sample record %s: %w", k, err)
			}
			if sample.Timestamp.Before(cutoff) {
				key := make([]byte, len(k))
				copy(key, k)
				batch = append(batch, key)
			}
		}
		return nil
	})
	return batch, err
}

func (s *Store) deleteSampleKeys(batch [][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSamples)
		for _, key := range batch {
			if err := bucket.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// LastRetentionSweep returns when retention last ran, zero if never
func (s *Store) LastRetentionSweep(ctx context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	var nanos int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket(bucketMeta).Get(keyLastRetentionSweep); data != nil {
			nanos = bytesToInt64(data)
		}
		return nil
	})
	if err != nil || nanos == 0 {
		return time.Time{}, err
	}
	return time.Unix(0, nanos), nil
}
