package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/kulu-io/kulu/types"
)

// SaveRun writes a collection run keyed by ID. Called repeatedly as a
// run moves through its lifecycle; the last write wins.
func (s *Store) SaveRun(ctx context.Context, run types.CollectionRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run %s: %w", run.ID, err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).Put([]byte(run.ID), value)
	})
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun fetches one run by ID
func (s *Store) GetRun(ctx context.Context, id string) (types.CollectionRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return types.CollectionRun{}, err
	}

	var run types.CollectionRun
	err := s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(bucketRuns).Get([]byte(id))
		if value == nil {
			return fmt.Errorf("run %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(value, &run)
	})
	return run, err
}

// ListRuns returns runs newest first, at most limit (0 means all).
// Runs number in the hundreds at worst, so a full scan is fine.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]types.CollectionRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var runs []types.CollectionRun
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(k, v []byte) error {
			var run types.CollectionRun
			if err := json.Unmarshal(v, &run); err != nil {
				return fmt.Errorf("corrupt run record %s: %w", k, err)
			}
			runs = append(runs, run)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}
