package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/kulu-io/kulu/telemetry"
	"github.com/kulu-io/kulu/types"
)

// ErrNotFound is returned when a looked-up record does not exist
var ErrNotFound = errors.New("not found")

// UpsertResource inserts or updates one resource keyed by ID. Inserts
// stamp CreatedAt; updates keep the stored CreatedAt and replace every
// mutable field. LastSeenAt is refreshed either way.
func (s *Store) UpsertResource(ctx context.Context, resource types.Resource, now time.Time) error {
	return s.UpsertResourceBatch(ctx, []types.Resource{resource}, now)
}

// UpsertResourceBatch upserts resources in one transaction
func (s *Store) UpsertResourceBatch(ctx context.Context, resources []types.Resource, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketResources)

		for i := range resources {
			merged, err := mergeResource(bucket.Get([]byte(resources[i].ID)), resources[i], now)
			if err != nil {
				return err
			}

			value, err := json.Marshal(merged)
			if err != nil {
				return fmt.Errorf("failed to marshal resource %s: %w", merged.ID, err)
			}
			if err := bucket.Put([]byte(merged.ID), value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d resources: %w", len(resources), err)
	}

	for i := range resources {
		s.index.ReplaceOrInsert(entryFromResource(resources[i]))
	}
	if telemetry.ResourcesInStorage != nil {
		telemetry.ResourcesInStorage.Record(ctx, int64(s.index.Len()))
	}
	return nil
}

// mergeResource applies upsert semantics against the stored record
func mergeResource(stored []byte, incoming types.Resource, now time.Time) (types.Resource, error) {
	incoming.LastSeenAt = now

	if stored == nil {
		if incoming.CreatedAt.IsZero() {
			incoming.CreatedAt = now
		}
		return incoming, nil
	}

	var existing types.Resource
	if err := json.Unmarshal(stored, &existing); err != nil {
		return types.Resource{}, fmt.Errorf("failed to unmarshal stored resource %s: %w", incoming.ID, err)
	}

	// First-seen time survives updates; the provider's creation time
	// wins when it knows one, ours otherwise
	if incoming.CreatedAt.IsZero() {
		incoming.CreatedAt = existing.CreatedAt
	}
	return incoming, nil
}

// GetResource fetches one resource by ID
func (s *Store) GetResource(ctx context.Context, id string) (types.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return types.Resource{}, err
	}

	var resource types.Resource
	err := s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(bucketResources).Get([]byte(id))
		if value == nil {
			return fmt.Errorf("resource %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(value, &resource)
	})
	return resource, err
}

// ListResources returns resources matching the filter, ordered by ID.
// The in-memory index prefilters on kind, provider and account before
// loading full records.
func (s *Store) ListResources(ctx context.Context, filter types.ResourceFilter) ([]types.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var candidates []string
	s.index.Ascend(func(entry *resourceEntry) bool {
		if filter.Kind != "" && entry.Kind != filter.Kind {
			return true
		}
		if filter.AccountID != "" && entry.AccountID != filter.AccountID {
			return true
		}
		candidates = append(candidates, entry.ID)
		return true
	})

	var results []types.Resource
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketResources)
		for _, id := range candidates {
			value := bucket.Get([]byte(id))
			if value == nil {
				continue
			}
			var resource types.Resource
			if err := json.Unmarshal(value, &resource); err != nil {
				return fmt.Errorf("failed to unmarshal resource %s: %w", id, err)
			}
			if resource.Matches(filter) {
				results = append(results, resource)
			}
		}
		return nil
	})
	return results, err
}

// rebuildIndex loads every stored resource into the in-memory index
func (s *Store) rebuildIndex() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketResources).ForEach(func(k, v []byte) error {
			var resource types.Resource
			if err := json.Unmarshal(v, &resource); err != nil {
				return fmt.Errorf("corrupt resource record %s: %w", k, err)
			}
			s.index.ReplaceOrInsert(entryFromResource(resource))
			return nil
		})
	})
}
