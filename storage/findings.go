package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/kulu-io/kulu/types"
)

// ReplaceFindings swaps the stored findings for a fresh evaluation's
// output. Findings are derived data; each analysis replaces the
// previous set wholesale.
func (s *Store) ReplaceFindings(ctx context.Context, findings []types.Finding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketFindings); err != nil {
			return err
		}
		bucket, err := tx.CreateBucket(bucketFindings)
		if err != nil {
			return err
		}

		for i := range findings {
			value, err := json.Marshal(findings[i])
			if err != nil {
				return fmt.Errorf("failed to marshal finding %s: %w", findings[i].ID, err)
			}
			if err := bucket.Put([]byte(findings[i].ID), value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace findings: %w", err)
	}
	return nil
}

// ListFindings returns all stored findings ranked by severity, then
// monthly savings, then ID
func (s *Store) ListFindings(ctx context.Context) ([]types.Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var findings []types.Finding
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFindings).ForEach(func(k, v []byte) error {
			var finding types.Finding
			if err := json.Unmarshal(v, &finding); err != nil {
				return fmt.Errorf("corrupt finding record %s: %w", k, err)
			}
			findings = append(findings, finding)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Severity != findings[j].Severity {
			return findings[i].Severity.Rank() > findings[j].Severity.Rank()
		}
		if findings[i].MonthlySavings != findings[j].MonthlySavings {
			return findings[i].MonthlySavings > findings[j].MonthlySavings
		}
		return findings[i].ID < findings[j].ID
	})
	return findings, nil
}
