// Package storage persists the inventory, metric samples, collection
// runs and findings in a single embedded bbolt database. One file, no
// external services.
package storage

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/btree"
	"go.etcd.io/bbolt"

	"github.com/kulu-io/kulu/telemetry"
	"github.com/kulu-io/kulu/types"
)

// Bucket names in bbolt
var (
	bucketResources = []byte("resources")
	bucketSamples   = []byte("samples")
	bucketRuns      = []byte("runs")
	bucketFindings  = []byte("findings")
	bucketMeta      = []byte("meta")
)

// Store is the embedded database behind all persistence interfaces.
// Writes are serialized; reads take a shared lock.
type Store struct {
	mu sync.RWMutex

	// In-memory index over the inventory for fast filtered listing
	index *btree.BTreeG[*resourceEntry]

	db  *bbolt.DB
	dir string

	logger *telemetry.Logger
}

// resourceEntry is the indexed subset of a resource, enough to
// prefilter without touching disk
type resourceEntry struct {
	ID        string
	Kind      string
	Provider  string
	AccountID string
}

func lessByID(a, b *resourceEntry) bool { return a.ID < b.ID }

// Open opens (or creates) the database under dir
func Open(dir string) (*Store, error) {
	dbPath := filepath.Join(dir, "kulu.db")

	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketResources, bucketSamples, bucketRuns, bucketFindings, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	store := &Store{
		index:  btree.NewG[*resourceEntry](32, lessByID),
		db:     db,
		dir:    dir,
		logger: telemetry.NewLogger("storage"),
	}

	if err := store.rebuildIndex(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to rebuild index: %w", err)
	}

	return store, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Stats reports resource count, sample count and the database size
func (s *Store) Stats() (resourceCount int, sampleCount int, dbSizeBytes int64, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resourceCount = s.index.Len()

	err = s.db.View(func(tx *bbolt.Tx) error {
		sampleCount = tx.Bucket(bucketSamples).Stats().KeyN
		dbSizeBytes = tx.Size()
		return nil
	})
	return resourceCount, sampleCount, dbSizeBytes, err
}

func int64ToBytes(v int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return buf
}

func bytesToInt64(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

// Compile-time interface checks
var (
	_ Inventory    = (*Store)(nil)
	_ TimeSeries   = (*Store)(nil)
	_ RunLog       = (*Store)(nil)
	_ FindingStore = (*Store)(nil)
	_ Storage      = (*Store)(nil)
)

// entryFromResource builds the indexed view of a resource
func entryFromResource(r types.Resource) *resourceEntry {
	return &resourceEntry{
		ID:        r.ID,
		Kind:      r.Kind,
		Provider:  r.Provider,
		AccountID: r.AccountID,
	}
}
