package storage

import (
	"context"
	"time"

	"github.com/kulu-io/kulu/types"
)

// Inventory tracks the resources we know about
type Inventory interface {
	UpsertResource(ctx context.Context, resource types.Resource, now time.Time) error
	UpsertResourceBatch(ctx context.Context, resources []types.Resource, now time.Time) error
	GetResource(ctx context.Context, id string) (types.Resource, error)
	ListResources(ctx context.Context, filter types.ResourceFilter) ([]types.Resource, error)
}

// TimeSeries persists and queries metric samples
type TimeSeries interface {
	BulkUpsertSamples(ctx context.Context, samples []types.MetricSample) error
	QuerySamples(ctx context.Context, resourceID, metricName string, agg types.Aggregation, from, to time.Time) ([]types.MetricSample, error)
	DeleteSamplesBefore(ctx context.Context, cutoff time.Time) (deleted int, err error)
}

// RunLog records collection run lifecycles
type RunLog interface {
	SaveRun(ctx context.Context, run types.CollectionRun) error
	GetRun(ctx context.Context, id string) (types.CollectionRun, error)
	ListRuns(ctx context.Context, limit int) ([]types.CollectionRun, error)
}

// FindingStore holds the latest analysis output
type FindingStore interface {
	ReplaceFindings(ctx context.Context, findings []types.Finding) error
	ListFindings(ctx context.Context) ([]types.Finding, error)
}

// Lifecycle manages storage lifecycle
type Lifecycle interface {
	Close() error
}

// Storage is the complete persistence surface
type Storage interface {
	Inventory
	TimeSeries
	RunLog
	FindingStore
	Lifecycle
}
