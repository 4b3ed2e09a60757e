package types

import (
	"fmt"
	"time"
)

// Aggregation is how raw datapoints are rolled up into one sample
type Aggregation string

const (
	AggAverage Aggregation = "average"
	AggMaximum Aggregation = "maximum"
	AggMinimum Aggregation = "minimum"
	AggTotal   Aggregation = "total"
	AggCount   Aggregation = "count"
)

// ValueRange bounds acceptable metric values, inclusive on both ends
type ValueRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// MetricDefinition describes an available metric for a resource kind.
// Definitions are static seed data and append-only.
type MetricDefinition struct {
	Name          string        `json:"name"`
	DisplayName   string        `json:"display_name"`
	Kind          string        `json:"kind"`
	Unit          string        `json:"unit"`
	Aggregations  []Aggregation `json:"aggregations"`
	ExpectedRange *ValueRange   `json:"expected_range,omitempty"`
}

// AllowsAggregation reports whether agg is valid for this metric
func (d MetricDefinition) AllowsAggregation(agg Aggregation) bool {
	for _, a := range d.Aggregations {
		if a == agg {
			return true
		}
	}
	return false
}

// PrimaryAggregation is the aggregation a collection run requests.
// The first listed aggregation is the primary one.
func (d MetricDefinition) PrimaryAggregation() Aggregation {
	if len(d.Aggregations) == 0 {
		return AggAverage
	}
	return d.Aggregations[0]
}

// MetricSample is one aggregated time-series data point. The composite
// key (ResourceID, MetricName, Timestamp, Aggregation) is unique; a
// retried collection for the same window overwrites rather than
// duplicates.
type MetricSample struct {
	ResourceID  string      `json:"resource_id"`
	MetricName  string      `json:"metric_name"`
	Timestamp   time.Time   `json:"timestamp"`
	Aggregation Aggregation `json:"aggregation"`
	Value       float64     `json:"value"`
	Unit        string      `json:"unit,omitempty"`
	RunID       string      `json:"collection_run_id,omitempty"`
}

// Key encodes the composite key. Keys for the same resource, metric and
// aggregation sort by timestamp ascending.
func (s MetricSample) Key() string {
	return SampleKey(s.ResourceID, s.MetricName, s.Aggregation, s.Timestamp)
}

// SampleKey builds a composite sample key
func SampleKey(resourceID, metricName string, agg Aggregation, ts time.Time) string {
	return fmt.Sprintf("%s|%s|%s|%020d", resourceID, metricName, agg, ts.UnixNano())
}

// SamplePrefix is the key prefix shared by all samples of one
// resource/metric/aggregation series
func SamplePrefix(resourceID, metricName string, agg Aggregation) string {
	return fmt.Sprintf("%s|%s|%s|", resourceID, metricName, agg)
}
