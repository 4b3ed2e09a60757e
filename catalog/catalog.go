// Package catalog holds the seed metric definitions collected for each
// resource kind. The set is append-only; removing a definition would
// orphan stored samples.
package catalog

import "github.com/kulu-io/kulu/types"

var definitions = []types.MetricDefinition{
	{
		Name:          "cpu_utilization",
		DisplayName:   "CPU Utilization",
		Kind:          types.KindInstance,
		Unit:          "Percent",
		Aggregations:  []types.Aggregation{types.AggAverage, types.AggMaximum, types.AggMinimum},
		ExpectedRange: &types.ValueRange{Min: 0, Max: 100},
	},
	{
		Name:          "network_in",
		DisplayName:   "Network In",
		Kind:          types.KindInstance,
		Unit:          "Bytes",
		Aggregations:  []types.Aggregation{types.AggAverage, types.AggTotal},
		ExpectedRange: &types.ValueRange{Min: 0, Max: 1e15},
	},
	{
		Name:          "network_out",
		DisplayName:   "Network Out",
		Kind:          types.KindInstance,
		Unit:          "Bytes",
		Aggregations:  []types.Aggregation{types.AggAverage, types.AggTotal},
		ExpectedRange: &types.ValueRange{Min: 0, Max: 1e15},
	},
	{
		Name:          "volume_read_ops",
		DisplayName:   "Volume Read Operations",
		Kind:          types.KindVolume,
		Unit:          "Count",
		Aggregations:  []types.Aggregation{types.AggTotal, types.AggAverage},
		ExpectedRange: &types.ValueRange{Min: 0, Max: 1e12},
	},
	{
		Name:          "volume_write_ops",
		DisplayName:   "Volume Write Operations",
		Kind:          types.KindVolume,
		Unit:          "Count",
		Aggregations:  []types.Aggregation{types.AggTotal, types.AggAverage},
		ExpectedRange: &types.ValueRange{Min: 0, Max: 1e12},
	},
	{
		Name:          "database_connections",
		DisplayName:   "Database Connections",
		Kind:          types.KindDatabase,
		Unit:          "Count",
		Aggregations:  []types.Aggregation{types.AggAverage, types.AggMaximum},
		ExpectedRange: &types.ValueRange{Min: 0, Max: 1e6},
	},
}

// Definitions returns all seed metric definitions
func Definitions() []types.MetricDefinition {
	out := make([]types.MetricDefinition, len(definitions))
	copy(out, definitions)
	return out
}

// ForKind returns the definitions applicable to a resource kind
func ForKind(kind string) []types.MetricDefinition {
	var out []types.MetricDefinition
	for _, d := range definitions {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// Lookup finds a definition by metric name and resource kind
func Lookup(kind, name string) (types.MetricDefinition, bool) {
	for _, d := range definitions {
		if d.Kind == kind && d.Name == name {
			return d, true
		}
	}
	return types.MetricDefinition{}, false
}
