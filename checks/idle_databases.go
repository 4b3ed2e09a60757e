package checks

import (
	"fmt"
	"time"

	"github.com/kulu-io/kulu/cost"
	"github.com/kulu-io/kulu/types"
)

// IdleDatabases flags available database instances whose connection
// count stayed below the idle threshold for the whole metrics window,
// average and peak both. Savings assume the database can be stopped
// or snapshotted and deleted.
type IdleDatabases struct{}

func (IdleDatabases) Name() string { return "idle_databases" }

func (IdleDatabases) Kinds() []string { return []string{types.KindDatabase} }

func (IdleDatabases) Evaluate(resource types.Resource, samples SampleSet, now time.Time, thresholds Thresholds) []types.Finding {
	if resource.Status != "available" {
		return nil
	}

	avgConnections, ok := samples.Average("database_connections")
	if !ok || avgConnections >= thresholds.IdleDatabaseConnections {
		return nil
	}

	// A brief connection burst means someone still uses it
	peakConnections, _ := samples.Max("database_connections")
	if peakConnections >= thresholds.IdleDatabaseConnections {
		return nil
	}

	savings := cost.MonthlyCost(resource)
	return []types.Finding{{
		ID:         findingID("idle_databases", resource.ID),
		ResourceID: resource.ID,
		CheckName:  "idle_databases",
		Severity:   severityFromSavings(savings, thresholds),
		Description: fmt.Sprintf("Database %s (%s) peaked at %.1f connections over the last %d days. Stop it, or snapshot and delete it if the application is gone.",
			resource.Name, resource.PropertyString("engine"), peakConnections, thresholds.MetricsWindowDays),
		MonthlySavings: savings,
		Evidence: map[string]any{
			"avg_connections":      avgConnections,
			"peak_connections":     peakConnections,
			"connection_threshold": thresholds.IdleDatabaseConnections,
			"instance_type":        resource.PropertyString("instance_type"),
			"engine":               resource.PropertyString("engine"),
		},
		CreatedAt: now,
	}}
}
