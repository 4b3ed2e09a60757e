package checks

import (
	"fmt"
	"time"

	"github.com/kulu-io/kulu/cost"
	"github.com/kulu-io/kulu/types"
)

// IdleInstances flags running instances whose CPU and network activity
// both sit below the idle thresholds over the metrics window. Savings
// assume the instance can be stopped outright.
type IdleInstances struct{}

func (IdleInstances) Name() string { return "idle_instances" }

func (IdleInstances) Kinds() []string { return []string{types.KindInstance} }

func (IdleInstances) Evaluate(resource types.Resource, samples SampleSet, now time.Time, thresholds Thresholds) []types.Finding {
	if resource.Status != "running" {
		return nil
	}

	avgCPU, ok := samples.Average("cpu_utilization")
	if !ok || avgCPU >= thresholds.IdleCPUPercent {
		return nil
	}

	// Network data may be missing; absent series do not veto the
	// finding, present ones above the threshold do
	networkIn, hasIn := samples.Sum("network_in")
	networkOut, hasOut := samples.Sum("network_out")
	totalNetwork := networkIn + networkOut
	if (hasIn || hasOut) && totalNetwork >= thresholds.IdleNetworkBytes {
		return nil
	}

	savings := cost.MonthlyCost(resource)
	return []types.Finding{{
		ID:         findingID("idle_instances", resource.ID),
		ResourceID: resource.ID,
		CheckName:  "idle_instances",
		Severity:   severityFromSavings(savings, thresholds),
		Description: fmt.Sprintf("Instance %s averaged %.1f%% CPU over the last %d days. Stop or terminate it if the workload is gone.",
			resource.PropertyString("instance_type"), avgCPU, thresholds.MetricsWindowDays),
		MonthlySavings: savings,
		Evidence: map[string]any{
			"avg_cpu_percent":       avgCPU,
			"cpu_threshold_percent": thresholds.IdleCPUPercent,
			"network_bytes":         totalNetwork,
			"instance_type":         resource.PropertyString("instance_type"),
		},
		CreatedAt: now,
	}}
}
