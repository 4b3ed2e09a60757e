package checks

import (
	"fmt"
	"time"

	"github.com/kulu-io/kulu/cost"
	"github.com/kulu-io/kulu/types"
)

// downsizeTargets maps an instance type to the next size down. One
// family step halves the cost; peaking far below the threshold on a
// 2xlarge justifies skipping a size.
var downsizeTargets = map[string]string{
	"m5.2xlarge": "m5.xlarge",
	"m5.xlarge":  "m5.large",
	"c5.2xlarge": "c5.xlarge",
	"c5.xlarge":  "c5.large",
	"r5.xlarge":  "r5.large",
	"t3.large":   "t3.medium",
	"t3.medium":  "t3.small",
	"t3.small":   "t3.micro",
}

var doubleDownsizeTargets = map[string]string{
	"m5.2xlarge": "m5.large",
	"c5.2xlarge": "c5.large",
}

// OversizedInstances recommends downsizing instances whose peak CPU
// never approaches their capacity. Unlike IdleInstances this keeps the
// workload running, just on cheaper hardware.
type OversizedInstances struct{}

func (OversizedInstances) Name() string { return "oversized_instances" }

func (OversizedInstances) Kinds() []string { return []string{types.KindInstance} }

func (OversizedInstances) Evaluate(resource types.Resource, samples SampleSet, now time.Time, thresholds Thresholds) []types.Finding {
	if resource.Status != "running" {
		return nil
	}

	maxCPU, ok := samples.Max("cpu_utilization")
	if !ok || maxCPU >= thresholds.OversizedCPUPercent {
		return nil
	}

	// Skip instances the idle check already covers; a stopped
	// instance saves more than a smaller one
	avgCPU, _ := samples.Average("cpu_utilization")
	if avgCPU < thresholds.IdleCPUPercent {
		return nil
	}

	instanceType := resource.PropertyString("instance_type")
	target, reduction := recommendDownsize(instanceType, maxCPU, thresholds)
	if target == "" {
		return nil
	}

	monthly := cost.MonthlyCost(resource)
	savings := monthly * reduction

	severity := types.SeverityLow
	switch {
	case reduction > 0.5:
		severity = types.SeverityHigh
	case reduction > 0.3:
		severity = types.SeverityMedium
	}

	return []types.Finding{{
		ID:         findingID("oversized_instances", resource.ID),
		ResourceID: resource.ID,
		CheckName:  "oversized_instances",
		Severity:   severity,
		Description: fmt.Sprintf("Instance peaked at %.1f%% CPU. Downsize from %s to %s.",
			maxCPU, instanceType, target),
		MonthlySavings: savings,
		Evidence: map[string]any{
			"max_cpu_percent":       maxCPU,
			"avg_cpu_percent":       avgCPU,
			"cpu_threshold_percent": thresholds.OversizedCPUPercent,
			"current_type":          instanceType,
			"recommended_type":      target,
			"cost_reduction":        reduction,
		},
		CreatedAt: now,
	}}
}

// recommendDownsize picks the target size. Peaks under half the
// threshold on types with a two-step target drop two sizes.
func recommendDownsize(instanceType string, maxCPU float64, thresholds Thresholds) (string, float64) {
	if maxCPU < thresholds.OversizedCPUPercent/2 {
		if target, ok := doubleDownsizeTargets[instanceType]; ok {
			return target, 0.75
		}
	}
	if target, ok := downsizeTargets[instanceType]; ok {
		return target, 0.5
	}
	return "", 0
}
