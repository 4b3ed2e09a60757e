package checks

import (
	"fmt"
	"time"

	"github.com/kulu-io/kulu/cost"
	"github.com/kulu-io/kulu/types"
)

// UnattachedVolumes flags volumes detached long enough that deleting
// them is the obvious move. Savings are the volume's full cost;
// severity climbs a level once the volume has sat detached for more
// than twice the threshold.
type UnattachedVolumes struct{}

func (UnattachedVolumes) Name() string { return "unattached_volumes" }

func (UnattachedVolumes) Kinds() []string { return []string{types.KindVolume} }

func (UnattachedVolumes) Evaluate(resource types.Resource, samples SampleSet, now time.Time, thresholds Thresholds) []types.Finding {
	if resource.PropertyBool("attached") {
		return nil
	}

	detachedAt, ok := detachedTime(resource)
	if !ok {
		return nil
	}

	daysUnattached := int(now.Sub(detachedAt).Hours() / 24)
	if daysUnattached < thresholds.UnattachedVolumeDays {
		return nil
	}

	savings := cost.MonthlyCost(resource)
	severity := severityFromSavings(savings, thresholds)
	if daysUnattached > 2*thresholds.UnattachedVolumeDays {
		severity = bumpSeverity(severity)
	}

	return []types.Finding{{
		ID:         findingID("unattached_volumes", resource.ID),
		ResourceID: resource.ID,
		CheckName:  "unattached_volumes",
		Severity:   severity,
		Description: fmt.Sprintf("Volume has been unattached for %d days (%0.f GB %s). Snapshot and delete it to stop paying for unused storage.",
			daysUnattached, resource.PropertyFloat("size_gb"), resource.PropertyString("volume_type")),
		MonthlySavings: savings,
		Evidence: map[string]any{
			"days_unattached": daysUnattached,
			"threshold_days":  thresholds.UnattachedVolumeDays,
			"size_gb":         resource.PropertyFloat("size_gb"),
			"volume_type":     resource.PropertyString("volume_type"),
			"detached_at":     detachedAt.Format(time.RFC3339),
		},
		CreatedAt: now,
	}}
}

// detachedTime reads when the volume lost its attachment. Volumes
// created detached and never attached fall back to creation time.
func detachedTime(resource types.Resource) (time.Time, bool) {
	if raw := resource.PropertyString("detached_at"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			return ts, true
		}
	}
	if !resource.CreatedAt.IsZero() {
		return resource.CreatedAt, true
	}
	return time.Time{}, false
}
