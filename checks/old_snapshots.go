package checks

import (
	"fmt"
	"time"

	"github.com/kulu-io/kulu/cost"
	"github.com/kulu-io/kulu/types"
)

// OldSnapshots flags snapshots past the retention threshold. Savings
// are the snapshot's full cost; severity climbs a level once the
// snapshot is more than twice the threshold old.
type OldSnapshots struct{}

func (OldSnapshots) Name() string { return "old_snapshots" }

func (OldSnapshots) Kinds() []string { return []string{types.KindSnapshot} }

func (OldSnapshots) Evaluate(resource types.Resource, samples SampleSet, now time.Time, thresholds Thresholds) []types.Finding {
	if resource.CreatedAt.IsZero() {
		return nil
	}

	ageDays := int(now.Sub(resource.CreatedAt).Hours() / 24)
	if ageDays <= thresholds.SnapshotAgeDays {
		return nil
	}

	savings := cost.MonthlyCost(resource)
	severity := severityFromSavings(savings, thresholds)
	if ageDays > 2*thresholds.SnapshotAgeDays {
		severity = bumpSeverity(severity)
	}

	return []types.Finding{{
		ID:         findingID("old_snapshots", resource.ID),
		ResourceID: resource.ID,
		CheckName:  "old_snapshots",
		Severity:   severity,
		Description: fmt.Sprintf("Snapshot is %d days old (%.0f GB). Delete it unless retention policy requires it.",
			ageDays, resource.PropertyFloat("size_gb")),
		MonthlySavings: savings,
		Evidence: map[string]any{
			"age_days":       ageDays,
			"threshold_days": thresholds.SnapshotAgeDays,
			"size_gb":        resource.PropertyFloat("size_gb"),
			"created_at":     resource.CreatedAt.Format(time.RFC3339),
		},
		CreatedAt: now,
	}}
}
