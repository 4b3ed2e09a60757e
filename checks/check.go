// Package checks turns inventory and metric state into findings. Each
// check is a pure function of its inputs plus an explicit now, so two
// evaluations over the same data always agree.
package checks

import (
	"fmt"
	"sort"
	"time"

	"github.com/kulu-io/kulu/types"
)

// Thresholds tunes every check. Passed explicitly to Evaluate, never
// read from ambient state.
type Thresholds struct {
	MetricsWindowDays       int
	UnattachedVolumeDays    int
	IdleCPUPercent          float64
	IdleNetworkBytes        float64
	OversizedCPUPercent     float64
	SnapshotAgeDays         int
	IdleDatabaseConnections float64
	HighMonthlySavings      float64
	CriticalMonthlySavings  float64
}

// DefaultThresholds returns the stock threshold model
func DefaultThresholds() Thresholds {
	return Thresholds{
		MetricsWindowDays:       14,
		UnattachedVolumeDays:    7,
		IdleCPUPercent:          5,
		IdleNetworkBytes:        5 * 1024 * 1024,
		OversizedCPUPercent:     40,
		SnapshotAgeDays:         90,
		IdleDatabaseConnections: 1,
		HighMonthlySavings:      100,
		CriticalMonthlySavings:  500,
	}
}

// SampleSet holds one resource's recent samples grouped by metric name
type SampleSet map[string][]types.MetricSample

// Average returns the mean value for a metric, false when no samples
func (s SampleSet) Average(metricName string) (float64, bool) {
	samples := s[metricName]
	if len(samples) == 0 {
		return 0, false
	}
	var sum float64
	for _, sample := range samples {
		sum += sample.Value
	}
	return sum / float64(len(samples)), true
}

// Max returns the peak value for a metric, false when no samples
func (s SampleSet) Max(metricName string) (float64, bool) {
	samples := s[metricName]
	if len(samples) == 0 {
		return 0, false
	}
	max := samples[0].Value
	for _, sample := range samples[1:] {
		if sample.Value > max {
			max = sample.Value
		}
	}
	return max, true
}

// Sum returns the total over all samples for a metric, false when none
func (s SampleSet) Sum(metricName string) (float64, bool) {
	samples := s[metricName]
	if len(samples) == 0 {
		return 0, false
	}
	var sum float64
	for _, sample := range samples {
		sum += sample.Value
	}
	return sum, true
}

// Check is one optimization rule. Evaluate must be pure: no I/O, no
// clock reads, no mutation of its inputs.
type Check interface {
	// Name is the unique check identifier
	Name() string

	// Kinds lists the resource kinds this check is interested in
	Kinds() []string

	// Evaluate inspects one resource and returns zero or more findings
	Evaluate(resource types.Resource, samples SampleSet, now time.Time, thresholds Thresholds) []types.Finding
}

// Registry holds the active check set
type Registry struct {
	checks map[string]Check
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{checks: make(map[string]Check)}
}

// NewDefaultRegistry returns a registry with every built-in check
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(UnattachedVolumes{})
	r.Register(IdleInstances{})
	r.Register(OversizedInstances{})
	r.Register(OldSnapshots{})
	r.Register(IdleDatabases{})
	return r
}

// Register adds a check, replacing any previous one with the same name
func (r *Registry) Register(check Check) {
	r.checks[check.Name()] = check
}

// All returns registered checks sorted by name for stable iteration
func (r *Registry) All() []Check {
	names := make([]string, 0, len(r.checks))
	for name := range r.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make([]Check, 0, len(names))
	for _, name := range names {
		checks = append(checks, r.checks[name])
	}
	return checks
}

// findingID builds the deterministic finding identity. The same
// check/resource pair always produces the same ID, so repeated
// evaluations are comparable.
func findingID(checkName, resourceID string) string {
	return fmt.Sprintf("%s/%s", checkName, resourceID)
}

// severityFromSavings maps monthly savings to severity. Checks may
// bump the result for aggravating factors, never lower it.
func severityFromSavings(savings float64, t Thresholds) types.Severity {
	switch {
	case savings > t.CriticalMonthlySavings:
		return types.SeverityCritical
	case savings > t.HighMonthlySavings:
		return types.SeverityHigh
	default:
		return types.SeverityMedium
	}
}

// bumpSeverity raises severity one level
func bumpSeverity(s types.Severity) types.Severity {
	switch s {
	case types.SeverityLow:
		return types.SeverityMedium
	case types.SeverityMedium:
		return types.SeverityHigh
	case types.SeverityHigh:
		return types.SeverityCritical
	}
	return s
}

// interestedIn reports whether a check covers the given kind
func interestedIn(check Check, kind string) bool {
	for _, k := range check.Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}
