package checks

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kulu-io/kulu/catalog"
	"github.com/kulu-io/kulu/storage"
	"github.com/kulu-io/kulu/telemetry"
	"github.com/kulu-io/kulu/types"
)

// CheckFailure records one check blowing up on one resource. Failures
// never abort the pass; the rest of the evaluation proceeds.
type CheckFailure struct {
	CheckName  string `json:"check_name"`
	ResourceID string `json:"resource_id"`
	Message    string `json:"message"`
}

// Report is one evaluation pass's output
type Report struct {
	Findings            []types.Finding `json:"findings"`
	Failures            []CheckFailure  `json:"failures,omitempty"`
	ResourcesEvaluated  int             `json:"resources_evaluated"`
	TotalMonthlySavings float64         `json:"total_monthly_savings"`
	EvaluatedAt         time.Time       `json:"evaluated_at"`
}

// Engine runs all registered checks over the current inventory and
// sample state. Evaluation reads a snapshot and is safe to run while
// collection is writing.
type Engine struct {
	inventory  storage.Inventory
	series     storage.TimeSeries
	registry   *Registry
	thresholds Thresholds
	logger     *telemetry.Logger
}

// NewEngine creates an evaluation engine
func NewEngine(inventory storage.Inventory, series storage.TimeSeries, registry *Registry, thresholds Thresholds) *Engine {
	return &Engine{
		inventory:  inventory,
		series:     series,
		registry:   registry,
		thresholds: thresholds,
		logger:     telemetry.NewLogger("checks"),
	}
}

// Evaluate runs every registered check against every resource of a
// kind it declares interest in. Deterministic for fixed inputs and
// now; findings come back ranked by severity then savings.
func (e *Engine) Evaluate(ctx context.Context, now time.Time) (Report, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "checks.evaluate")
	defer span.End()

	resources, err := e.inventory.ListResources(ctx, types.ResourceFilter{})
	if err != nil {
		return Report{}, fmt.Errorf("failed to list resources: %w", err)
	}

	report := Report{EvaluatedAt: now, ResourcesEvaluated: len(resources)}
	checks := e.registry.All()

	for _, resource := range resources {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}

		samples, err := e.loadSamples(ctx, resource, now)
		if err != nil {
			return Report{}, err
		}

		for _, check := range checks {
			if !interestedIn(check, resource.Kind) {
				continue
			}

			findings, failure := e.runCheck(check, resource, samples, now)
			if failure != nil {
				report.Failures = append(report.Failures, *failure)
				continue
			}
			report.Findings = append(report.Findings, findings...)
		}
	}

	sort.Slice(report.Findings, func(i, j int) bool {
		a, b := report.Findings[i], report.Findings[j]
		if a.Severity != b.Severity {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if a.MonthlySavings != b.MonthlySavings {
			return a.MonthlySavings > b.MonthlySavings
		}
		return a.ID < b.ID
	})

	for _, finding := range report.Findings {
		report.TotalMonthlySavings += finding.MonthlySavings
	}

	e.logger.WithContext(ctx).Info().
		Int("resources", report.ResourcesEvaluated).
		Int("findings", len(report.Findings)).
		Int("failures", len(report.Failures)).
		Float64("monthly_savings", report.TotalMonthlySavings).
		Msg("evaluation pass completed")

	return report, nil
}

// runCheck isolates one check invocation. A panicking check becomes a
// recorded failure, not a crashed pass.
func (e *Engine) runCheck(check Check, resource types.Resource, samples SampleSet, now time.Time) (findings []types.Finding, failure *CheckFailure) {
	defer func() {
		if r := recover(); r != nil {
			findings = nil
			failure = &CheckFailure{
				CheckName:  check.Name(),
				ResourceID: resource.ID,
				Message:    fmt.Sprintf("check panicked: %v", r),
			}
			e.logger.Error().
				Str("check", check.Name()).
				Str("resource_id", resource.ID).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("check failed, continuing evaluation")
		}
	}()

	return check.Evaluate(resource, samples, now, e.thresholds), nil
}

// loadSamples pulls the metrics window for every metric defined for
// the resource's kind
func (e *Engine) loadSamples(ctx context.Context, resource types.Resource, now time.Time) (SampleSet, error) {
	window := time.Duration(e.thresholds.MetricsWindowDays) * 24 * time.Hour
	from := now.Add(-window)

	samples := make(SampleSet)
	for _, def := range catalog.ForKind(resource.Kind) {
		series, err := e.series.QuerySamples(ctx, resource.ID, def.Name, def.PrimaryAggregation(), from, now)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s for %s: %w", def.Name, resource.ID, err)
		}
		if len(series) > 0 {
			samples[def.Name] = series
		}
	}
	return samples, nil
}
