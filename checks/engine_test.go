package checks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kulu-io/kulu/storage"
	"github.com/kulu-io/kulu/types"
)

func newTestEngine(t *testing.T, registry *Registry) (*Engine, *storage.Store) {
	t.Helper()
	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewEngine(store, store, registry, DefaultThresholds()), store
}

func seedScenario(t *testing.T, store *storage.Store) {
	t.Helper()
	ctx := context.Background()

	volume := detachedVolume(10)
	idle := runningInstance("m5.large")
	busy := runningInstance("m5.xlarge")
	busy.ID = "aws:111:us-east-1:i-busy"

	require.NoError(t, store.UpsertResourceBatch(ctx, []types.Resource{volume, idle, busy}, evalNow))
	require.NoError(t, store.BulkUpsertSamples(ctx, cpuSamples(idle.ID, 1, 2, 2)))
	require.NoError(t, store.BulkUpsertSamples(ctx, cpuSamples(busy.ID, 70, 80, 90)))
}

func TestEngineEvaluate(t *testing.T) {
	engine, store := newTestEngine(t, NewDefaultRegistry())
	seedScenario(t, store)

	report, err := engine.Evaluate(context.Background(), evalNow)
	require.NoError(t, err)

	assert.Equal(t, 3, report.ResourcesEvaluated)
	assert.Empty(t, report.Failures)

	var names []string
	for _, f := range report.Findings {
		names = append(names, f.CheckName)
	}
	assert.Contains(t, names, "unattached_volumes")
	assert.Contains(t, names, "idle_instances")
	assert.NotContains(t, names, "oversized_instances", "busy instance must not be flagged")

	var total float64
	for _, f := range report.Findings {
		total += f.MonthlySavings
	}
	assert.Equal(t, total, report.TotalMonthlySavings)

	// Ranked by severity then savings
	for i := 1; i < len(report.Findings); i++ {
		prev, cur := report.Findings[i-1], report.Findings[i]
		if prev.Severity == cur.Severity {
			assert.GreaterOrEqual(t, prev.MonthlySavings, cur.MonthlySavings)
		} else {
			assert.Greater(t, prev.Severity.Rank(), cur.Severity.Rank())
		}
	}
}

func TestEngineDeterministic(t *testing.T) {
	engine, store := newTestEngine(t, NewDefaultRegistry())
	seedScenario(t, store)

	first, err := engine.Evaluate(context.Background(), evalNow)
	require.NoError(t, err)
	second, err := engine.Evaluate(context.Background(), evalNow)
	require.NoError(t, err)

	assert.Equal(t, first.Findings, second.Findings)
	assert.Equal(t, first.TotalMonthlySavings, second.TotalMonthlySavings)
}

type panickingCheck struct{}

func (panickingCheck) Name() string    { return "panicking_check" }
func (panickingCheck) Kinds() []string { return []string{types.KindVolume} }
func (panickingCheck) Evaluate(types.Resource, SampleSet, time.Time, Thresholds) []types.Finding {
	panic("boom")
}

func TestEngineIsolatesCheckFailures(t *testing.T) {
	registry := NewDefaultRegistry()
	registry.Register(panickingCheck{})
	engine, store := newTestEngine(t, registry)
	seedScenario(t, store)

	report, err := engine.Evaluate(context.Background(), evalNow)
	require.NoError(t, err, "a failing check must not abort the pass")

	require.Len(t, report.Failures, 1)
	assert.Equal(t, "panicking_check", report.Failures[0].CheckName)
	assert.Equal(t, "aws:111:us-east-1:vol-1", report.Failures[0].ResourceID)

	var names []string
	for _, f := range report.Findings {
		names = append(names, f.CheckName)
	}
	assert.Contains(t, names, "unattached_volumes", "other checks still run on the same resource")
	assert.Contains(t, names, "idle_instances", "other resources still evaluated")
}

func TestEngineSkipsUnrelatedKinds(t *testing.T) {
	registry := NewRegistry()
	registry.Register(OldSnapshots{})
	engine, store := newTestEngine(t, registry)
	seedScenario(t, store)

	report, err := engine.Evaluate(context.Background(), evalNow)
	require.NoError(t, err)
	assert.Empty(t, report.Findings, "no snapshots in inventory, snapshot-only registry finds nothing")
	assert.Empty(t, report.Failures)
}
