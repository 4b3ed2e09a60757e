package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kulu-io/kulu/checks"
	"github.com/kulu-io/kulu/providers"
	"github.com/kulu-io/kulu/types"
)

type fakeRunner struct {
	mu   sync.Mutex
	runs int
	err  error
}

func (f *fakeRunner) Run(_ context.Context, _ []providers.Account) (types.CollectionRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	if f.err != nil {
		return types.CollectionRun{Status: types.RunFailed}, f.err
	}
	return types.CollectionRun{Status: types.RunCompleted}, nil
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

type fakeEvaluator struct {
	mu     sync.Mutex
	calls  int
	report checks.Report
	err    error
}

func (f *fakeEvaluator) Evaluate(_ context.Context, _ time.Time) (checks.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.report, f.err
}

func (f *fakeEvaluator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSink struct {
	mu       sync.Mutex
	replaced [][]types.Finding
}

func (f *fakeSink) ReplaceFindings(_ context.Context, findings []types.Finding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaced = append(f.replaced, findings)
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.replaced)
}

type fakePruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
}

func (f *fakePruner) DeleteSamplesBefore(_ context.Context, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return 3, nil
}

func newTestDaemon(t *testing.T, runner Runner, engine Evaluator, sink FindingSink, pruner SamplePruner, cfg Config) *Daemon {
	t.Helper()
	d, err := New(runner, engine, sink, pruner, cfg)
	require.NoError(t, err)
	return d
}

func TestNewRejectsZeroInterval(t *testing.T) {
	_, err := New(&fakeRunner{}, &fakeEvaluator{}, &fakeSink{}, &fakePruner{}, Config{})
	assert.Error(t, err)
}

func TestStartRunsCycleImmediately(t *testing.T) {
	runner := &fakeRunner{}
	engine := &fakeEvaluator{}
	sink := &fakeSink{}
	d := newTestDaemon(t, runner, engine, sink, &fakePruner{}, Config{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	require.Eventually(t, func() bool { return d.CycleCount() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, 1, runner.count())
	assert.Equal(t, 1, engine.count())
	assert.Equal(t, 1, sink.count())
}

func TestStartRepeatsOnInterval(t *testing.T) {
	runner := &fakeRunner{}
	d := newTestDaemon(t, runner, &fakeEvaluator{}, &fakeSink{}, &fakePruner{},
		Config{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	require.Eventually(t, func() bool { return d.CycleCount() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestCycleEvaluatesDespiteCollectionFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("credentials expired")}
	engine := &fakeEvaluator{report: checks.Report{
		Findings: []types.Finding{{ID: "unattached_volumes/vol-1"}},
	}}
	sink := &fakeSink{}
	d := newTestDaemon(t, runner, engine, sink, &fakePruner{}, Config{Interval: time.Hour})

	d.runCycle(context.Background())

	assert.Equal(t, 1, engine.count())
	require.Equal(t, 1, sink.count())
	assert.Len(t, sink.replaced[0], 1)
}

func TestCyclePrunesWithRetentionCutoff(t *testing.T) {
	pruner := &fakePruner{}
	d := newTestDaemon(t, &fakeRunner{}, &fakeEvaluator{}, &fakeSink{}, pruner,
		Config{Interval: time.Hour, Retention: 30 * 24 * time.Hour})

	fixed := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return fixed }

	d.runCycle(context.Background())

	require.Len(t, pruner.cutoffs, 1)
	assert.Equal(t, fixed.Add(-30*24*time.Hour), pruner.cutoffs[0])
}

func TestCycleSkipsPruneWithoutRetention(t *testing.T) {
	pruner := &fakePruner{}
	d := newTestDaemon(t, &fakeRunner{}, &fakeEvaluator{}, &fakeSink{}, pruner,
		Config{Interval: time.Hour})

	d.runCycle(context.Background())

	assert.Empty(t, pruner.cutoffs)
}

func TestHealth(t *testing.T) {
	d := newTestDaemon(t, &fakeRunner{}, &fakeEvaluator{}, &fakeSink{}, &fakePruner{},
		Config{Interval: time.Hour})

	d.runCycle(context.Background())
	d.runCycle(context.Background())

	health := d.Health()
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, int64(2), health.Cycles)
}
