package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kulu-io/kulu/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testResource(id string) types.Resource {
	return types.Resource{
		ID:        id,
		Kind:      types.KindInstance,
		Name:      "web-server",
		Provider:  "aws",
		AccountID: "111",
		Location:  "us-east-1",
		Status:    "running",
		Tags:      map[string]string{"team": "platform"},
	}
}

func TestUpsertResourcePreservesCreatedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(24 * time.Hour)

	resource := testResource("aws:111:us-east-1:i-abc")
	if err := store.UpsertResource(ctx, resource, first); err != nil {
		t.Fatalf("UpsertResource() error = %v", err)
	}

	resource.Status = "stopped"
	resource.Tags = map[string]string{"team": "data"}
	if err := store.UpsertResource(ctx, resource, second); err != nil {
		t.Fatalf("UpsertResource() error = %v", err)
	}

	got, err := store.GetResource(ctx, resource.ID)
	if err != nil {
		t.Fatalf("GetResource() error = %v", err)
	}
	if !got.CreatedAt.Equal(first) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, first)
	}
	if !got.LastSeenAt.Equal(second) {
		t.Errorf("LastSeenAt = %v, want %v", got.LastSeenAt, second)
	}
	if got.Status != "stopped" {
		t.Errorf("Status = %q, want stopped", got.Status)
	}
	if got.Tags["team"] != "data" {
		t.Errorf("Tags[team] = %q, want data (tags replaced on update)", got.Tags["team"])
	}

	all, err := store.ListResources(ctx, types.ResourceFilter{})
	if err != nil {
		t.Fatalf("ListResources() error = %v", err)
	}
	if len(all) != 1 {
		t.Errorf("resource count = %d, want 1 (upsert must not duplicate)", len(all))
	}
}

func TestUpsertKeepsProviderCreationTime(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	launched := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	resource := testResource("aws:111:us-east-1:i-abc")
	resource.CreatedAt = launched

	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	if err := store.UpsertResource(ctx, resource, now); err != nil {
		t.Fatalf("UpsertResource() error = %v", err)
	}

	got, err := store.GetResource(ctx, resource.ID)
	if err != nil {
		t.Fatalf("GetResource() error = %v", err)
	}
	if !got.CreatedAt.Equal(launched) {
		t.Errorf("CreatedAt = %v, want provider launch time %v", got.CreatedAt, launched)
	}
}

func TestGetResourceNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetResource(context.Background(), "aws:111:us-east-1:i-missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetResource() error = %v, want ErrNotFound", err)
	}
}

func TestListResourcesFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	instance := testResource("aws:111:us-east-1:i-abc")
	volume := testResource("aws:111:us-east-1:vol-1")
	volume.Kind = types.KindVolume
	volume.Tags = map[string]string{"team": "data"}
	other := testResource("aws:222:eu-west-1:i-def")
	other.AccountID = "222"

	if err := store.UpsertResourceBatch(ctx, []types.Resource{instance, volume, other}, now); err != nil {
		t.Fatalf("UpsertResourceBatch() error = %v", err)
	}

	tests := []struct {
		name   string
		filter types.ResourceFilter
		want   int
	}{
		{"all", types.ResourceFilter{}, 3},
		{"by kind", types.ResourceFilter{Kind: types.KindVolume}, 1},
		{"by account", types.ResourceFilter{AccountID: "111"}, 2},
		{"by tag", types.ResourceFilter{Tags: map[string]string{"team": "platform"}}, 2},
		{"by ids", types.ResourceFilter{IDs: []string{instance.ID, other.ID}}, 2},
		{"no match", types.ResourceFilter{Kind: types.KindSnapshot}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListResources(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListResources() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d resources, want %d", len(got), tt.want)
			}
		})
	}
}

func TestIndexSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := store.UpsertResource(ctx, testResource("aws:111:us-east-1:i-abc"), time.Now()); err != nil {
		t.Fatalf("UpsertResource() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	got, err := reopened.ListResources(ctx, types.ResourceFilter{Kind: types.KindInstance})
	if err != nil {
		t.Fatalf("ListResources() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d resources after reopen, want 1", len(got))
	}
}

func sampleAt(resourceID string, ts time.Time, value float64) types.MetricSample {
	return types.MetricSample{
		ResourceID:  resourceID,
		MetricName:  "cpu_utilization",
		Timestamp:   ts,
		Aggregation: types.AggAverage,
		Value:       value,
		Unit:        "percent",
	}
}

func TestBulkUpsertSamplesIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	batch := []types.MetricSample{
		sampleAt("aws:111:us-east-1:i-abc", base, 10),
		sampleAt("aws:111:us-east-1:i-abc", base.Add(5*time.Minute), 20),
		sampleAt("aws:111:us-east-1:i-abc", base.Add(10*time.Minute), 30),
	}

	if err := store.BulkUpsertSamples(ctx, batch); err != nil {
		t.Fatalf("BulkUpsertSamples() error = %v", err)
	}
	// Replaying the same window must overwrite, not duplicate
	batch[1].Value = 25
	if err := store.BulkUpsertSamples(ctx, batch); err != nil {
		t.Fatalf("BulkUpsertSamples() error = %v", err)
	}

	got, err := store.QuerySamples(ctx, "aws:111:us-east-1:i-abc", "cpu_utilization", types.AggAverage, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("QuerySamples() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d samples, want 3", len(got))
	}
	if got[1].Value != 25 {
		t.Errorf("overwritten sample value = %v, want 25", got[1].Value)
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Errorf("samples not in ascending timestamp order at %d", i)
		}
	}
}

func TestQuerySamplesBoundsAndSeries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	samples := []types.MetricSample{
		sampleAt("aws:111:us-east-1:vol-1", base, 1),
		sampleAt("aws:111:us-east-1:vol-1", base.Add(5*time.Minute), 2),
		sampleAt("aws:111:us-east-1:vol-1", base.Add(2*time.Hour), 3),
		// Same prefix up to the ID separator, different series
		sampleAt("aws:111:us-east-1:vol-10", base, 99),
	}
	if err := store.BulkUpsertSamples(ctx, samples); err != nil {
		t.Fatalf("BulkUpsertSamples() error = %v", err)
	}

	got, err := store.QuerySamples(ctx, "aws:111:us-east-1:vol-1", "cpu_utilization", types.AggAverage, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("QuerySamples() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d samples, want 2 (window bound and series isolation)", len(got))
	}
	for _, s := range got {
		if s.ResourceID != "aws:111:us-east-1:vol-1" {
			t.Errorf("sample from wrong series: %s", s.ResourceID)
		}
	}
}

func TestDeleteSamplesBefore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	samples := []types.MetricSample{
		sampleAt("aws:111:us-east-1:i-abc", base.Add(-48*time.Hour), 1),
		sampleAt("aws:111:us-east-1:i-abc", base.Add(-24*time.Hour), 2),
		sampleAt("aws:111:us-east-1:i-abc", base, 3),
	}
	if err := store.BulkUpsertSamples(ctx, samples); err != nil {
		t.Fatalf("BulkUpsertSamples() error = %v", err)
	}

	deleted, err := store.DeleteSamplesBefore(ctx, base.Add(-12*time.Hour))
	if err != nil {
		t.Fatalf("DeleteSamplesBefore() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	got, err := store.QuerySamples(ctx, "aws:111:us-east-1:i-abc", "cpu_utilization", types.AggAverage, base.Add(-72*time.Hour), base)
	if err != nil {
		t.Fatalf("QuerySamples() error = %v", err)
	}
	if len(got) != 1 || got[0].Value != 3 {
		t.Errorf("surviving samples = %v, want only the newest", got)
	}

	sweep, err := store.LastRetentionSweep(ctx)
	if err != nil {
		t.Fatalf("LastRetentionSweep() error = %v", err)
	}
	if sweep.IsZero() {
		t.Error("LastRetentionSweep() is zero after a sweep")
	}
}

func TestDeleteSamplesBeforeAllowsConcurrentWrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	old := make([]types.MetricSample, 0, 20000)
	for i := 0; i < 20000; i++ {
		id := fmt.Sprintf("aws:111:us-east-1:i-%05d", i)
		old = append(old, sampleAt(id, base.Add(-24*time.Hour), 1))
	}
	if err := store.BulkUpsertSamples(ctx, old); err != nil {
		t.Fatalf("BulkUpsertSamples() error = %v", err)
	}

	sweepStart := time.Now()
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		if _, err := store.DeleteSamplesBefore(ctx, base); err != nil {
			t.Errorf("DeleteSamplesBefore() error = %v", err)
		}
	}()

	// Let the sweep get into its batch loop before writing.
	time.Sleep(2 * time.Millisecond)

	fresh := sampleAt("aws:111:us-east-1:i-live", base.Add(time.Hour), 42)
	writeStart := time.Now()
	if err := store.BulkUpsertSamples(ctx, []types.MetricSample{fresh}); err != nil {
		t.Fatalf("BulkUpsertSamples() during sweep error = %v", err)
	}
	writeLatency := time.Since(writeStart)

	<-sweepDone
	sweepDuration := time.Since(sweepStart)

	// A writer must slot in between batches rather than wait for the
	// whole sweep. Skip the latency check if the sweep was too quick
	// to measure against.
	if sweepDuration > 50*time.Millisecond && writeLatency > sweepDuration/2 {
		t.Errorf("write blocked %v during a %v sweep", writeLatency, sweepDuration)
	}

	got, err := store.QuerySamples(ctx, "aws:111:us-east-1:i-live", "cpu_utilization", types.AggAverage, base, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("QuerySamples() error = %v", err)
	}
	if len(got) != 1 || got[0].Value != 42 {
		t.Errorf("sample written during sweep = %v, want to survive", got)
	}

	_, sampleCount, _, err := store.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if sampleCount != 1 {
		t.Errorf("sampleCount = %d, want 1 survivor", sampleCount)
	}
}

func TestRunLifecyclePersistence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	run := types.CollectionRun{ID: "run-1", StartedAt: start, Status: types.RunRunning}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	end := start.Add(time.Minute)
	run.Status = types.RunCompleted
	run.EndedAt = &end
	run.MetricsCollected = 72
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Status != types.RunCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.MetricsCollected != 72 {
		t.Errorf("MetricsCollected = %d, want 72", got.MetricsCollected)
	}

	later := types.CollectionRun{ID: "run-2", StartedAt: start.Add(time.Hour), Status: types.RunFailed}
	if err := store.SaveRun(ctx, later); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	runs, err := store.ListRuns(ctx, 1)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-2" {
		t.Errorf("ListRuns(1) = %v, want newest run only", runs)
	}
}

func TestReplaceFindingsIsWholesale(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := []types.Finding{
		{ID: "idle_instances/aws:111:us-east-1:i-abc", Severity: types.SeverityLow, MonthlySavings: 5},
		{ID: "unattached_volumes/aws:111:us-east-1:vol-1", Severity: types.SeverityHigh, MonthlySavings: 40},
	}
	if err := store.ReplaceFindings(ctx, first); err != nil {
		t.Fatalf("ReplaceFindings() error = %v", err)
	}

	second := []types.Finding{
		{ID: "old_snapshots/aws:111:us-east-1:snap-1", Severity: types.SeverityMedium, MonthlySavings: 12},
	}
	if err := store.ReplaceFindings(ctx, second); err != nil {
		t.Fatalf("ReplaceFindings() error = %v", err)
	}

	got, err := store.ListFindings(ctx)
	if err != nil {
		t.Fatalf("ListFindings() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != second[0].ID {
		t.Errorf("ListFindings() = %v, want only the latest evaluation", got)
	}
}

func TestListFindingsRanked(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	findings := []types.Finding{
		{ID: "a", Severity: types.SeverityLow, MonthlySavings: 100},
		{ID: "b", Severity: types.SeverityCritical, MonthlySavings: 10},
		{ID: "c", Severity: types.SeverityHigh, MonthlySavings: 50},
		{ID: "d", Severity: types.SeverityHigh, MonthlySavings: 80},
	}
	if err := store.ReplaceFindings(ctx, findings); err != nil {
		t.Fatalf("ReplaceFindings() error = %v", err)
	}

	got, err := store.ListFindings(ctx)
	if err != nil {
		t.Fatalf("ListFindings() error = %v", err)
	}

	wantOrder := []string{"b", "d", "c", "a"}
	for i, want := range wantOrder {
		if got[i].ID != want {
			t.Errorf("position %d = %s, want %s", i, got[i].ID, want)
		}
	}
}

func TestStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertResource(ctx, testResource("aws:111:us-east-1:i-abc"), time.Now()); err != nil {
		t.Fatalf("UpsertResource() error = %v", err)
	}
	if err := store.BulkUpsertSamples(ctx, []types.MetricSample{sampleAt("aws:111:us-east-1:i-abc", time.Now(), 1)}); err != nil {
		t.Fatalf("BulkUpsertSamples() error = %v", err)
	}

	resources, samples, size, err := store.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if resources != 1 {
		t.Errorf("resource count = %d, want 1", resources)
	}
	if samples != 1 {
		t.Errorf("sample count = %d, want 1", samples)
	}
	if size <= 0 {
		t.Errorf("db size = %d, want > 0", size)
	}
}
