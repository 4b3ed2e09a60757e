package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/kulu-io/kulu/storage"
	"github.com/kulu-io/kulu/telemetry"
	"github.com/kulu-io/kulu/types"
)

// flusher batches accepted samples and lands them with bulk writes,
// by count or by elapsed time, whichever comes first. A failed flush
// keeps its samples in memory and retries on the next trigger; only
// after the final-drain retries are exhausted is the batch recorded as
// a persistence failure.
type flusher struct {
	series     storage.TimeSeries
	runID      string
	batchSize  int
	interval   time.Duration
	retries    int
	retryDelay time.Duration
	logger     *telemetry.Logger

	in   chan types.MetricSample
	done chan struct{}

	// Owned by the run goroutine until done is closed
	flushed int
	errors  []types.RunError
}

func newFlusher(series storage.TimeSeries, runID string, cfg Config, logger *telemetry.Logger) *flusher {
	return &flusher{
		series:     series,
		runID:      runID,
		batchSize:  cfg.BatchSize,
		interval:   cfg.FlushInterval,
		retries:    cfg.RetryAttempts,
		retryDelay: cfg.RetryBaseDelay,
		logger:     logger,
		in:         make(chan types.MetricSample, cfg.BatchSize),
		done:       make(chan struct{}),
	}
}

// submit queues one accepted sample. Blocks when the flusher is behind,
// which backpressures the workers instead of growing without bound.
func (f *flusher) submit(sample types.MetricSample) {
	f.in <- sample
}

// close stops intake, drains what is pending and reports totals. Must
// be called after all submitters have finished.
func (f *flusher) close() (flushed int, errors []types.RunError) {
	close(f.in)
	<-f.done
	return f.flushed, f.errors
}

func (f *flusher) run(ctx context.Context) {
	defer close(f.done)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	var pending []types.MetricSample
	for {
		select {
		case sample, ok := <-f.in:
			if !ok {
				f.drain(ctx, pending)
				return
			}
			pending = append(pending, sample)
			if len(pending) >= f.batchSize {
				pending = f.flush(ctx, pending)
			}
		case <-ticker.C:
			if len(pending) > 0 {
				pending = f.flush(ctx, pending)
			}
		}
	}
}

// flush attempts one bulk write. On failure the batch is returned
// intact for a later retry.
func (f *flusher) flush(ctx context.Context, pending []types.MetricSample) []types.MetricSample {
	if err := f.series.BulkUpsertSamples(ctx, pending); err != nil {
		f.logger.LogStorageError(ctx, "bulk_upsert_samples", err)
		return pending
	}

	f.flushed += len(pending)
	f.logger.LogBatchFlush(ctx, f.runID, len(pending))
	if telemetry.SamplesCollected != nil {
		telemetry.SamplesCollected.Add(ctx, int64(len(pending)))
	}
	if telemetry.StorageWrites != nil {
		telemetry.StorageWrites.Add(ctx, 1)
	}
	return nil
}

// drain makes the final flush attempts before giving up on a batch
func (f *flusher) drain(ctx context.Context, pending []types.MetricSample) {
	for attempt := 0; attempt < f.retries && len(pending) > 0; attempt++ {
		if attempt > 0 {
			time.Sleep(f.retryDelay)
		}
		pending = f.flush(ctx, pending)
	}

	if len(pending) > 0 {
		f.errors = append(f.errors, types.RunError{
			Kind:    types.ErrKindPersistence,
			Message: fmt.Sprintf("dropped %d samples after %d failed flush attempts", len(pending), f.retries),
		})
	}
}
