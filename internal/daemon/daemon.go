// Package daemon runs the collection and evaluation pipeline on a
// fixed interval: collect metrics, re-evaluate findings, prune
// samples past retention.
package daemon

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kulu-io/kulu/checks"
	"github.com/kulu-io/kulu/providers"
	"github.com/kulu-io/kulu/telemetry"
	"github.com/kulu-io/kulu/types"
)

// Runner executes one collection run
type Runner interface {
	Run(ctx context.Context, accounts []providers.Account) (types.CollectionRun, error)
}

// Evaluator produces the current findings report
type Evaluator interface {
	Evaluate(ctx context.Context, now time.Time) (checks.Report, error)
}

// FindingSink persists the findings of the latest evaluation
type FindingSink interface {
	ReplaceFindings(ctx context.Context, findings []types.Finding) error
}

// SamplePruner deletes samples older than the cutoff
type SamplePruner interface {
	DeleteSamplesBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Config holds daemon configuration
type Config struct {
	Interval  time.Duration
	Retention time.Duration
	Accounts  []providers.Account
}

// Daemon manages the continuous pipeline loop
type Daemon struct {
	collector Runner
	engine    Evaluator
	findings  FindingSink
	pruner    SamplePruner
	cfg       Config
	metrics   *Metrics
	logger    *telemetry.Logger

	startTime  time.Time
	cycleCount atomic.Int64

	now func() time.Time
}

// New creates a daemon instance
func New(runner Runner, engine Evaluator, findings FindingSink, pruner SamplePruner, cfg Config) (*Daemon, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", cfg.Interval)
	}
	metrics, err := NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to create daemon metrics: %w", err)
	}
	return &Daemon{
		collector: runner,
		engine:    engine,
		findings:  findings,
		pruner:    pruner,
		cfg:       cfg,
		metrics:   metrics,
		logger:    telemetry.NewLogger("daemon"),
		startTime: time.Now(),
		now:       time.Now,
	}, nil
}

// Start runs one cycle immediately, then one per interval until the
// context is cancelled
func (d *Daemon) Start(ctx context.Context) error {
	d.runCycle(ctx)

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.runCycle(ctx)
		}
	}
}

// runCycle never aborts the loop: a failing stage is logged and
// metered, and later stages still run on whatever state exists
func (d *Daemon) runCycle(ctx context.Context) {
	d.cycleCount.Add(1)
	start := d.now()
	status := "ok"

	run, err := d.collector.Run(ctx, d.cfg.Accounts)
	if err != nil {
		status = "error"
		d.logger.Error().Err(err).Msg("collection run failed")
	} else if run.Status != types.RunCompleted {
		status = string(run.Status)
	}

	if err := d.evaluate(ctx); err != nil {
		status = "error"
		d.logger.Error().Err(err).Msg("evaluation failed")
	}

	if d.cfg.Retention > 0 {
		d.prune(ctx)
	}

	d.metrics.RecordCycle(ctx, status, d.now().Sub(start).Seconds())
}

func (d *Daemon) evaluate(ctx context.Context) error {
	report, err := d.engine.Evaluate(ctx, d.now())
	if err != nil {
		return err
	}
	if err := d.findings.ReplaceFindings(ctx, report.Findings); err != nil {
		return fmt.Errorf("failed to persist findings: %w", err)
	}
	d.metrics.RecordFindings(ctx, len(report.Findings), report.TotalMonthlySavings)
	return nil
}

func (d *Daemon) prune(ctx context.Context) {
	cutoff := d.now().Add(-d.cfg.Retention)
	deleted, err := d.pruner.DeleteSamplesBefore(ctx, cutoff)
	if err != nil {
		d.logger.Error().Err(err).Msg("retention sweep failed")
		return
	}
	d.metrics.RecordPrunedSamples(ctx, deleted)
}

// Health returns daemon health status
func (d *Daemon) Health() HealthStatus {
	return HealthStatus{
		Status: "healthy",
		Uptime: int64(time.Since(d.startTime).Seconds()),
		Cycles: d.cycleCount.Load(),
	}
}

// HealthStatus reports liveness for the daemon's HTTP endpoint
type HealthStatus struct {
	Status string `json:"status"`
	Uptime int64  `json:"uptime_seconds"`
	Cycles int64  `json:"cycles"`
}

// CycleCount returns total pipeline cycles run
func (d *Daemon) CycleCount() int64 {
	return d.cycleCount.Load()
}
