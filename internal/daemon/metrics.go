package daemon

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kulu-io/kulu/telemetry"
)

// Metrics holds the daemon's operational metrics following OTEL
// semantic conventions. The active-findings gauge lives in the shared
// telemetry set so the one-shot CLI path reports through the same
// instrument.
type Metrics struct {
	cycles         metric.Int64Counter
	cycleDuration  metric.Float64Histogram
	monthlySavings metric.Float64Gauge
	samplesPruned  metric.Int64Counter
}

// NewMetrics creates the daemon's instrument set
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("kulu.daemon")

	cycles, err := meter.Int64Counter(
		"kulu.daemon.cycles",
		metric.WithDescription("Number of pipeline cycles run"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, err
	}

	cycleDuration, err := meter.Float64Histogram(
		"kulu.daemon.cycle.duration",
		metric.WithDescription("Duration of full pipeline cycles"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	monthlySavings, err := meter.Float64Gauge(
		"kulu.findings.monthly_savings",
		metric.WithDescription("Total estimated monthly savings across active findings"),
		metric.WithUnit("USD"),
	)
	if err != nil {
		return nil, err
	}

	samplesPruned, err := meter.Int64Counter(
		"kulu.storage.samples_pruned",
		metric.WithDescription("Samples deleted by retention sweeps"),
		metric.WithUnit("{sample}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		cycles:         cycles,
		cycleDuration:  cycleDuration,
		monthlySavings: monthlySavings,
		samplesPruned:  samplesPruned,
	}, nil
}

// RecordCycle records one pipeline cycle with its overall status
func (m *Metrics) RecordCycle(ctx context.Context, status string, durationSeconds float64) {
	m.cycles.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
	m.cycleDuration.Record(ctx, durationSeconds,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordFindings records the outcome of the latest evaluation
func (m *Metrics) RecordFindings(ctx context.Context, count int, savings float64) {
	if telemetry.FindingsActive != nil {
		telemetry.FindingsActive.Record(ctx, int64(count))
	}
	m.monthlySavings.Record(ctx, savings)
}

// RecordPrunedSamples records samples removed by a retention sweep
func (m *Metrics) RecordPrunedSamples(ctx context.Context, count int) {
	m.samplesPruned.Add(ctx, int64(count))
}
