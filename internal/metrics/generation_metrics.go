package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("codegen-metrics")

// Outcome labels for finished generations
const (
	OutcomeFailed    = "failed"
	OutcomeTimeout   = "timeout"
	OutcomeCancelled = "cancelled"
	OutcomeTransport = "transport_error"
)

// GenerationMetrics provides metrics collection for code generations
type GenerationMetrics struct {
	generationsStartedCounter   metric.Int64Counter
	generationsCompletedCounter metric.Int64Counter
	generationsFailedCounter    metric.Int64Counter
	filesGeneratedCounter       metric.Int64Counter
	generationDurationHistogram metric.Float64Histogram
	generationsActiveGauge      metric.Int64UpDownCounter
}

// NewGenerationMetrics creates a new generation metrics collector
func NewGenerationMetrics() (*GenerationMetrics, error) {
	generationsStartedCounter, err := meter.Int64Counter(
		"codegen.generations.started",
		metric.WithDescription("Total number of code generations started"),
		metric.WithUnit("{generation}"),
	)
	if err != nil {
		return nil, err
	}

	generationsCompletedCounter, err := meter.Int64Counter(
		"codegen.generations.completed",
		metric.WithDescription("Total number of code generations that produced files"),
		metric.WithUnit("{generation}"),
	)
	if err != nil {
		return nil, err
	}

	generationsFailedCounter, err := meter.Int64Counter(
		"codegen.generations.failed",
		metric.WithDescription("Total number of code generations that ended without files"),
		metric.WithUnit("{generation}"),
	)
	if err != nil {
		return nil, err
	}

	filesGeneratedCounter, err := meter.Int64Counter(
		"codegen.files.generated",
		metric.WithDescription("Total number of files materialized from generations"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, err
	}

	generationDurationHistogram, err := meter.Float64Histogram(
		"codegen.generation.duration",
		metric.WithDescription("Duration of code generation including polling, in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	generationsActiveGauge, err := meter.Int64UpDownCounter(
		"codegen.generations.active",
		metric.WithDescription("Number of generations currently being polled"),
		metric.WithUnit("{generation}"),
	)
	if err != nil {
		return nil, err
	}

	return &GenerationMetrics{
		generationsStartedCounter:   generationsStartedCounter,
		generationsCompletedCounter: generationsCompletedCounter,
		generationsFailedCounter:    generationsFailedCounter,
		filesGeneratedCounter:       filesGeneratedCounter,
		generationDurationHistogram: generationDurationHistogram,
		generationsActiveGauge:      generationsActiveGauge,
	}, nil
}

// RecordGenerationStarted records a new generation. A nil receiver records nothing.
func (gm *GenerationMetrics) RecordGenerationStarted(ctx context.Context, state string) {
	if gm == nil {
		return
	}
	gm.generationsStartedCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.String("session.state", state)),
	)
	gm.generationsActiveGauge.Add(ctx, 1)
}

// RecordGenerationCompleted records a generation that returned files
func (gm *GenerationMetrics) RecordGenerationCompleted(ctx context.Context, state string, files int, duration time.Duration) {
	if gm == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("session.state", state),
		attribute.String("status", "completed"),
	)
	gm.generationsCompletedCounter.Add(ctx, 1, attrs)
	gm.filesGeneratedCounter.Add(ctx, int64(files), attrs)
	gm.generationDurationHistogram.Record(ctx, duration.Seconds(), attrs)
	gm.generationsActiveGauge.Add(ctx, -1)
}

// RecordGenerationFailed records a generation that ended without files
func (gm *GenerationMetrics) RecordGenerationFailed(ctx context.Context, state, outcome string, duration time.Duration) {
	if gm == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("session.state", state),
		attribute.String("status", "failed"),
		attribute.String("outcome", outcome),
	)
	gm.generationsFailedCounter.Add(ctx, 1, attrs)
	gm.generationDurationHistogram.Record(ctx, duration.Seconds(), attrs)
	gm.generationsActiveGauge.Add(ctx, -1)
}
