package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics are the relay's conversation instruments
type Metrics struct {
	messages      metric.Int64Counter
	fallbacks     metric.Int64Counter
	transcripts   metric.Int64Counter
	genLatency    metric.Float64Histogram
	storageErrors metric.Int64Counter
}

// NewMetrics registers instruments on the global meter provider
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithMeter(otel.Meter(InstrumentationName))
}

// NewMetricsWithMeter registers instruments on meter
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)

	if m.messages, err = meter.Int64Counter("chat_messages_total",
		metric.WithDescription("Chat messages handled")); err != nil {
		return nil, err
	}
	if m.fallbacks, err = meter.Int64Counter("chat_fallbacks_total",
		metric.WithDescription("Replies substituted with a fallback, by reason")); err != nil {
		return nil, err
	}
	if m.transcripts, err = meter.Int64Counter("chat_transcriptions_total",
		metric.WithDescription("Transcription requests, by outcome")); err != nil {
		return nil, err
	}
	if m.genLatency, err = meter.Float64Histogram("chat_generation_duration_seconds",
		metric.WithDescription("Time spent waiting on the generation service"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.storageErrors, err = meter.Int64Counter("chat_storage_errors_total",
		metric.WithDescription("Failed reads or writes of session state")); err != nil {
		return nil, err
	}

	return &m, nil
}

// MessageHandled counts one orchestrated chat message
func (m *Metrics) MessageHandled(ctx context.Context) {
	if m == nil {
		return
	}
	m.messages.Add(ctx, 1)
}

// FallbackUsed counts a masked generation outcome
func (m *Metrics) FallbackUsed(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// TranscriptionDone counts a transcription by outcome
func (m *Metrics) TranscriptionDone(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.transcripts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// GenerationTook records a generation call's latency
func (m *Metrics) GenerationTook(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.genLatency.Record(ctx, d.Seconds())
}

// StorageFailed counts a storage error in step
func (m *Metrics) StorageFailed(ctx context.Context, step string) {
	if m == nil {
		return
	}
	m.storageErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("step", step)))
}
