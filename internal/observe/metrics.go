// Package observe holds the OpenTelemetry instruments for the conversation
// pipeline and the Prometheus bridge that exposes them on /metrics.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/zhouzirui/locus/backend"

// Turn outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeTruncated = "truncated"
	OutcomeApology   = "apology"
	OutcomeCancelled = "cancelled"
)

// Metrics groups the instruments. A nil *Metrics is valid and records nothing,
// so services can run without a meter in tests and in the terminal client.
type Metrics struct {
	LLMDuration         metric.Float64Histogram
	TTSDuration         metric.Float64Histogram
	STTDuration         metric.Float64Histogram
	Turns               metric.Int64Counter
	ProviderErrors      metric.Int64Counter
	ActiveSessions      metric.Int64UpDownCounter
	HTTPRequestDuration metric.Float64Histogram
}

var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.LLMDuration, err = m.Float64Histogram("locus.llm.duration",
		metric.WithDescription("Time from turn start to the end of the reply stream."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("locus.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("locus.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("locus.turns",
		metric.WithDescription("Conversation turns by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("locus.provider.errors",
		metric.WithDescription("Provider errors by provider kind."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("locus.active_sessions",
		metric.WithDescription("Number of live conversation sessions."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("locus.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordTurn counts a finished turn and its model latency.
func (m *Metrics) RecordTurn(ctx context.Context, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.Turns.Add(ctx, 1, attrs)
	m.LLMDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordTTS records a synthesis call. Failures also bump the provider error counter.
func (m *Metrics) RecordTTS(ctx context.Context, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.TTSDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(statusAttr(err)))
	if err != nil {
		m.RecordProviderError(ctx, ProviderTTS)
	}
}

// RecordSTT records a transcription call.
func (m *Metrics) RecordSTT(ctx context.Context, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.STTDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(statusAttr(err)))
	if err != nil {
		m.RecordProviderError(ctx, ProviderSTT)
	}
}

// Provider kinds reported by RecordProviderError.
const (
	ProviderLLM = "llm"
	ProviderTTS = "tts"
	ProviderSTT = "stt"
)

// RecordProviderError counts a failed call to an upstream provider.
func (m *Metrics) RecordProviderError(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// SessionOpened and SessionClosed track the live session gauge.
func (m *Metrics) SessionOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, 1)
}

func (m *Metrics) SessionClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, -1)
}

func statusAttr(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String("status", "error")
	}
	return attribute.String("status", "ok")
}
