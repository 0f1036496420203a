package agent

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ira-ai-automation/agentpair/agent"

// Telemetry holds the runtime's counters and tracer. The zero providers are the
// otel globals, which are no-ops until the embedding program installs real ones.
type Telemetry struct {
	tracer trace.Tracer

	received       metric.Int64Counter
	handled        metric.Int64Counter
	handlerErrors  metric.Int64Counter
	behaviorRuns   metric.Int64Counter
	behaviorErrors metric.Int64Counter
	sent           metric.Int64Counter
	forwarded      metric.Int64Counter
	dropped        metric.Int64Counter
}

// NewTelemetry creates instruments from mp and tp; nil selects the otel globals.
func NewTelemetry(mp metric.MeterProvider, tp trace.TracerProvider) (*Telemetry, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	meter := mp.Meter(instrumentationName)
	t := &Telemetry{tracer: tp.Tracer(instrumentationName)}

	var err error
	if t.received, err = meter.Int64Counter("agent.messages.received",
		metric.WithDescription("Messages taken from an agent inbox")); err != nil {
		return nil, err
	}
	if t.handled, err = meter.Int64Counter("agent.handler.invocations",
		metric.WithDescription("Handler invocations for accepted messages")); err != nil {
		return nil, err
	}
	if t.handlerErrors, err = meter.Int64Counter("agent.handler.errors",
		metric.WithDescription("Handler invocations that failed or panicked")); err != nil {
		return nil, err
	}
	if t.behaviorRuns, err = meter.Int64Counter("agent.behavior.executions",
		metric.WithDescription("Behavior executions")); err != nil {
		return nil, err
	}
	if t.behaviorErrors, err = meter.Int64Counter("agent.behavior.errors",
		metric.WithDescription("Behavior executions that failed or panicked")); err != nil {
		return nil, err
	}
	if t.sent, err = meter.Int64Counter("agent.messages.sent",
		metric.WithDescription("Messages placed on an agent outbox")); err != nil {
		return nil, err
	}
	if t.forwarded, err = meter.Int64Counter("bridge.messages.forwarded",
		metric.WithDescription("Messages copied from an outbox to a peer inbox")); err != nil {
		return nil, err
	}

	if t.dropped, err = meter.Int64Counter("bridge.messages.dropped",
		metric.WithDescription("Message copies not delivered because the peer had stopped")); err != nil {
		return nil, err
	}

	return t, nil
}

// defaultTelemetry never fails: the global providers always hand out instruments.
func defaultTelemetry() *Telemetry {
	t, err := NewTelemetry(nil, nil)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Telemetry) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func agentAttr(name string) attribute.KeyValue {
	return attribute.String("agent", name)
}
