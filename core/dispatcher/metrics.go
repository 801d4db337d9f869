package dispatcher

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/berkus/teloxide/core/update"
	"github.com/berkus/teloxide/lib/telemetry"
)

type dispatchMetrics struct {
	dispatchedCounter metric.Int64Counter
	handlerErrors     metric.Int64Counter
	streamErrors      metric.Int64Counter
	unroutedCounter   metric.Int64Counter
	handlerDuration   metric.Float64Histogram
}

func newDispatchMetrics() *dispatchMetrics {
	m := new(dispatchMetrics)
	meter := otel.Meter("dispatcher")
	m.dispatchedCounter, _ = meter.Int64Counter("dispatcher.updates.dispatched",
		metric.WithDescription("Number of updates handed to a handler"),
		metric.WithUnit("{update}"))
	m.handlerErrors, _ = meter.Int64Counter("dispatcher.handler.errors",
		metric.WithDescription("Number of handler failures, panics included"),
		metric.WithUnit("{error}"))
	m.streamErrors, _ = meter.Int64Counter("dispatcher.stream.errors",
		metric.WithDescription("Number of error items observed on the update stream"),
		metric.WithUnit("{error}"))
	m.unroutedCounter, _ = meter.Int64Counter("dispatcher.updates.unrouted",
		metric.WithDescription("Number of updates dropped for lack of a handler"),
		metric.WithUnit("{update}"))
	m.handlerDuration, _ = meter.Float64Histogram("dispatcher.handler.duration",
		metric.WithDescription("Handler execution duration"),
		metric.WithUnit("ms"))
	return m
}

func kindAttrs(kind update.Kind) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("environment", telemetry.Environment()),
		attribute.String("kind", string(kind)))
}

func (m *dispatchMetrics) recordDispatched(ctx context.Context, kind update.Kind, took time.Duration) {
	if m == nil {
		return
	}
	if m.dispatchedCounter != nil {
		m.dispatchedCounter.Add(ctx, 1, kindAttrs(kind))
	}
	if m.handlerDuration != nil {
		m.handlerDuration.Record(ctx, float64(took.Milliseconds()), kindAttrs(kind))
	}
}

func (m *dispatchMetrics) recordHandlerError(ctx context.Context, kind update.Kind) {
	if m == nil || m.handlerErrors == nil {
		return
	}
	m.handlerErrors.Add(ctx, 1, kindAttrs(kind))
}

func (m *dispatchMetrics) recordStreamError(ctx context.Context) {
	if m == nil || m.streamErrors == nil {
		return
	}
	m.streamErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("environment", telemetry.Environment())))
}

func (m *dispatchMetrics) recordUnrouted(ctx context.Context, kind update.Kind) {
	if m == nil || m.unroutedCounter == nil {
		return
	}
	m.unroutedCounter.Add(ctx, 1, kindAttrs(kind))
}
