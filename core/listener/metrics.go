package listener

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/berkus/teloxide/lib/telemetry"
)

// Fetch result labels recorded on the listener.fetches counter.
const (
	fetchResultOK          = "ok"
	fetchResultEmpty       = "empty"
	fetchResultRecoverable = "recoverable"
	fetchResultFatal       = "fatal"
	fetchResultExhausted   = "exhausted"
	fetchResultAbandoned   = "abandoned"
)

type pollerMetrics struct {
	fetchesCounter   metric.Int64Counter
	fetchedCounter   metric.Int64Counter
	deliveredCounter metric.Int64Counter
	errorsCounter    metric.Int64Counter
	backoffDelay     metric.Float64Histogram
	cursorGauge      metric.Int64ObservableGauge
	pendingGauge     metric.Int64ObservableGauge
}

func newPollerMetrics(p *Poller) *pollerMetrics {
	pm := new(pollerMetrics)
	meter := otel.Meter("listener")
	pm.fetchesCounter, _ = meter.Int64Counter("listener.fetches",
		metric.WithDescription("Number of fetch calls issued, by result"),
		metric.WithUnit("{fetch}"))
	pm.fetchedCounter, _ = meter.Int64Counter("listener.updates.fetched",
		metric.WithDescription("Number of updates returned by successful fetches"),
		metric.WithUnit("{update}"))
	pm.deliveredCounter, _ = meter.Int64Counter("listener.updates.delivered",
		metric.WithDescription("Number of updates handed to the consumer"),
		metric.WithUnit("{update}"))
	pm.errorsCounter, _ = meter.Int64Counter("listener.stream.errors",
		metric.WithDescription("Number of error items surfaced on the stream"),
		metric.WithUnit("{error}"))
	pm.backoffDelay, _ = meter.Float64Histogram("listener.backoff.delay",
		metric.WithDescription("Retry delay applied after recoverable fetch failures"),
		metric.WithUnit("ms"))
	pm.cursorGauge, _ = meter.Int64ObservableGauge("listener.cursor",
		metric.WithDescription("Smallest update id not yet acknowledged"),
		metric.WithUnit("{id}"),
		metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
			observer.Observe(p.cursor.Load())
			return nil
		}))
	pm.pendingGauge, _ = meter.Int64ObservableGauge("listener.pending.depth",
		metric.WithDescription("Updates fetched but not yet handed to the consumer"),
		metric.WithUnit("{update}"),
		metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
			observer.Observe(int64(p.pendingDepth.Load()))
			return nil
		}))
	return pm
}

func (pm *pollerMetrics) recordFetch(ctx context.Context, result string) {
	if pm == nil || pm.fetchesCounter == nil {
		return
	}
	pm.fetchesCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("environment", telemetry.Environment()),
		attribute.String("result", result)))
}

func (pm *pollerMetrics) recordFetched(ctx context.Context, count int) {
	if pm == nil || pm.fetchedCounter == nil || count <= 0 {
		return
	}
	pm.fetchedCounter.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String("environment", telemetry.Environment())))
}

func (pm *pollerMetrics) recordDelivered(ctx context.Context) {
	if pm == nil || pm.deliveredCounter == nil {
		return
	}
	pm.deliveredCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("environment", telemetry.Environment())))
}

func (pm *pollerMetrics) recordStreamError(ctx context.Context) {
	if pm == nil || pm.errorsCounter == nil {
		return
	}
	pm.errorsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("environment", telemetry.Environment())))
}

func (pm *pollerMetrics) recordBackoff(ctx context.Context, delay time.Duration) {
	if pm == nil || pm.backoffDelay == nil {
		return
	}
	pm.backoffDelay.Record(ctx, float64(delay.Milliseconds()), metric.WithAttributes(
		attribute.String("environment", telemetry.Environment())))
}
