package fetch

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// clientMetrics holds the metric instruments for request lifecycle
// operations. All record methods are nil-safe so an instrument creation
// failure degrades to no metrics rather than panics.
type clientMetrics struct {
	// requestDuration measures the duration of logical requests in
	// seconds, from the first attempt to the terminal event.
	requestDuration metric.Float64Histogram

	// attempts counts physical attempts per terminal event.
	attempts metric.Int64Counter

	// retries counts re-attempts after transport errors.
	retries metric.Int64Counter

	// retriesExhausted counts logical requests that failed after
	// consuming their whole retry budget.
	retriesExhausted metric.Int64Counter

	// redirects counts followed redirect hops.
	redirects metric.Int64Counter
}

// newClientMetrics creates and registers the metric instruments.
func newClientMetrics(meter metric.Meter) *clientMetrics {
	m := &clientMetrics{}
	var err error

	m.requestDuration, err = meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("Duration of logical HTTP requests in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(
			0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5, 7.5, 10,
		),
	)
	if err != nil {
		otel.Handle(err)
	}

	m.attempts, err = meter.Int64Counter(
		"http.client.request.attempts",
		metric.WithDescription("Physical attempts per logical request"),
	)
	if err != nil {
		otel.Handle(err)
	}

	m.retries, err = meter.Int64Counter(
		"http.client.retry.attempts",
		metric.WithDescription("Re-attempts after transport-level errors"),
	)
	if err != nil {
		otel.Handle(err)
	}

	m.retriesExhausted, err = meter.Int64Counter(
		"http.client.retry.exhausted",
		metric.WithDescription("Logical requests that exhausted their retry budget"),
	)
	if err != nil {
		otel.Handle(err)
	}

	m.redirects, err = meter.Int64Counter(
		"http.client.redirects",
		metric.WithDescription("Followed redirect hops"),
	)
	if err != nil {
		otel.Handle(err)
	}

	return m
}

func (m *clientMetrics) recordDuration(ctx context.Context, d time.Duration, attrs ...attribute.KeyValue) {
	if m == nil || m.requestDuration == nil {
		return
	}
	m.requestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

func (m *clientMetrics) recordAttempts(ctx context.Context, n int, attrs ...attribute.KeyValue) {
	if m == nil || m.attempts == nil {
		return
	}
	m.attempts.Add(ctx, int64(n), metric.WithAttributes(attrs...))
}

func (m *clientMetrics) recordRetry(ctx context.Context, attrs ...attribute.KeyValue) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *clientMetrics) recordRetryExhausted(ctx context.Context, attrs ...attribute.KeyValue) {
	if m == nil || m.retriesExhausted == nil {
		return
	}
	m.retriesExhausted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *clientMetrics) recordRedirect(ctx context.Context, attrs ...attribute.KeyValue) {
	if m == nil || m.redirects == nil {
		return
	}
	m.redirects.Add(ctx, 1, metric.WithAttributes(attrs...))
}
