package fetch

import (
	"net/http"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(t.Context(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func counterValue(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestClientMetrics_SuccessfulRequest(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	mock := NewMockTransport().StubResponse(http.StatusOK, "ok")
	c := New(WithTransport(mock), WithMeterProvider(provider))

	_, err := c.Get(t.Context(), "http://api.test/x")
	require.NoError(t, err)

	metrics := collectMetrics(t, reader)

	attempts, ok := metrics["http.client.request.attempts"]
	require.True(t, ok)
	assert.EqualValues(t, 1, counterValue(t, attempts))

	duration, ok := metrics["http.client.request.duration"]
	require.True(t, ok)
	hist, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.NotEmpty(t, hist.DataPoints)
}

func TestClientMetrics_RetriesAndRedirects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	mock := NewMockTransport().
		EnqueueError(syscall.ECONNRESET).
		EnqueueResponse(http.StatusFound, "", http.Header{"Location": {"/next"}}).
		EnqueueResponse(http.StatusOK, "done", nil)
	c := New(WithTransport(mock), WithMeterProvider(provider))

	_, err := c.Get(t.Context(), "http://api.test/first",
		WithRetryPolicy(immediateRetry(2)))
	require.NoError(t, err)

	metrics := collectMetrics(t, reader)

	retries, ok := metrics["http.client.retry.attempts"]
	require.True(t, ok)
	assert.EqualValues(t, 1, counterValue(t, retries))

	redirects, ok := metrics["http.client.redirects"]
	require.True(t, ok)
	assert.EqualValues(t, 1, counterValue(t, redirects))
}

func TestClientMetrics_RetriesExhausted(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	mock := NewMockTransport().StubError(syscall.ECONNREFUSED)
	c := New(WithTransport(mock), WithMeterProvider(provider))

	_, err := c.Get(t.Context(), "http://api.test/down",
		WithRetryPolicy(immediateRetry(1)))
	require.Error(t, err)

	metrics := collectMetrics(t, reader)

	exhausted, ok := metrics["http.client.retry.exhausted"]
	require.True(t, ok)
	assert.EqualValues(t, 1, counterValue(t, exhausted))
}
