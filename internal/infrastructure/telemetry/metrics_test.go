package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestMetrics_Records(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewMetrics(mp)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordDispatch(ctx, "PURCHASE_ORDER", "AXIOMA", true)
	m.RecordDispatch(ctx, "PURCHASE_ORDER", "AXIOMA", false)
	m.RecordConnectorRequest(ctx, "GET", 503, 20*time.Millisecond)
	m.RecordWebhookDelivery(ctx, "sync.completed", true)
	m.RecordPull(ctx, "PROVEEDOR", 3, 0, 1)

	got := collect(t, reader)
	require.Contains(t, got, "sync.records.dispatched")
	sum, ok := got["sync.records.dispatched"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Len(t, sum.DataPoints, 2)

	assert.Contains(t, got, "connector.requests")
	assert.Contains(t, got, "connector.request.duration")
	assert.Contains(t, got, "webhook.deliveries")

	pulls, ok := got["connector.pull.records"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range pulls.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(4), total)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordDispatch(context.Background(), "X", "Y", true)
		m.RecordExport(context.Background(), "DOCUMENTO", false)
	})
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "none", statusClass(0))
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "4xx", statusClass(429))
	assert.Equal(t, "5xx", statusClass(503))
}

func TestSetup_Disabled(t *testing.T) {
	p, err := Setup(context.Background(), Config{Enabled: false}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestSamplerFor(t *testing.T) {
	assert.Contains(t, samplerFor(1).Description(), "AlwaysOn")
	assert.Contains(t, samplerFor(0).Description(), "AlwaysOff")
	assert.Contains(t, samplerFor(0.5).Description(), "TraceIDRatioBased")
}
