package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func sum(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			data, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			var total int64
			for _, dp := range data.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestMetricsRecordCounters(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewMetrics(provider)
	require.NoError(t, err)

	m.TransactionCreated(ctx, true)
	m.WarrantyIssued(ctx, "basic", true)
	m.WarrantyIssued(ctx, "premium", false)
	m.WarrantiesExpired(ctx, 3)
	m.WarrantiesExpired(ctx, 0)
	m.ClaimFiled(ctx, "defective")
	m.IssuanceFailed(ctx, false)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	assert.Equal(t, int64(1), sum(t, rm, "protection.transactions.created"))
	assert.Equal(t, int64(2), sum(t, rm, "protection.warranties.issued"))
	assert.Equal(t, int64(3), sum(t, rm, "protection.warranties.expired"))
	assert.Equal(t, int64(1), sum(t, rm, "protection.claims.filed"))
	assert.Equal(t, int64(1), sum(t, rm, "protection.issuance.failures"))
}

func TestNopMetricsDoNotPanic(t *testing.T) {
	m := NopMetrics()
	m.ClaimTransitioned(context.Background(), "approved")
}

func TestNewMeterProviderWithoutEndpoint(t *testing.T) {
	mp, err := NewMeterProvider(context.Background(), MeterConfig{ServiceName: "test"}, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, mp.Shutdown(context.Background()))
}
