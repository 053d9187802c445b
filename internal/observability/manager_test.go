package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/Additional-Code/atelier/internal/config"
)

func TestManagerPrometheusMetrics(t *testing.T) {
	var cfg config.Config
	cfg.Observability = config.Observability{
		ServiceName:     "atelier",
		ServiceVersion:  "test",
		EnableMetrics:   true,
		MetricsExporter: "prometheus",
		PrometheusPath:  "/metrics",
	}

	lc := fxtest.NewLifecycle(t)
	mgr, err := NewManager(lc, cfg, zap.NewNop())
	require.NoError(t, err)
	lc.RequireStart()
	defer lc.RequireStop()

	assert.False(t, mgr.TracingEnabled())
	assert.True(t, mgr.MetricsEnabled())
	assert.NotNil(t, mgr.MetricsHandler())
	assert.Equal(t, "/metrics", mgr.PrometheusPath())
}

func TestManagerUnknownExportersDisable(t *testing.T) {
	var cfg config.Config
	cfg.Observability = config.Observability{
		ServiceName:     "atelier",
		EnableTracing:   true,
		TraceExporter:   "zipkin",
		EnableMetrics:   true,
		MetricsExporter: "statsd",
	}

	mgr, err := NewManager(fxtest.NewLifecycle(t), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, mgr.TracingEnabled())
	assert.False(t, mgr.MetricsEnabled())
}

func TestOrderViewsDropOrderIdentity(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithView(OrderViews()...),
	)
	ctx := context.Background()
	defer func() { _ = provider.Shutdown(ctx) }()

	counter, err := provider.Meter("test").Int64Counter("atelier.checkout.orders")
	require.NoError(t, err)
	counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("order.code", "AT-20261017-ABCD"),
		attribute.String("payment_mode", "deposit"),
	))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)
	sum, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)

	attrs := sum.DataPoints[0].Attributes
	_, hasCode := attrs.Value("order.code")
	assert.False(t, hasCode)
	mode, hasMode := attrs.Value("payment_mode")
	require.True(t, hasMode)
	assert.Equal(t, "deposit", mode.AsString())
}
