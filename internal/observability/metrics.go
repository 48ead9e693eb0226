// Package observability exposes the engine's OpenTelemetry counters and the
// meter provider that exports them.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.uber.org/zap"
)

const meterName = "github.com/egannguyen/autoparts-marketplace"

// Metrics are the business counters recorded by the services and workers.
type Metrics struct {
	transactionsCreated metric.Int64Counter
	warrantiesIssued    metric.Int64Counter
	warrantiesExpired   metric.Int64Counter
	claimsFiled         metric.Int64Counter
	claimTransitions    metric.Int64Counter
	issuanceFailures    metric.Int64Counter
}

func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(meterName)
	m := &Metrics{}
	for _, c := range []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.transactionsCreated, "protection.transactions.created", "Transactions accepted at checkout"},
		{&m.warrantiesIssued, "protection.warranties.issued", "Warranties created"},
		{&m.warrantiesExpired, "protection.warranties.expired", "Warranties moved to expired by the sweep"},
		{&m.claimsFiled, "protection.claims.filed", "Claims accepted for intake"},
		{&m.claimTransitions, "protection.claims.transitions", "Claim status changes"},
		{&m.issuanceFailures, "protection.issuance.failures", "Failed bundled-warranty issuance attempts"},
	} {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("failed to create counter %s: %w", c.name, err)
		}
		*c.dst = counter
	}
	return m, nil
}

// NopMetrics records nothing.
func NopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider())
	return m
}

func (m *Metrics) TransactionCreated(ctx context.Context, protected bool) {
	m.transactionsCreated.Add(ctx, 1, metric.WithAttributes(attribute.Bool("protected", protected)))
}

func (m *Metrics) WarrantyIssued(ctx context.Context, level string, included bool) {
	m.warrantiesIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("level", level),
		attribute.Bool("included", included),
	))
}

func (m *Metrics) WarrantiesExpired(ctx context.Context, n int) {
	if n > 0 {
		m.warrantiesExpired.Add(ctx, int64(n))
	}
}

func (m *Metrics) ClaimFiled(ctx context.Context, claimType string) {
	m.claimsFiled.Add(ctx, 1, metric.WithAttributes(attribute.String("type", claimType)))
}

func (m *Metrics) ClaimTransitioned(ctx context.Context, to string) {
	m.claimTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", to)))
}

func (m *Metrics) IssuanceFailed(ctx context.Context, terminal bool) {
	m.issuanceFailures.Add(ctx, 1, metric.WithAttributes(attribute.Bool("terminal", terminal)))
}

// MeterConfig configures the OTLP metric exporter.
type MeterConfig struct {
	ServiceName string
	Environment string
	Endpoint    string
	Insecure    bool
	Interval    time.Duration
}

// NewMeterProvider exports over OTLP/gRPC when an endpoint is set. Without one
// the provider still aggregates but nothing is shipped.
func NewMeterProvider(ctx context.Context, cfg MeterConfig, log *zap.Logger) (*sdkmetric.MeterProvider, error) {
	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("deployment.environment", cfg.Environment),
	)
	if cfg.Endpoint == "" {
		log.Info("metrics export disabled")
		return sdkmetric.NewMeterProvider(sdkmetric.WithResource(res)), nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	log.Info("metrics export enabled", zap.String("endpoint", cfg.Endpoint), zap.Duration("interval", interval))
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	), nil
}
