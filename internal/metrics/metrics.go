package metrics

import (
	"context"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type Metrics struct {
	HTTPRequests      metric.Int64Counter
	HTTPDuration      metric.Float64Histogram
	TransfersStarted  metric.Int64Counter
	TransfersFinished metric.Int64Counter
	TransferDuration  metric.Float64Histogram
	StepDuration      metric.Float64Histogram
	FeeQuoteHits      metric.Int64Counter
	FeeQuoteMisses    metric.Int64Counter
	Estimates         metric.Int64Counter
}

// Setup registers the instruments on a fresh Prometheus registry and returns
// the handler serving it.
func Setup(serviceName string) (*Metrics, http.Handler, error) {
	registry := prom.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	m := &Metrics{}

	m.HTTPRequests, err = meter.Int64Counter(
		"ob_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPDuration, err = meter.Float64Histogram(
		"ob_http_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.TransfersStarted, err = meter.Int64Counter(
		"ob_transfers_started_total",
		metric.WithDescription("Transfers started, by speed"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.TransfersFinished, err = meter.Int64Counter(
		"ob_transfers_finished_total",
		metric.WithDescription("Transfers that reached a terminal status"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.TransferDuration, err = meter.Float64Histogram(
		"ob_transfer_duration_seconds",
		metric.WithDescription("Time from transfer start to terminal status"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.StepDuration, err = meter.Float64Histogram(
		"ob_transfer_step_duration_seconds",
		metric.WithDescription("Duration of individual transfer steps"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.FeeQuoteHits, err = meter.Int64Counter(
		"ob_fee_quote_cache_hits_total",
		metric.WithDescription("Fee quotes served from cache"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.FeeQuoteMisses, err = meter.Int64Counter(
		"ob_fee_quote_cache_misses_total",
		metric.WithDescription("Fee quotes fetched from Iris"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.Estimates, err = meter.Int64Counter(
		"ob_estimates_total",
		metric.WithDescription("Estimate requests by outcome"),
	)
	if err != nil {
		return nil, nil, err
	}

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m, handler, nil
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	labels := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	)

	m.HTTPRequests.Add(ctx, 1, labels)
	m.HTTPDuration.Record(ctx, duration.Seconds(), labels)
}

func (m *Metrics) RecordTransferStarted(ctx context.Context, speed string) {
	m.TransfersStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("speed", speed)))
}

func (m *Metrics) RecordTransferFinished(ctx context.Context, status string, d time.Duration) {
	labels := metric.WithAttributes(attribute.String("status", status))
	m.TransfersFinished.Add(ctx, 1, labels)
	m.TransferDuration.Record(ctx, d.Seconds(), labels)
}

func (m *Metrics) RecordStepDuration(ctx context.Context, step string, d time.Duration) {
	m.StepDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("step", step)))
}

func (m *Metrics) RecordEstimate(ctx context.Context, outcome string) {
	m.Estimates.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) RecordFeeQuoteCache(ctx context.Context, hit bool) {
	if hit {
		m.FeeQuoteHits.Add(ctx, 1)
		return
	}
	m.FeeQuoteMisses.Add(ctx, 1)
}
