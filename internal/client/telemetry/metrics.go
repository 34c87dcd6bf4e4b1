package telemetry

import (
	"context"

	"github.com/dmitrijs2005/pantryclient/internal/client/transport"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records request counts and latencies.
type Metrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	requests, err := meter.Int64Counter("pantry.client.requests",
		metric.WithDescription("Number of API calls by outcome"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram("pantry.client.request.duration",
		metric.WithDescription("Duration of API calls in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{requests: requests, duration: duration}, nil
}

func (m *Metrics) ObserveResult(ctx context.Context, info transport.CallInfo) {
	outcome := "ok"
	if !info.Success {
		outcome = string(info.Kind)
	}
	attrs := metric.WithAttributes(
		attribute.String("method", info.Method),
		attribute.String("outcome", outcome),
		attribute.Int("status", info.Status),
	)
	m.requests.Add(ctx, 1, attrs)
	m.duration.Record(ctx, info.Duration.Seconds(), attrs)
}
