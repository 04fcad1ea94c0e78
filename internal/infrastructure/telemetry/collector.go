// Package telemetry exports engine metrics through OpenTelemetry.
package telemetry

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"stockledger/internal/core/metrics"
)

const meterName = "stockledger"

// Collector forwards every event to OpenTelemetry instruments and keeps an
// in-memory aggregate for the /metrics snapshot.
type Collector struct {
	local    *metrics.InMemory
	events   metric.Int64Counter
	duration metric.Float64Histogram
}

var _ metrics.Collector = (*Collector)(nil)

// NewCollector creates the collector. A nil provider uses the global one.
func NewCollector(provider metric.MeterProvider) (*Collector, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	events, err := meter.Int64Counter(
		"stockledger.events",
		metric.WithDescription("Engine events by name"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stockledger.events counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		"stockledger.event.duration",
		metric.WithDescription("Duration of timed engine operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stockledger.event.duration histogram: %w", err)
	}

	return &Collector{
		local:    metrics.NewInMemory(),
		events:   events,
		duration: duration,
	}, nil
}

// Record implements metrics.Collector.
func (c *Collector) Record(event metrics.Event) {
	c.local.Record(event)

	n := event.Count
	if n == 0 {
		n = 1
	}
	attrs := metric.WithAttributes(attributes(event)...)
	ctx := context.Background()

	c.events.Add(ctx, n, attrs)
	if event.Duration > 0 {
		c.duration.Record(ctx, event.Duration.Seconds(), attrs)
	}
}

// Snapshot implements metrics.Collector.
func (c *Collector) Snapshot() metrics.Snapshot {
	return c.local.Snapshot()
}

func attributes(event metrics.Event) []attribute.KeyValue {
	keys := make([]string, 0, len(event.Labels))
	for k := range event.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]attribute.KeyValue, 0, len(keys)+1)
	attrs = append(attrs, attribute.String("event", event.Name))
	for _, k := range keys {
		attrs = append(attrs, attribute.String(k, event.Labels[k]))
	}
	return attrs
}
