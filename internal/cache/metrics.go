package cache

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/tripnest/tripnest/internal/cache"

// Metrics holds the instruments shared by every view cache.
type Metrics struct {
	hits      metric.Int64Counter
	misses    metric.Int64Counter
	errors    metric.Int64Counter
	evictions metric.Int64Counter
}

// NewMetrics creates cache instruments from the global meter provider.
// Instrument creation never fails with the no-op provider, so errors only
// surface when an SDK provider rejects an instrument.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	hits, err := meter.Int64Counter("cache.hits",
		metric.WithDescription("View cache lookups served from the store"))
	if err != nil {
		return nil, err
	}

	misses, err := meter.Int64Counter("cache.misses",
		metric.WithDescription("View cache lookups that fell through to the loader"))
	if err != nil {
		return nil, err
	}

	errs, err := meter.Int64Counter("cache.errors",
		metric.WithDescription("Store or codec failures treated as misses"))
	if err != nil {
		return nil, err
	}

	evictions, err := meter.Int64Counter("cache.evictions",
		metric.WithDescription("Keys removed by explicit eviction"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		hits:      hits,
		misses:    misses,
		errors:    errs,
		evictions: evictions,
	}, nil
}

func (m *Metrics) hit(ctx context.Context, scope string) {
	if m != nil {
		m.hits.Add(ctx, 1, scopeAttr(scope))
	}
}

func (m *Metrics) miss(ctx context.Context, scope string) {
	if m != nil {
		m.misses.Add(ctx, 1, scopeAttr(scope))
	}
}

func (m *Metrics) failure(ctx context.Context, scope, op string) {
	if m != nil {
		m.errors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("scope", scope),
			attribute.String("op", op),
		))
	}
}

func (m *Metrics) evicted(ctx context.Context, scope string, n int) {
	if m != nil && n > 0 {
		m.evictions.Add(ctx, int64(n), scopeAttr(scope))
	}
}

func scopeAttr(scope string) metric.AddOption {
	return metric.WithAttributes(attribute.String("scope", scope))
}
