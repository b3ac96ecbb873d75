package counter

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records counter anomalies and reconciliation outcomes.
type Metrics struct {
	clamped metric.Int64Counter
	synced  metric.Int64Counter
	failed  metric.Int64Counter
}

// NewMetrics creates the counter instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("github.com/tripnest/tripnest/internal/counter")

	clamped, err := meter.Int64Counter("counter.clamped",
		metric.WithDescription("Fast counters clamped back to zero after going negative"))
	if err != nil {
		return nil, err
	}

	synced, err := meter.Int64Counter("counter.sync.synced",
		metric.WithDescription("Posts reconciled between fast counters and durable storage"))
	if err != nil {
		return nil, err
	}

	failed, err := meter.Int64Counter("counter.sync.failed",
		metric.WithDescription("Posts that failed to reconcile"))
	if err != nil {
		return nil, err
	}

	return &Metrics{clamped: clamped, synced: synced, failed: failed}, nil
}

func (m *Metrics) clamp(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.clamped.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) report(ctx context.Context, direction string, report *SyncReport) {
	if m == nil || report == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("direction", direction))
	m.synced.Add(ctx, int64(report.Synced), attrs)
	m.failed.Add(ctx, int64(len(report.Failed)), attrs)
}
