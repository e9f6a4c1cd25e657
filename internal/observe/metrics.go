// Package observe wires OpenTelemetry metric instruments for the cache
// engine. Instruments are created once at startup; recording is cheap and
// safe from any goroutine.
package observe

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics holds the engine's counters. A nil *Metrics is valid and records
// nothing, so call sites never need to guard.
type Metrics struct {
	hits          metric.Int64Counter
	misses        metric.Int64Counter
	invalidations metric.Int64Counter
	sweepChanges  metric.Int64Counter
	sweepFailures metric.Int64Counter
}

// New creates the instrument set on the given meter.
func New(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.hits, err = meter.Int64Counter("cache.lookup.hits",
		metric.WithDescription("Lookups answered from cache")); err != nil {
		return nil, fmt.Errorf("create hits counter: %w", err)
	}
	if m.misses, err = meter.Int64Counter("cache.lookup.misses",
		metric.WithDescription("Lookups that fell through to the caller")); err != nil {
		return nil, fmt.Errorf("create misses counter: %w", err)
	}
	if m.invalidations, err = meter.Int64Counter("cache.invalidated.entries",
		metric.WithDescription("Entries removed by invalidation calls")); err != nil {
		return nil, fmt.Errorf("create invalidations counter: %w", err)
	}
	if m.sweepChanges, err = meter.Int64Counter("monitor.sweep.changes",
		metric.WithDescription("Upstream content changes detected")); err != nil {
		return nil, fmt.Errorf("create sweep changes counter: %w", err)
	}
	if m.sweepFailures, err = meter.Int64Counter("monitor.sweep.failures",
		metric.WithDescription("Listener checks that failed to fetch")); err != nil {
		return nil, fmt.Errorf("create sweep failures counter: %w", err)
	}
	return m, nil
}

// NewNop returns a Metrics backed by the no-op meter, for tests and for
// deployments without a metrics pipeline.
func NewNop() *Metrics {
	m, _ := New(noop.NewMeterProvider().Meter("agentcache"))
	return m
}

func (m *Metrics) Hit(ctx context.Context) {
	if m != nil {
		m.hits.Add(ctx, 1)
	}
}

func (m *Metrics) Miss(ctx context.Context) {
	if m != nil {
		m.misses.Add(ctx, 1)
	}
}

func (m *Metrics) Invalidated(ctx context.Context, n int64) {
	if m != nil {
		m.invalidations.Add(ctx, n)
	}
}

func (m *Metrics) SweepChange(ctx context.Context) {
	if m != nil {
		m.sweepChanges.Add(ctx, 1)
	}
}

func (m *Metrics) SweepFailure(ctx context.Context) {
	if m != nil {
		m.sweepFailures.Add(ctx, 1)
	}
}
