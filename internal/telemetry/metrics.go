// Package telemetry provides OpenTelemetry instrumentation for sync runs.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SyncMetricsMeterName is the name used for the sync metrics meter
	SyncMetricsMeterName = "github.com/openwrt-feedsync/feedsync/sync"
)

// SyncMetrics holds the OpenTelemetry instruments for sync runs
type SyncMetrics struct {
	packagesTotal    metric.Int64Counter
	syncDuration     metric.Float64Histogram
	fetchFailures    metric.Int64Counter
	registryPackages metric.Int64Gauge
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	packagesTotal, err := meter.Int64Counter(
		"feedsync_packages_total",
		metric.WithDescription("Packages resolved per source and outcome"),
		metric.WithUnit("{package}"),
	)
	if err != nil {
		return nil, err
	}

	syncDuration, err := meter.Float64Histogram(
		"feedsync_sync_duration_seconds",
		metric.WithDescription("Duration of sync runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600, 1800),
	)
	if err != nil {
		return nil, err
	}

	fetchFailures, err := meter.Int64Counter(
		"feedsync_source_fetch_failures_total",
		metric.WithDescription("Source fetches that failed"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, err
	}

	registryPackages, err := meter.Int64Gauge(
		"feedsync_registry_packages",
		metric.WithDescription("Number of packages in the output tree after a run"),
		metric.WithUnit("{package}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		packagesTotal:    packagesTotal,
		syncDuration:     syncDuration,
		fetchFailures:    fetchFailures,
		registryPackages: registryPackages,
	}, nil
}

// RecordPackage counts one resolved package
func (m *SyncMetrics) RecordPackage(ctx context.Context, source, outcome string) {
	if m == nil || m.packagesTotal == nil {
		return
	}

	m.packagesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("outcome", outcome),
	))
}

// RecordSyncDuration records the duration of a sync run
func (m *SyncMetrics) RecordSyncDuration(ctx context.Context, policy string, duration time.Duration, success bool) {
	if m == nil || m.syncDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("policy", policy),
		attribute.Bool("success", success),
	}

	m.syncDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordFetchFailure counts a failed source fetch
func (m *SyncMetrics) RecordFetchFailure(ctx context.Context, source string) {
	if m == nil || m.fetchFailures == nil {
		return
	}

	m.fetchFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordRegistryPackages records the number of packages in the output tree
func (m *SyncMetrics) RecordRegistryPackages(ctx context.Context, count int64) {
	if m == nil || m.registryPackages == nil {
		return
	}

	m.registryPackages.Record(ctx, count)
}
