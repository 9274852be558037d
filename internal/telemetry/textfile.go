package telemetry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// TextfileExporter collects metrics into a Prometheus registry and writes them
// in text exposition format, for the node exporter textfile collector
type TextfileExporter struct {
	path     string
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider
}

// NewTextfileExporter creates an exporter writing to path
func NewTextfileExporter(path string) (*TextfileExporter, error) {
	if path == "" {
		return nil, fmt.Errorf("textfile path is required")
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(
		otelprom.WithRegisterer(registry),
		otelprom.WithoutScopeInfo(),
		otelprom.WithoutTargetInfo(),
		otelprom.WithoutUnits(),
		otelprom.WithoutCounterSuffixes(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	return &TextfileExporter{
		path:     path,
		registry: registry,
		provider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)),
	}, nil
}

// MeterProvider returns the provider instruments should be created from
func (e *TextfileExporter) MeterProvider() metric.MeterProvider {
	return e.provider
}

// Write gathers all metrics and atomically replaces the textfile
func (e *TextfileExporter) Write() error {
	if err := os.MkdirAll(filepath.Dir(e.path), 0750); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(e.path, e.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// Shutdown releases the meter provider
func (e *TextfileExporter) Shutdown(ctx context.Context) error {
	return e.provider.Shutdown(ctx)
}
