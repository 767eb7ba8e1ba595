// Package observability wires logging, metrics, and tracing for the engine.
package observability

import (
	"context"
	"errors"
	"fmt"

	"nudge/internal/shared/config"
	"nudge/internal/shared/logging"
)

// Observability bundles the process-wide metrics collector and tracer.
type Observability struct {
	Metrics *MetricsCollector
	Tracer  *TracerProvider
}

// Setup configures the global logger and builds the metrics collector and
// tracer provider from cfg.
func Setup(cfg config.ObservabilityConfig, version string) (*Observability, error) {
	if err := logging.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}

	metrics, err := NewMetricsCollector(MetricsConfig{Enabled: cfg.Metrics.Enabled})
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracerProvider(TracingConfig{
		Enabled:        cfg.Tracing.Enabled,
		Exporter:       cfg.Tracing.Exporter,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		ZipkinEndpoint: cfg.Tracing.ZipkinEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		ServiceName:    "nudge",
		ServiceVersion: version,
	})
	if err != nil {
		_ = metrics.Shutdown(context.Background())
		return nil, err
	}

	return &Observability{Metrics: metrics, Tracer: tracer}, nil
}

// Shutdown flushes exporters and the logger.
func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil {
		return nil
	}
	err := errors.Join(
		o.Tracer.Shutdown(ctx),
		o.Metrics.Shutdown(ctx),
	)
	logging.Sync()
	return err
}
