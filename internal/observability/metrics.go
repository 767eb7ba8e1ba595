package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsCollector manages all engine metrics. A nil or disabled collector
// accepts every Record call and drops it.
type MetricsCollector struct {
	meter    metric.Meter
	provider *sdkmetric.MeterProvider

	// Scheduler metrics
	notificationsScheduled metric.Int64Counter
	notificationsCancelled metric.Int64Counter
	notificationsFired     metric.Int64Counter

	// Geofence metrics
	geofenceEvents  metric.Int64Counter
	suppressions    metric.Int64Counter
	geocodeLookups  metric.Int64Counter
	geocodeLatency  metric.Float64Histogram
	storeDetections metric.Int64Counter

	// Content generation metrics
	aiRequests  metric.Int64Counter
	aiLatency   metric.Float64Histogram
	aiFallbacks metric.Int64Counter
}

// MetricsConfig configures the metrics collector
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// NewMetricsCollector creates a new metrics collector backed by the
// Prometheus exporter. Scrape it through Handler.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	meter := provider.Meter("nudge")
	m := &MetricsCollector{meter: meter, provider: provider}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.notificationsScheduled, "nudge.notifications.scheduled", "Notifications handed to the dispatcher", "{notification}"},
		{&m.notificationsCancelled, "nudge.notifications.cancelled", "Notifications cancelled", "{notification}"},
		{&m.notificationsFired, "nudge.notifications.fired", "Notifications delivered by the local dispatcher", "{notification}"},
		{&m.geofenceEvents, "nudge.geofence.events", "Platform location events consumed", "{event}"},
		{&m.suppressions, "nudge.notifications.suppressed", "Notifications suppressed by cooldown or smart filtering", "{notification}"},
		{&m.geocodeLookups, "nudge.geocode.lookups", "Reverse geocoding lookups", "{lookup}"},
		{&m.storeDetections, "nudge.geofence.store_detections", "Store categories detected from addresses", "{detection}"},
		{&m.aiRequests, "nudge.ai.requests", "Content generation requests", "{request}"},
		{&m.aiFallbacks, "nudge.ai.fallbacks", "Deterministic fallbacks used in place of generated content", "{fallback}"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
		*c.dst = counter
	}

	m.aiLatency, err = meter.Float64Histogram(
		"nudge.ai.latency",
		metric.WithDescription("Content generation latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ai_latency histogram: %w", err)
	}

	m.geocodeLatency, err = meter.Float64Histogram(
		"nudge.geocode.latency",
		metric.WithDescription("Reverse geocoding latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create geocode_latency histogram: %w", err)
	}

	return m, nil
}

// Enabled reports whether the collector records anything.
func (m *MetricsCollector) Enabled() bool {
	return m != nil && m.meter != nil
}

// Handler serves the Prometheus scrape endpoint.
func (m *MetricsCollector) Handler() http.Handler {
	return promclient.Handler()
}

// Shutdown flushes and stops the meter provider.
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

// RecordScheduled records a notification handed to the dispatcher.
func (m *MetricsCollector) RecordScheduled(ctx context.Context, slot string) {
	if !m.Enabled() {
		return
	}
	m.notificationsScheduled.Add(ctx, 1, metric.WithAttributes(attribute.String("slot", slotLabel(slot))))
}

// RecordCancelled records a cancelled notification.
func (m *MetricsCollector) RecordCancelled(ctx context.Context, slot string, status string) {
	if !m.Enabled() {
		return
	}
	m.notificationsCancelled.Add(ctx, 1, metric.WithAttributes(
		attribute.String("slot", slotLabel(slot)),
		attribute.String("status", status),
	))
}

// RecordFired records a delivered notification.
func (m *MetricsCollector) RecordFired(ctx context.Context, late bool) {
	if !m.Enabled() {
		return
	}
	m.notificationsFired.Add(ctx, 1, metric.WithAttributes(attribute.Bool("late", late)))
}

// RecordGeofenceEvent records a consumed platform event.
func (m *MetricsCollector) RecordGeofenceEvent(ctx context.Context, kind string) {
	if !m.Enabled() {
		return
	}
	m.geofenceEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordSuppressed records a notification that was not sent.
func (m *MetricsCollector) RecordSuppressed(ctx context.Context, flow string, reason string) {
	if !m.Enabled() {
		return
	}
	m.suppressions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flow", flow),
		attribute.String("reason", reason),
	))
}

// RecordStoreDetection records an address that matched a store category.
func (m *MetricsCollector) RecordStoreDetection(ctx context.Context, category string) {
	if !m.Enabled() {
		return
	}
	m.storeDetections.Add(ctx, 1, metric.WithAttributes(attribute.String("category", category)))
}

// RecordGeocode records a reverse geocoding lookup.
func (m *MetricsCollector) RecordGeocode(ctx context.Context, source string, status string, latency time.Duration) {
	if !m.Enabled() {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("source", source),
		attribute.String("status", status),
	}
	m.geocodeLookups.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.geocodeLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(attrs...))
}

// RecordAIRequest records a content generation request
func (m *MetricsCollector) RecordAIRequest(ctx context.Context, model string, status string, latency time.Duration) {
	if !m.Enabled() {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("model", model),
		attribute.String("status", status),
	}
	m.aiRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.aiLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(attrs...))
}

// RecordAIFallback records deterministic text used in place of AI output.
func (m *MetricsCollector) RecordAIFallback(ctx context.Context, slot string) {
	if !m.Enabled() {
		return
	}
	m.aiFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("slot", slotLabel(slot))))
}

// slotLabel keeps ad-hoc note slots from exploding label cardinality.
func slotLabel(slot string) string {
	if prefix, _, ok := strings.Cut(slot, ":"); ok {
		return prefix
	}
	if slot == "" {
		return "none"
	}
	return slot
}
