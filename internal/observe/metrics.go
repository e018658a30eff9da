// Package observe provides the OpenTelemetry metric instruments recorded by
// uttervault exports and the HTTP daemon.
//
// A package-level default (DefaultMetrics) uses the global meter provider;
// tests should call NewMetrics with their own metric.MeterProvider to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all uttervault metrics.
const meterName = "uttervault"

// Metrics holds all metric instruments. The underlying OTel types are safe
// for concurrent use.
type Metrics struct {
	// Exports counts finished export attempts by mode and status.
	Exports metric.Int64Counter

	// ExportDuration tracks wall-clock time of exports that produced an archive.
	ExportDuration metric.Float64Histogram

	// RecordsExported counts utterance folders written to archives.
	RecordsExported metric.Int64Counter

	// AudioFailures counts records whose audio was missing or failed, by reason.
	AudioFailures metric.Int64Counter

	// Transcodes counts conversions by status.
	Transcodes metric.Int64Counter

	// ActiveExports is 1 while an export is in flight.
	ActiveExports metric.Int64UpDownCounter

	// HTTPRequestDuration tracks daemon request latency by method and path.
	HTTPRequestDuration metric.Float64Histogram
}

// durationBuckets are histogram boundaries in seconds sized for archive builds.
var durationBuckets = []float64{
	0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Exports, err = m.Int64Counter("uttervault.exports",
		metric.WithDescription("Export attempts by mode and status."),
	); err != nil {
		return nil, err
	}
	if met.ExportDuration, err = m.Float64Histogram("uttervault.export.duration",
		metric.WithDescription("Time to fetch, assemble, and deliver an archive."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecordsExported, err = m.Int64Counter("uttervault.records.exported",
		metric.WithDescription("Utterance folders written to archives."),
	); err != nil {
		return nil, err
	}
	if met.AudioFailures, err = m.Int64Counter("uttervault.audio.failures",
		metric.WithDescription("Records archived without audio, by reason."),
	); err != nil {
		return nil, err
	}
	if met.Transcodes, err = m.Int64Counter("uttervault.transcodes",
		metric.WithDescription("Audio conversions by status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveExports, err = m.Int64UpDownCounter("uttervault.active_exports",
		metric.WithDescription("Exports currently in flight."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("uttervault.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level Metrics built from the global
// meter provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordExport records one finished export attempt.
func (m *Metrics) RecordExport(ctx context.Context, mode, status string, elapsed time.Duration, records int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("status", status),
	)
	m.Exports.Add(ctx, 1, attrs)
	if status == "completed" {
		m.ExportDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("mode", mode)))
		m.RecordsExported.Add(ctx, int64(records))
	}
}

// RecordAudioFailure records a record archived with a missing-audio marker.
func (m *Metrics) RecordAudioFailure(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.AudioFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordTranscode records one conversion attempt.
func (m *Metrics) RecordTranscode(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.Transcodes.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// ExportStarted marks an export as in flight and returns the matching release.
func (m *Metrics) ExportStarted(ctx context.Context) func() {
	if m == nil {
		return func() {}
	}
	m.ActiveExports.Add(ctx, 1)
	return func() { m.ActiveExports.Add(ctx, -1) }
}
