// Package otel provides OpenTelemetry metric bindings for authcore
// counters and histograms.
//
// [NewOTelExporter] registers Int64ObservableCounter instruments for each
// core counter and Int64ObservableGauge instruments per histogram bucket.
// A single callback reads [authcore.Service.MetricsSnapshot] on each
// collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider. Callers supply the Meter.
//   - Mutate service state.
package otel
