// Package otel publishes engine metrics through an OpenTelemetry Meter.
//
// [NewExporter] registers one observable counter per engine counter, a gauge
// per histogram bucket and gauges for dispatcher backlog. A single callback
// reads the engine snapshot on each collection. The caller owns the
// MeterProvider.
package otel
