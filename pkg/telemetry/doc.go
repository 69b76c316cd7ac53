// Package telemetry provides logging, tracing and metrics for queryhub.
//
// Logging is structured zerolog output, tracing uses OpenTelemetry with
// pluggable exporters, and metrics are Prometheus collectors behind a
// private registry. Metrics implements engine.MetricsRecorder so the
// report executor can record outcomes without depending on Prometheus.
package telemetry
