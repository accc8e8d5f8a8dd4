// Package otel publishes engine counters and the Authenticate latency
// histogram through an OpenTelemetry meter supplied by the caller.
//
// Every counter becomes an Int64ObservableCounter. Each latency bucket
// becomes an Int64ObservableGauge holding its cumulative count. One callback
// reads a snapshot per collection, so the engine is never written to.
package otel
