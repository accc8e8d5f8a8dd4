// Package prometheus serves engine counters and the Authenticate latency
// histogram in the Prometheus text format, without a client library or a
// global registry. Mount [Exporter.Handler] wherever metrics are scraped.
package prometheus
