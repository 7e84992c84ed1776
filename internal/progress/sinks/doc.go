// Package sinks implements concrete progress consumers: the console log of
// per-record lines and the Prometheus collectors written to metrics.prom.
package sinks
