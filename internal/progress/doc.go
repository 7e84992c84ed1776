// Package progress turns scanner callbacks into events, batches them on a
// background goroutine, and fans them out to pluggable sinks such as the
// console log or Prometheus metrics. The scan loop never blocks on a sink.
package progress
