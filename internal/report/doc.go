// Package report turns a finished scan into on-disk artifacts: the JSON
// summary, the frontier dump, the effective configuration, a Prometheus
// textfile, a Markdown digest and, per device, the saved response bodies.
package report
