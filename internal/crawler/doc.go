// Package crawler implements the crawl queue engine: the frontier, the
// classifier, the link extractor, the per-record dispatcher, the scanner loop,
// and the report builder. Browsers, HTTP clients, clocks, and ID sources are
// injected through the interfaces in interfaces.go.
package crawler
