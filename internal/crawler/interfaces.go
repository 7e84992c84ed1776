package crawler

import (
	"context"
	"time"
)

// Renderer loads a URL in a browser context.
type Renderer interface {
	Render(ctx context.Context, request RenderRequest) (RenderResult, error)
}

// Document is a rendered page that can be queried for element attributes.
type Document interface {
	// QueryAttributes returns the value of attr for every tag element that
	// carries it, in document order.
	QueryAttributes(tag, attr string) ([]string, error)
}

// HTTPFetcher performs metadata-only requests.
type HTTPFetcher interface {
	Fetch(ctx context.Context, request HTTPRequest) (HTTPResponse, error)
}

// BodySink stores response bodies of targets configured to keep them.
type BodySink interface {
	SaveBody(ctx context.Context, target Target, rec *Record, body []byte) error
}

// Observer is told about scan progress. Calls happen on the scanner goroutine.
type Observer interface {
	ScanStarted(info ScanInfo)
	RecordDone(position, total int, rec *Record)
	ScanFinished(report Report)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record and scan IDs.
type IDGenerator interface {
	NewID() (string, error)
}

type nopObserver struct{}

func (nopObserver) ScanStarted(ScanInfo)         {}
func (nopObserver) RecordDone(int, int, *Record) {}
func (nopObserver) ScanFinished(Report)          {}
