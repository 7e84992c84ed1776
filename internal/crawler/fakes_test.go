package crawler

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"
)

type seqIDs struct {
	mu   sync.Mutex
	next int
	err  error
}

func (g *seqIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	g.next++
	return fmt.Sprintf("id-%d", g.next), nil
}

type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newStepClock(step time.Duration) *stepClock {
	return &stepClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.now
	c.now = c.now.Add(c.step)
	return current
}

type fakeDoc struct {
	attrs map[string][]string
	errs  map[string]error
}

func (d fakeDoc) QueryAttributes(tag, attr string) ([]string, error) {
	key := tag + "/" + attr
	if err := d.errs[key]; err != nil {
		return nil, err
	}
	return d.attrs[key], nil
}

type renderCall struct {
	URL     string
	Referer string
}

type fakeRenderer struct {
	mu       sync.Mutex
	pages    map[string]RenderResult
	errs     map[string]error
	calls    []renderCall
	onCall   func(RenderRequest)
	fallback RenderResult
}

func (r *fakeRenderer) Render(_ context.Context, req RenderRequest) (RenderResult, error) {
	r.mu.Lock()
	r.calls = append(r.calls, renderCall(req))
	onCall := r.onCall
	r.mu.Unlock()
	if onCall != nil {
		onCall(req)
	}
	if err := r.errs[req.URL]; err != nil {
		return RenderResult{}, err
	}
	if res, ok := r.pages[req.URL]; ok {
		return res, nil
	}
	return r.fallback, nil
}

func (r *fakeRenderer) Calls() []renderCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]renderCall(nil), r.calls...)
}

type fakeHTTP struct {
	mu        sync.Mutex
	responses map[string]HTTPResponse
	errs      map[string]error
	requests  []HTTPRequest
}

func (f *fakeHTTP) Fetch(_ context.Context, req HTTPRequest) (HTTPResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if err := f.errs[req.URL]; err != nil {
		return HTTPResponse{}, err
	}
	if resp, ok := f.responses[req.URL]; ok {
		return resp, nil
	}
	return HTTPResponse{StatusCode: 200}, nil
}

func (f *fakeHTTP) Requests() []HTTPRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]HTTPRequest(nil), f.requests...)
}

type savedBody struct {
	target string
	record string
	body   string
}

type fakeBodies struct {
	saved []savedBody
	err   error
}

func (b *fakeBodies) SaveBody(_ context.Context, target Target, rec *Record, body []byte) error {
	if b.err != nil {
		return b.err
	}
	b.saved = append(b.saved, savedBody{target: target.ID, record: rec.ID, body: string(body)})
	return nil
}

type recordingObserver struct {
	started  []ScanInfo
	done     []observedRecord
	finished []Report
}

type observedRecord struct {
	position int
	total    int
	url      string
}

func (o *recordingObserver) ScanStarted(info ScanInfo) {
	o.started = append(o.started, info)
}

func (o *recordingObserver) RecordDone(position, total int, rec *Record) {
	o.done = append(o.done, observedRecord{position: position, total: total, url: rec.URL})
}

func (o *recordingObserver) ScanFinished(report Report) {
	o.finished = append(o.finished, report)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func intPtr(v int) *int { return &v }
