package crawler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultUserAgent is sent when neither the target nor the HTTP options name one.
const DefaultUserAgent = "sitepoke/0.1"

// DispatcherConfig carries options shared by all targets.
type DispatcherConfig struct {
	// UserAgent is used by metadata fetches for targets without their own.
	UserAgent string
}

// Dispatcher fetches a single record against every configured target using
// the strategy its kind calls for.
type Dispatcher struct {
	cfg       DispatcherConfig
	frontier  *Frontier
	extractor *Extractor
	http      HTTPFetcher
	targets   []Target
	bodies    BodySink
	clock     Clock
	logger    *zap.Logger
}

// NewDispatcher wires a Dispatcher. bodies may be nil when no target keeps
// response bodies.
func NewDispatcher(
	cfg DispatcherConfig,
	frontier *Frontier,
	extractor *Extractor,
	httpFetcher HTTPFetcher,
	targets []Target,
	bodies BodySink,
	clock Clock,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		cfg:       cfg,
		frontier:  frontier,
		extractor: extractor,
		http:      httpFetcher,
		targets:   append([]Target(nil), targets...),
		bodies:    bodies,
		clock:     clock,
		logger:    logger,
	}
}

// Targets returns the configured fetch targets.
func (d *Dispatcher) Targets() []Target {
	return append([]Target(nil), d.targets...)
}

// Dispatch runs every target against rec sequentially. Failures are recorded
// on rec and never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, rec *Record) {
	referer := d.referer(rec)
	for _, target := range d.targets {
		var err error
		switch rec.Kind {
		case KindResource:
			err = d.renderFetch(ctx, target, rec, referer)
		default:
			err = d.metadataFetch(ctx, target, rec, referer)
		}
		if err != nil {
			d.recordFailure(rec, target, err)
		}
	}
}

func (d *Dispatcher) referer(rec *Record) string {
	if rec.DiscoveredFrom == "" {
		return ""
	}
	parent, ok := d.frontier.Get(rec.DiscoveredFrom)
	if !ok {
		return ""
	}
	return parent.URL
}

func (d *Dispatcher) userAgent(target Target) string {
	switch {
	case target.UserAgent != "":
		return target.UserAgent
	case d.cfg.UserAgent != "":
		return d.cfg.UserAgent
	default:
		return DefaultUserAgent
	}
}

func (d *Dispatcher) metadataFetch(ctx context.Context, target Target, rec *Record, referer string) error {
	if d.http == nil {
		return errNoHTTPFetcher
	}
	headers := http.Header{}
	headers.Set("Accept", "*/*")
	headers.Set("User-Agent", d.userAgent(target))
	if referer != "" {
		headers.Set("Referer", referer)
	}
	resp, err := d.http.Fetch(ctx, HTTPRequest{URL: rec.URL, Headers: headers})
	if err != nil {
		return err
	}
	result := FetchResult{
		SourceID:       target.ID,
		Headers:        firstValues(resp.Headers),
		ResponseTimeMs: durationMs(resp.Duration),
	}
	setStatus(&result, resp.StatusCode, resp.StatusText)
	if n, ok := parseContentLength(resp.Headers.Get("Content-Length")); ok {
		result.ContentLength = &n
	}
	rec.Responses = append(rec.Responses, result)
	return nil
}

func (d *Dispatcher) renderFetch(ctx context.Context, target Target, rec *Record, referer string) error {
	if target.Renderer == nil {
		return errNoRenderer
	}
	res, err := target.Renderer.Render(ctx, RenderRequest{URL: rec.URL, Referer: referer})
	if err != nil {
		return err
	}
	headers := res.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	result := FetchResult{
		SourceID:       target.ID,
		Headers:        headers,
		ResponseTimeMs: durationMs(res.Duration),
		Timing:         res.Timing,
	}
	setStatus(&result, res.StatusCode, res.StatusText)
	if res.Body != nil {
		n := int64(len(res.Body))
		result.ContentLength = &n
	}
	rec.Responses = append(rec.Responses, result)

	if target.SaveBody && res.Body != nil && d.bodies != nil {
		if err := d.bodies.SaveBody(ctx, target, rec, res.Body); err != nil {
			d.logger.Warn("save body failed",
				zap.String("url", rec.URL),
				zap.String("target", target.Name),
				zap.Error(err),
			)
		}
	}
	if res.Document != nil && d.extractor != nil {
		added := d.extractor.Extract(rec, res.Document)
		d.logger.Debug("links extracted",
			zap.String("url", rec.URL),
			zap.Int("links", len(rec.Links)),
			zap.Int("new", added),
		)
	}
	return nil
}

func (d *Dispatcher) recordFailure(rec *Record, target Target, err error) {
	msg := err.Error()
	if IsTimeout(err) {
		var elapsed time.Duration
		if rec.StartedAt != nil {
			elapsed = d.clock.Now().Sub(*rec.StartedAt)
		}
		msg = timeoutMessage(elapsed)
	}
	rec.Errors = append(rec.Errors, msg)
	d.logger.Debug("fetch failed",
		zap.String("url", rec.URL),
		zap.String("target", target.Name),
		zap.Error(err),
	)
}

func setStatus(result *FetchResult, code int, text string) {
	if code <= 0 {
		return
	}
	result.StatusCode = &code
	if text == "" {
		text = http.StatusText(code)
	}
	result.StatusText = &text
}

func firstValues(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if len(values) == 0 {
			continue
		}
		out[strings.ToLower(name)] = values[0]
	}
	return out
}

func durationMs(d time.Duration) *int64 {
	if d < 0 {
		return nil
	}
	ms := d.Milliseconds()
	return &ms
}

func parseContentLength(raw string) (int64, bool) {
	if raw == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
