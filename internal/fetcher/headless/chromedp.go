// Package headless renders pages in Chromium via chromedp.
package headless

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/sitepoke/internal/crawler"
	"github.com/JakeFAU/sitepoke/internal/dom"
)

// Engine selects how the browser is obtained.
type Engine string

// Supported engines.
const (
	// EngineChromium launches a local Chromium process.
	EngineChromium Engine = "chromium"
	// EngineRemote attaches to an already running DevTools endpoint.
	EngineRemote Engine = "remote"
)

const defaultNavTimeout = 30 * time.Second

// Viewport is the emulated device screen.
type Viewport struct {
	Width             int64
	Height            int64
	DeviceScaleFactor float64
	Mobile            bool
}

// Config controls one device profile.
type Config struct {
	Engine            Engine
	RemoteURL         string
	ExecPath          string
	Headless          bool
	UserAgent         string
	NavigationTimeout time.Duration
	Viewport          Viewport
}

// Renderer implements crawler.Renderer with a single browser shared by all
// navigations of one device profile. Every Render opens a fresh tab.
type Renderer struct {
	cfg           Config
	allocator     context.Context
	allocCancel   context.CancelFunc
	browser       context.Context
	browserCancel context.CancelFunc
}

// New prepares a Renderer. The browser is not contacted until Start.
func New(cfg Config) (*Renderer, error) {
	if cfg.Engine == "" {
		cfg.Engine = EngineChromium
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	switch cfg.Engine {
	case EngineChromium:
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), execOptions(cfg)...)
	case EngineRemote:
		if strings.TrimSpace(cfg.RemoteURL) == "" {
			return nil, fmt.Errorf("remote engine requires a devtools url")
		}
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
	default:
		return nil, fmt.Errorf("unsupported engine %q", cfg.Engine)
	}
	return &Renderer{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

func execOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		opts = append(opts, chromedp.WindowSize(int(cfg.Viewport.Width), int(cfg.Viewport.Height)))
	}
	return append(opts, platformOptions()...)
}

// Start launches or attaches to the browser.
func (r *Renderer) Start(ctx context.Context) error {
	if r.browser != nil {
		return nil
	}
	browserCtx, cancel := chromedp.NewContext(r.allocator)
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return fmt.Errorf("start browser: %w", err)
	}
	r.browser = browserCtx
	r.browserCancel = cancel
	return nil
}

// Close shuts the browser down and releases the allocator.
func (r *Renderer) Close() {
	if r.browserCancel != nil {
		r.browserCancel()
	}
	r.allocCancel()
}

// Render navigates a new tab to request.URL and snapshots the resulting DOM.
func (r *Renderer) Render(ctx context.Context, request crawler.RenderRequest) (crawler.RenderResult, error) {
	if r.browser == nil {
		if err := r.Start(ctx); err != nil {
			return crawler.RenderResult{}, err
		}
	}
	tabCtx, tabCancel := chromedp.NewContext(r.browser)
	defer tabCancel()
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	navCtx, cancel := context.WithTimeout(tabCtx, r.navTimeout())
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(navCtx, meta.captureEvent)

	start := time.Now()
	var html string
	actions := []chromedp.Action{
		r.setupAction(),
		navigateAction(request.URL, request.Referer, meta.loaded),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(navCtx, actions...); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(navCtx.Err(), context.DeadlineExceeded) {
			return crawler.RenderResult{}, fmt.Errorf("navigate %s: %w", request.URL, crawler.ErrTimeout)
		}
		return crawler.RenderResult{}, fmt.Errorf("chromedp run: %w", err)
	}
	elapsed := time.Since(start)

	doc, err := dom.Parse(html)
	if err != nil {
		return crawler.RenderResult{}, err
	}

	snap := meta.snapshot()
	var body []byte
	if snap.requestID != "" {
		body = fetchBody(navCtx, snap.requestID)
	}
	return crawler.RenderResult{
		StatusCode: snap.status,
		StatusText: snap.statusText,
		Headers:    snap.headers,
		Timing:     snap.timing(),
		Body:       body,
		Duration:   elapsed,
		Document:   doc,
	}, nil
}

// setupAction prepares a fresh tab for the device profile.
func (r *Renderer) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if r.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(r.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		vp := r.cfg.Viewport
		if vp.Width > 0 && vp.Height > 0 {
			scale := vp.DeviceScaleFactor
			if scale <= 0 {
				scale = 1
			}
			if err := emulation.SetDeviceMetricsOverride(vp.Width, vp.Height, scale, vp.Mobile).Do(ctx); err != nil {
				return fmt.Errorf("set device metrics: %w", err)
			}
		}
		return nil
	})
}

// navigateAction loads url in the tab and waits for its load event. The
// referer only applies to the top-level navigation request.
func navigateAction(url, referer string, loaded <-chan struct{}) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var res page.NavigateReturns
		if err := cdp.Execute(ctx, page.CommandNavigate, navigateParams(url, referer), &res); err != nil {
			return err
		}
		if res.ErrorText != "" {
			return fmt.Errorf("page load error %s", res.ErrorText)
		}
		select {
		case <-loaded:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func navigateParams(url, referer string) *page.NavigateParams {
	params := page.Navigate(url)
	if referer != "" {
		params = params.WithReferrer(referer)
	}
	return params
}

func fetchBody(ctx context.Context, id network.RequestID) []byte {
	var body []byte
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		body, err = network.GetResponseBody(id).Do(ctx)
		return err
	}))
	if err != nil {
		return nil
	}
	return body
}

func (r *Renderer) navTimeout() time.Duration {
	if r.cfg.NavigationTimeout > 0 {
		return r.cfg.NavigationTimeout
	}
	return defaultNavTimeout
}

// responseMeta tracks the main document request of one navigation.
type responseMeta struct {
	mu         sync.Mutex
	requestID  network.RequestID
	wallTime   time.Time
	status     int
	statusText string
	headers    map[string]string
	resTiming  *network.ResourceTiming
	finished   time.Time
	loaded     chan struct{}
	loadedOnce sync.Once
}

type metaSnapshot struct {
	requestID  network.RequestID
	wallTime   time.Time
	status     int
	statusText string
	headers    map[string]string
	resTiming  *network.ResourceTiming
	finished   time.Time
}

func newResponseMeta() *responseMeta {
	return &responseMeta{headers: map[string]string{}, loaded: make(chan struct{})}
}

func (m *responseMeta) captureEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		m.captureRequest(e)
	case *network.EventResponseReceived:
		m.captureResponse(e)
	case *network.EventLoadingFinished:
		m.captureFinished(e)
	case *page.EventLoadEventFired:
		m.captureLoad()
	}
}

// captureLoad signals loaded once the main document request has been seen.
// Load events of the initial blank page are ignored.
func (m *responseMeta) captureLoad() {
	m.mu.Lock()
	started := m.requestID != ""
	m.mu.Unlock()
	if started {
		m.loadedOnce.Do(func() { close(m.loaded) })
	}
}

func (m *responseMeta) captureRequest(e *network.EventRequestWillBeSent) {
	if e.Type != network.ResourceTypeDocument {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.requestID != "" {
		return
	}
	m.requestID = e.RequestID
	if e.WallTime != nil {
		m.wallTime = e.WallTime.Time()
	}
}

func (m *responseMeta) captureResponse(e *network.EventResponseReceived) {
	if e.Type != network.ResourceTypeDocument || e.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.requestID == "" {
		m.requestID = e.RequestID
	}
	if e.RequestID != m.requestID {
		return
	}
	m.status = int(e.Response.Status)
	m.statusText = e.Response.StatusText
	m.headers = headerMap(e.Response.Headers)
	m.resTiming = e.Response.Timing
}

func (m *responseMeta) captureFinished(e *network.EventLoadingFinished) {
	if e.Timestamp == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.RequestID != m.requestID {
		return
	}
	m.finished = e.Timestamp.Time()
}

func (m *responseMeta) snapshot() metaSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	headers := make(map[string]string, len(m.headers))
	for k, v := range m.headers {
		headers[k] = v
	}
	return metaSnapshot{
		requestID:  m.requestID,
		wallTime:   m.wallTime,
		status:     m.status,
		statusText: m.statusText,
		headers:    headers,
		resTiming:  m.resTiming,
		finished:   m.finished,
	}
}

// timing converts the DevTools resource timing into millisecond offsets from
// the request start. Missing phases are -1.
func (s metaSnapshot) timing() *crawler.Timing {
	if s.resTiming == nil {
		return nil
	}
	rt := s.resTiming
	t := &crawler.Timing{
		StartTime:             -1,
		DomainLookupStart:     rt.DNSStart,
		DomainLookupEnd:       rt.DNSEnd,
		ConnectStart:          rt.ConnectStart,
		SecureConnectionStart: rt.SslStart,
		ConnectEnd:            rt.ConnectEnd,
		RequestStart:          rt.SendStart,
		ResponseStart:         rt.ReceiveHeadersEnd,
		ResponseEnd:           -1,
	}
	if !s.wallTime.IsZero() {
		t.StartTime = float64(s.wallTime.UnixNano()) / float64(time.Millisecond)
	}
	if !s.finished.IsZero() && cdp.MonotonicTimeEpoch != nil {
		finishedSec := s.finished.Sub(*cdp.MonotonicTimeEpoch).Seconds()
		t.ResponseEnd = (finishedSec - rt.RequestTime) * 1000
	}
	return t
}

// headerMap lowercases names and keeps the first value. DevTools joins repeated
// headers with newlines.
func headerMap(h network.Headers) map[string]string {
	out := make(map[string]string, len(h))
	for key, value := range h {
		var v string
		switch val := value.(type) {
		case string:
			v = val
		case []string:
			if len(val) > 0 {
				v = val[0]
			}
		case []any:
			if len(val) > 0 {
				v = fmt.Sprint(val[0])
			}
		default:
			v = fmt.Sprint(val)
		}
		if i := strings.IndexByte(v, '\n'); i >= 0 {
			v = v[:i]
		}
		out[strings.ToLower(key)] = v
	}
	return out
}
