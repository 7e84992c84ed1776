package crawler

import (
	"net/http"
	"net/url"
	"time"
)

// Kind classifies a discovered URL. It is decided once, at insertion time.
type Kind string

// Record kinds.
const (
	KindResource Kind = "resource"
	KindAsset    Kind = "asset"
	KindExternal Kind = "external"
)

// State is the lifecycle state of a Scanner.
type State string

// Scanner states.
const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
)

// Record is one frontier entry: a URL plus its classification, lifecycle,
// and fetch results.
type Record struct {
	ID             string        `json:"id"`
	URL            string        `json:"url"`
	Kind           Kind          `json:"kind"`
	DiscoveredFrom string        `json:"discovered_from,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	EndedAt        *time.Time    `json:"ended_at,omitempty"`
	DurationMs     *int64        `json:"duration_ms,omitempty"`
	Links          []string      `json:"links,omitempty"`
	Responses      []FetchResult `json:"responses"`
	Errors         []string      `json:"errors,omitempty"`

	parsed  *url.URL
	linkSet map[string]struct{}
}

// Processed reports whether the dispatcher has touched the record.
func (r *Record) Processed() bool {
	return r.StartedAt != nil
}

// Parsed returns the record URL in parsed form.
func (r *Record) Parsed() *url.URL {
	return r.parsed
}

// addLink appends u to Links unless it is already present.
func (r *Record) addLink(u string) {
	if r.linkSet == nil {
		r.linkSet = make(map[string]struct{}, len(r.Links))
		for _, l := range r.Links {
			r.linkSet[l] = struct{}{}
		}
	}
	if _, ok := r.linkSet[u]; ok {
		return
	}
	r.linkSet[u] = struct{}{}
	r.Links = append(r.Links, u)
}

// FetchResult is the outcome of one successful transport round-trip for one
// fetch target.
type FetchResult struct {
	SourceID       string            `json:"source_id,omitempty"`
	StatusCode     *int              `json:"status_code"`
	StatusText     *string           `json:"status_text"`
	Headers        map[string]string `json:"headers"`
	ResponseTimeMs *int64            `json:"response_time_ms,omitempty"`
	ContentLength  *int64            `json:"content_length,omitempty"`
	Timing         *Timing           `json:"timing,omitempty"`
}

// Timing is the transport timing breakdown reported by a renderer. Offsets
// are milliseconds relative to StartTime; -1 means unavailable.
type Timing struct {
	StartTime             float64 `json:"start_time"`
	DomainLookupStart     float64 `json:"domain_lookup_start"`
	DomainLookupEnd       float64 `json:"domain_lookup_end"`
	ConnectStart          float64 `json:"connect_start"`
	SecureConnectionStart float64 `json:"secure_connection_start"`
	ConnectEnd            float64 `json:"connect_end"`
	RequestStart          float64 `json:"request_start"`
	ResponseStart         float64 `json:"response_start"`
	ResponseEnd           float64 `json:"response_end"`
}

// Target is one configured fetch profile. Every record is fetched once per
// target.
type Target struct {
	// ID is empty for the single implicit default target.
	ID        string
	Name      string
	UserAgent string
	Renderer  Renderer
	SaveBody  bool
}

// RenderRequest asks a Renderer to navigate to URL.
type RenderRequest struct {
	URL     string
	Referer string
}

// RenderResult is what a Renderer returns after a successful navigation.
type RenderResult struct {
	StatusCode int
	StatusText string
	Headers    map[string]string
	Timing     *Timing
	// Body is nil when the renderer could not retrieve the response body.
	Body     []byte
	Duration time.Duration
	Document Document
}

// HTTPRequest is a metadata-only fetch.
type HTTPRequest struct {
	URL     string
	Headers http.Header
}

// HTTPResponse carries the metadata of a metadata-only fetch.
type HTTPResponse struct {
	StatusCode int
	StatusText string
	Headers    http.Header
	Duration   time.Duration
}

// ScanInfo describes a scan's identity and lifecycle.
type ScanInfo struct {
	ID        string
	Seed      string
	State     State
	StartedAt *time.Time
	EndedAt   *time.Time
}

// Report is the aggregate summary of a finished scan.
type Report struct {
	ScanID         string              `json:"scan_id"`
	Seed           string              `json:"seed"`
	AbortedByUser  bool                `json:"aborted_by_user"`
	StartedAt      time.Time           `json:"started_at"`
	EndedAt        time.Time           `json:"ended_at"`
	DurationMs     int64               `json:"duration_ms"`
	RecordCount    int                 `json:"record_count"`
	ProcessedCount int                 `json:"processed_count"`
	StatusCodes    map[int]int         `json:"status_codes"`
	Failures       map[string][]string `json:"failures"`
}
