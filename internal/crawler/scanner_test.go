package crawler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScanner(t *testing.T, seed string, renderer Renderer, client HTTPFetcher, obs Observer) *Scanner {
	t.Helper()
	s, err := NewScanner(ScannerConfig{
		Seed:     mustURL(t, seed),
		Targets:  []Target{{Renderer: renderer}},
		HTTP:     client,
		Observer: obs,
		IDs:      &seqIDs{},
		Clock:    newStepClock(10 * time.Millisecond),
	})
	require.NoError(t, err)
	return s
}

func TestScannerCrawlsSmallSite(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{
		pages: map[string]RenderResult{
			"https://example.com/": {
				StatusCode: 200,
				Document: fakeDoc{attrs: map[string][]string{
					"a/href":  {"/about", "https://other.org/"},
					"img/src": {"https://cdn.example.net/logo.png"},
				}},
			},
		},
		fallback: RenderResult{StatusCode: 200, Document: fakeDoc{}},
	}
	client := &fakeHTTP{responses: map[string]HTTPResponse{
		"https://cdn.example.net/logo.png": {StatusCode: 404},
	}}
	obs := &recordingObserver{}
	s := newTestScanner(t, "https://example.com/", renderer, client, obs)
	assert.Equal(t, StateIdle, s.Info().State)

	report, err := s.Run(context.Background())
	require.NoError(t, err)

	records := s.Frontier().Records()
	require.Len(t, records, 4)
	gotKinds := map[string]Kind{}
	for _, rec := range records {
		gotKinds[rec.URL] = rec.Kind
		require.NotNil(t, rec.StartedAt, rec.URL)
		require.NotNil(t, rec.EndedAt, rec.URL)
		require.NotNil(t, rec.DurationMs, rec.URL)
		assert.Len(t, rec.Responses, 1, rec.URL)
	}
	assert.Equal(t, map[string]Kind{
		"https://example.com/":             KindResource,
		"https://example.com/about":        KindResource,
		"https://other.org/":               KindExternal,
		"https://cdn.example.net/logo.png": KindExternal,
	}, gotKinds)

	assert.Equal(t, StateCompleted, s.Info().State)
	assert.False(t, report.AbortedByUser)
	assert.Equal(t, map[int]int{200: 3, 404: 1}, report.StatusCodes)
	assert.Empty(t, report.Failures[FailedKey])
	assert.Equal(t, []string{"https://cdn.example.net/logo.png"}, report.Failures["404"])
	assert.Equal(t, 4, report.ProcessedCount)

	require.Len(t, obs.started, 1)
	require.Len(t, obs.finished, 1)
	require.Len(t, obs.done, 4)
	assert.Equal(t, observedRecord{position: 1, total: 4, url: "https://example.com/"}, obs.done[0])
	assert.Equal(t, 4, obs.done[3].position)

	// Only the page reached from the seed carries a referer.
	calls := renderer.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "https://example.com/", calls[1].Referer)
}

func TestScannerSeedTimeout(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{errs: map[string]error{
		"https://example.com/": fmt.Errorf("navigate: %w", context.DeadlineExceeded),
	}}
	s := newTestScanner(t, "https://example.com/", renderer, &fakeHTTP{}, nil)

	report, err := s.Run(context.Background())
	require.NoError(t, err)

	records := s.Frontier().Records()
	require.Len(t, records, 1)
	seed := records[0]
	assert.Empty(t, seed.Responses)
	require.Len(t, seed.Errors, 1)
	assert.Contains(t, seed.Errors[0], "Timeout")
	assert.Equal(t, []string{"https://example.com/"}, report.Failures[FailedKey])
	assert.Empty(t, report.StatusCodes)
}

type abortingObserver struct {
	recordingObserver
	after   int
	scanner *Scanner
}

func (o *abortingObserver) RecordDone(position, total int, rec *Record) {
	o.recordingObserver.RecordDone(position, total, rec)
	if position == o.after {
		o.scanner.Abort()
	}
}

func TestScannerAbortKeepsUnprocessedRecords(t *testing.T) {
	t.Parallel()

	links := make([]string, 0, 9)
	for i := 1; i <= 9; i++ {
		links = append(links, fmt.Sprintf("/p%d", i))
	}
	renderer := &fakeRenderer{
		pages: map[string]RenderResult{
			"https://example.com/": {
				StatusCode: 200,
				Document:   fakeDoc{attrs: map[string][]string{"a/href": links}},
			},
		},
		fallback: RenderResult{StatusCode: 200},
	}
	obs := &abortingObserver{after: 2}
	s := newTestScanner(t, "https://example.com/", renderer, &fakeHTTP{}, obs)
	obs.scanner = s

	report, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateAborted, s.Info().State)
	assert.True(t, report.AbortedByUser)
	records := s.Frontier().Records()
	require.Len(t, records, 10)
	assert.Equal(t, 2, report.ProcessedCount)
	for _, rec := range records[2:] {
		assert.Nil(t, rec.StartedAt, rec.URL)
		assert.Empty(t, rec.Responses, rec.URL)
		assert.Empty(t, rec.Errors, rec.URL)
	}
	assert.Len(t, report.Failures[FailedKey], 8)
	assert.Len(t, obs.done, 2)
}

func TestScannerContextCancelFinishesInFlightRecord(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	renderer := &fakeRenderer{
		pages: map[string]RenderResult{
			"https://example.com/": {
				StatusCode: 200,
				Document:   fakeDoc{attrs: map[string][]string{"a/href": {"/next"}}},
			},
		},
		onCall: func(RenderRequest) { cancel() },
	}
	s := newTestScanner(t, "https://example.com/", renderer, &fakeHTTP{}, nil)

	report, err := s.Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.AbortedByUser)
	records := s.Frontier().Records()
	require.Len(t, records, 2)
	assert.Len(t, records[0].Responses, 1)
	assert.False(t, records[1].Processed())
}

func TestScannerRunTwice(t *testing.T) {
	t.Parallel()

	s := newTestScanner(t, "https://example.com/", &fakeRenderer{fallback: RenderResult{StatusCode: 200}}, nil, nil)
	_, err := s.Run(context.Background())
	require.NoError(t, err)
	_, err = s.Run(context.Background())
	require.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestNewScannerValidation(t *testing.T) {
	t.Parallel()

	_, err := NewScanner(ScannerConfig{IDs: &seqIDs{}, Clock: newStepClock(0), Targets: []Target{{}}})
	require.Error(t, err)
	_, err = NewScanner(ScannerConfig{Seed: mustURL(t, "https://example.com/"), IDs: &seqIDs{}, Clock: newStepClock(0)})
	require.Error(t, err)
}

func TestScannerFrontierNeverShrinks(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{fallback: RenderResult{
		StatusCode: 200,
		Document:   fakeDoc{attrs: map[string][]string{"a/href": {"/", "/a", "/b", "/a"}}},
	}}
	lengths := []int{}
	obs := &lengthObserver{lengths: &lengths}
	s := newTestScanner(t, "https://example.com/", renderer, nil, obs)
	_, err := s.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, lengths, 3)
	for i := 1; i < len(lengths); i++ {
		assert.GreaterOrEqual(t, lengths[i], lengths[i-1])
	}
	seen := map[string]bool{}
	for _, rec := range s.Frontier().Records() {
		require.False(t, seen[rec.URL], "duplicate %s", rec.URL)
		seen[rec.URL] = true
	}
}

type lengthObserver struct {
	nopObserver
	lengths *[]int
}

func (o *lengthObserver) RecordDone(_, total int, _ *Record) {
	*o.lengths = append(*o.lengths, total)
}

func TestScannerSeedWithoutTrailingSlashRendersOnce(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{fallback: RenderResult{
		StatusCode: 200,
		Document: fakeDoc{attrs: map[string][]string{
			"a/href": {"/", "https://EXAMPLE.com/", "https://example.com:443/", "https://example.com"},
		}},
	}}
	s := newTestScanner(t, "https://example.com", renderer, nil, nil)

	report, err := s.Run(context.Background())
	require.NoError(t, err)

	records := s.Frontier().Records()
	require.Len(t, records, 1)
	assert.Equal(t, "https://example.com/", records[0].URL)
	assert.Equal(t, []string{"https://example.com/"}, records[0].Links)
	assert.Len(t, renderer.Calls(), 1)
	assert.Equal(t, "https://example.com/", report.Seed)
}
