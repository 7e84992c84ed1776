package report

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitepoke/internal/crawler"
	"github.com/JakeFAU/sitepoke/internal/storage/local"
)

func sampleReport() crawler.Report {
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return crawler.Report{
		ScanID:         "scan-1",
		Seed:           "https://example.com/",
		StartedAt:      started,
		EndedAt:        started.Add(3 * time.Second),
		DurationMs:     3000,
		RecordCount:    3,
		ProcessedCount: 3,
		StatusCodes:    map[int]int{200: 2, 404: 1},
		Failures: map[string][]string{
			crawler.FailedKey: {"https://example.com/down"},
			"404":             {"https://example.com/missing"},
		},
	}
}

func newLocalStore(t *testing.T) *local.BlobStore {
	t.Helper()
	store, err := local.New(local.Config{BaseDir: filepath.Join(t.TempDir(), "scan")})
	require.NoError(t, err)
	return store
}

func TestWriterWritesAllArtifacts(t *testing.T) {
	t.Parallel()

	store := newLocalStore(t)
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "sitepoke_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(3)

	records := []*crawler.Record{{ID: "r1", URL: "https://example.com/", Kind: crawler.KindResource}}
	err := NewWriter(store, nil).Write(context.Background(), Scan{
		Report:  sampleReport(),
		Records: records,
		Config:  map[string]any{"scan": map[string]string{"report_path": "."}},
		Metrics: reg,
	})
	require.NoError(t, err)

	for _, name := range []string{ScanFile, QueueFile, ConfigFile, MetricsFile, MarkdownFile} {
		_, statErr := os.Stat(filepath.Join(store.Dir(), name))
		require.NoError(t, statErr, name)
	}

	var summary crawler.Report
	readJSON(t, filepath.Join(store.Dir(), ScanFile), &summary)
	assert.Equal(t, "scan-1", summary.ScanID)
	assert.Equal(t, map[int]int{200: 2, 404: 1}, summary.StatusCodes)

	var queue []map[string]any
	readJSON(t, filepath.Join(store.Dir(), QueueFile), &queue)
	require.Len(t, queue, 1)
	assert.Equal(t, "https://example.com/", queue[0]["url"])
	assert.Equal(t, "resource", queue[0]["kind"])

	metrics, err := os.ReadFile(filepath.Join(store.Dir(), MetricsFile))
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "sitepoke_test_total 3")

	md, err := os.ReadFile(filepath.Join(store.Dir(), MarkdownFile))
	require.NoError(t, err)
	assert.Contains(t, string(md), "# Scan Report")
	assert.Contains(t, string(md), "https://example.com/missing")
	assert.Contains(t, string(md), "```mermaid")
}

func TestWriterSkipsOptionalArtifacts(t *testing.T) {
	t.Parallel()

	store := newLocalStore(t)
	require.NoError(t, NewWriter(store, nil).Write(context.Background(), Scan{Report: sampleReport()}))

	_, err := os.Stat(filepath.Join(store.Dir(), ConfigFile))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(store.Dir(), MetricsFile))
	assert.True(t, os.IsNotExist(err))

	raw, err := os.ReadFile(filepath.Join(store.Dir(), QueueFile))
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(raw))
}

type failingStore struct{ err error }

func (f failingStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", f.err
}

func TestWriterReturnsStoreErrors(t *testing.T) {
	t.Parallel()

	err := NewWriter(failingStore{err: errors.New("disk full")}, nil).Write(context.Background(), Scan{Report: sampleReport()})
	require.ErrorContains(t, err, "write scan.json")
	require.ErrorContains(t, err, "disk full")

	err = NewWriter(nil, nil).Write(context.Background(), Scan{})
	require.Error(t, err)
}

func TestRelativeDir(t *testing.T) {
	t.Parallel()

	seed, err := url.Parse("https://WWW.Example.COM:8443/path")
	require.NoError(t, err)
	at := time.Date(2024, 3, 1, 9, 5, 7, 0, time.Local)
	assert.Equal(t, filepath.Join("reports", "www.example.com", "2024-03-01-09-05-07"), RelativeDir(seed, at))
}

func TestBodySink(t *testing.T) {
	t.Parallel()

	store := newLocalStore(t)
	sink := NewBodySink(store)
	rec := &crawler.Record{ID: "rec-1"}

	require.NoError(t, sink.SaveBody(context.Background(), crawler.Target{ID: "dev-1"}, rec, []byte("<html></html>")))
	got, err := os.ReadFile(filepath.Join(store.Dir(), "bodies", "dev-1", "rec-1.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(got))

	assert.Equal(t, "bodies/default/rec-1.html", BodyPath("", "rec-1"))

	err = NewBodySink(failingStore{err: errors.New("boom")}).SaveBody(context.Background(), crawler.Target{}, rec, nil)
	require.ErrorContains(t, err, "bodies/default/rec-1.html")
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v))
}
