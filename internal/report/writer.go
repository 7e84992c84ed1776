package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitepoke/internal/crawler"
	"github.com/JakeFAU/sitepoke/internal/storage"
)

// Artifact names inside a scan directory.
const (
	ScanFile     = "scan.json"
	QueueFile    = "queue.json"
	ConfigFile   = "config.json"
	MetricsFile  = "metrics.prom"
	MarkdownFile = "report.md"
)

// DirTimeLayout names scan directories after their local start time.
const DirTimeLayout = "2006-01-02-15-04-05"

// Scan bundles everything the writer persists for one finished scan.
type Scan struct {
	Report  crawler.Report
	Records []*crawler.Record
	// Config is the effective configuration, marshaled as-is.
	Config any
	// Metrics is optional; nil skips the textfile.
	Metrics prometheus.Gatherer
}

// Writer stores scan artifacts in a BlobStore.
type Writer struct {
	store  storage.BlobStore
	logger *zap.Logger
}

// NewWriter returns a Writer backed by store.
func NewWriter(store storage.BlobStore, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{store: store, logger: logger}
}

// RelativeDir is the scan directory below a report root:
// reports/<lower host>/<timestamp>.
func RelativeDir(seed *url.URL, at time.Time) string {
	return filepath.Join("reports", strings.ToLower(seed.Hostname()), at.Format(DirTimeLayout))
}

// Write persists every artifact. It stops at the first failure.
func (w *Writer) Write(ctx context.Context, scan Scan) error {
	if w.store == nil {
		return fmt.Errorf("report writer has no store")
	}
	if err := w.putJSON(ctx, ScanFile, scan.Report); err != nil {
		return err
	}
	records := scan.Records
	if records == nil {
		records = []*crawler.Record{}
	}
	if err := w.putJSON(ctx, QueueFile, records); err != nil {
		return err
	}
	if scan.Config != nil {
		if err := w.putJSON(ctx, ConfigFile, scan.Config); err != nil {
			return err
		}
	}
	if scan.Metrics != nil {
		if err := w.putMetrics(ctx, scan.Metrics); err != nil {
			return err
		}
	}

	var md bytes.Buffer
	if err := renderMarkdown(&md, scan.Report); err != nil {
		return fmt.Errorf("render %s: %w", MarkdownFile, err)
	}
	return w.put(ctx, MarkdownFile, "text/markdown; charset=utf-8", &md)
}

func (w *Writer) putJSON(ctx context.Context, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	return w.put(ctx, name, "application/json", bytes.NewBuffer(data))
}

func (w *Writer) putMetrics(ctx context.Context, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return fmt.Errorf("encode metric %s: %w", mf.GetName(), err)
		}
	}
	return w.put(ctx, MetricsFile, "text/plain; version=0.0.4", &buf)
}

func (w *Writer) put(ctx context.Context, name, contentType string, buf *bytes.Buffer) error {
	uri, err := w.store.PutObject(ctx, name, contentType, buf)
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	w.logger.Debug("artifact written", zap.String("name", name), zap.String("uri", uri))
	return nil
}
