// Package app initializes the long-lived services of a scan run and drives one
// scan from seed to persisted report.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitepoke/internal/clock/system"
	"github.com/JakeFAU/sitepoke/internal/config"
	"github.com/JakeFAU/sitepoke/internal/crawler"
	collyfetcher "github.com/JakeFAU/sitepoke/internal/fetcher/colly"
	"github.com/JakeFAU/sitepoke/internal/fetcher/headless"
	"github.com/JakeFAU/sitepoke/internal/id/uuid"
	"github.com/JakeFAU/sitepoke/internal/progress"
	"github.com/JakeFAU/sitepoke/internal/progress/sinks"
	"github.com/JakeFAU/sitepoke/internal/publisher"
	pubsubpublisher "github.com/JakeFAU/sitepoke/internal/publisher/pubsub"
	"github.com/JakeFAU/sitepoke/internal/report"
	"github.com/JakeFAU/sitepoke/internal/storage"
	"github.com/JakeFAU/sitepoke/internal/storage/gcs"
	"github.com/JakeFAU/sitepoke/internal/storage/local"
	"github.com/JakeFAU/sitepoke/internal/storage/postgres"
)

const sinkFlushTimeout = 10 * time.Second

// RecordSaver persists a finished scan in a database.
type RecordSaver interface {
	SaveScan(ctx context.Context, report crawler.Report, records []*crawler.Record, location string) error
}

// App holds the shared services for one process: fetch targets, the metadata
// fetcher and the optional report sinks.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	console *zap.Logger
	colored bool

	clock    crawler.Clock
	dirClock crawler.Clock
	ids      crawler.IDGenerator

	http    crawler.HTTPFetcher
	targets []crawler.Target

	// remote returns the mirror store for a scan directory; nil disables it.
	remote    func(rel string) storage.BlobStore
	records   RecordSaver
	publisher publisher.Publisher

	closers []func() error
}

// Result is the outcome of a scan run.
type Result struct {
	Report crawler.Report
	// Dir is the local scan directory holding the artifacts.
	Dir string
}

// New builds the services described by cfg. Device ids missing from cfg are
// generated here. Optional sinks that fail to initialize are logged and
// disabled.
func New(ctx context.Context, cfg config.Config, logger, console *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if console == nil {
		console = zap.NewNop()
	}
	a := &App{
		cfg:      cfg,
		logger:   logger,
		console:  console,
		colored:  !color.NoColor,
		clock:    system.New(),
		dirClock: system.NewLocal(),
		ids:      uuid.New(),
	}
	if err := a.assignDeviceIDs(); err != nil {
		return nil, err
	}

	a.http = collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.HTTP.UserAgent,
		Timeout:     cfg.HTTPTimeout(),
		MaxBodySize: cfg.HTTP.MaxBodyBytes,
	})
	if err := a.buildTargets(); err != nil {
		a.Close()
		return nil, err
	}

	a.initMirror(ctx)
	a.initRecordStore(ctx)
	a.initPublisher(ctx)
	return a, nil
}

// Logger returns the shared structured logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the effective configuration, including generated device ids.
func (a *App) Config() config.Config {
	return a.cfg
}

func (a *App) assignDeviceIDs() error {
	devices := make([]config.DeviceConfig, len(a.cfg.Devices))
	copy(devices, a.cfg.Devices)
	for i := range devices {
		if devices[i].ID != "" {
			continue
		}
		id, err := a.ids.NewID()
		if err != nil {
			return fmt.Errorf("generate device id: %w", err)
		}
		devices[i].ID = id
	}
	a.cfg.Devices = devices
	return nil
}

func (a *App) buildTargets() error {
	if len(a.cfg.Devices) == 0 {
		renderer, err := headless.New(headless.Config{Engine: headless.EngineChromium, Headless: true})
		if err != nil {
			return fmt.Errorf("default renderer: %w", err)
		}
		a.closers = append(a.closers, closeRenderer(renderer))
		a.targets = []crawler.Target{{Renderer: renderer}}
		return nil
	}
	for _, d := range a.cfg.Devices {
		renderer, err := headless.New(rendererConfig(d))
		if err != nil {
			return fmt.Errorf("device %s: %w", d.Name, err)
		}
		a.closers = append(a.closers, closeRenderer(renderer))
		a.targets = append(a.targets, crawler.Target{
			ID:        d.ID,
			Name:      d.Name,
			UserAgent: d.UserAgent,
			Renderer:  renderer,
			SaveBody:  d.WriteBodyToDisk,
		})
	}
	return nil
}

func rendererConfig(d config.DeviceConfig) headless.Config {
	return headless.Config{
		Engine:            headless.Engine(d.Engine),
		RemoteURL:         d.RemoteURL,
		ExecPath:          d.ExecPath,
		Headless:          d.IsHeadless(),
		UserAgent:         d.UserAgent,
		NavigationTimeout: d.NavTimeout(),
		Viewport: headless.Viewport{
			Width:             int64(d.Viewport.Width),
			Height:            int64(d.Viewport.Height),
			DeviceScaleFactor: d.Viewport.DeviceScaleFactor,
			Mobile:            d.Viewport.Mobile,
		},
	}
}

func closeRenderer(r *headless.Renderer) func() error {
	return func() error {
		r.Close()
		return nil
	}
}

func (a *App) initMirror(ctx context.Context) {
	if a.cfg.Report.GCSBucket == "" {
		return
	}
	store, err := gcs.Dial(ctx, gcs.Config{Bucket: a.cfg.Report.GCSBucket, Prefix: a.cfg.Report.GCSPrefix})
	if err != nil {
		a.logger.Warn("gcs mirror disabled", zap.String("bucket", a.cfg.Report.GCSBucket), zap.Error(err))
		return
	}
	a.closers = append(a.closers, store.Close)
	a.remote = func(rel string) storage.BlobStore {
		return store.Sub(filepath.ToSlash(rel))
	}
}

func (a *App) initRecordStore(ctx context.Context) {
	if a.cfg.DB.DSN == "" {
		return
	}
	store, err := postgres.NewRecordStore(ctx, postgres.RecordStoreConfig{
		DSN:          a.cfg.DB.DSN,
		ScansTable:   a.cfg.DB.ScansTable,
		RecordsTable: a.cfg.DB.RecordsTable,
		MaxConns:     int32(a.cfg.DB.MaxConns), // #nosec G115 -- small configured value
	})
	if err != nil {
		a.logger.Warn("record store disabled", zap.Error(err))
		return
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		a.logger.Warn("record store disabled", zap.Error(err))
		return
	}
	a.closers = append(a.closers, func() error { store.Close(); return nil })
	a.records = store
}

func (a *App) initPublisher(ctx context.Context) {
	if a.cfg.PubSub.TopicName == "" {
		return
	}
	pub, err := pubsubpublisher.Dial(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
	if err != nil {
		a.logger.Warn("scan notifications disabled", zap.String("topic", a.cfg.PubSub.TopicName), zap.Error(err))
		return
	}
	a.closers = append(a.closers, pub.Close)
	a.publisher = pub
}

// Scan crawls rawSeed to exhaustion or until ctx is canceled, then writes the
// report artifacts and feeds the optional sinks. Only configuration errors and
// failures writing local artifacts are returned.
func (a *App) Scan(ctx context.Context, rawSeed string) (Result, error) {
	seed, err := crawler.ParseSeed(rawSeed)
	if err != nil {
		return Result{}, err
	}

	rel := report.RelativeDir(seed, a.dirClock.Now())
	dir := filepath.Join(a.cfg.Scan.ReportPath, rel)
	localStore, err := local.New(local.Config{BaseDir: dir})
	if err != nil {
		return Result{}, fmt.Errorf("create scan directory: %w", err)
	}
	artifacts := a.artifactStore(localStore, rel)

	registry := prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		return Result{}, fmt.Errorf("register scan metrics: %w", err)
	}
	hub := progress.NewHub(progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   a.cfg.BatchWait(),
		Logger:         a.logger.Named("progress"),
	}, sinks.NewLogSink(a.console, a.colored), promSink)

	scanner, err := crawler.NewScanner(crawler.ScannerConfig{
		Seed:      seed,
		Targets:   a.targets,
		HTTP:      a.http,
		Bodies:    report.NewBodySink(artifacts),
		Observer:  progress.NewObserver(hub, a.clock),
		IDs:       a.ids,
		Clock:     a.clock,
		UserAgent: a.cfg.HTTP.UserAgent,
		Logger:    a.logger.Named("scanner"),
	})
	if err != nil {
		a.closeHub(ctx, hub)
		return Result{}, fmt.Errorf("create scanner: %w", err)
	}

	rep, err := scanner.Run(ctx)
	a.closeHub(ctx, hub)
	if err != nil {
		return Result{}, fmt.Errorf("run scan: %w", err)
	}

	// Persist even when the scan was interrupted.
	persistCtx := context.WithoutCancel(ctx)
	records := scanner.Frontier().Records()
	scan := report.Scan{Report: rep, Records: records, Config: a.cfg}
	if a.cfg.Report.MetricsFile {
		scan.Metrics = registry
	}
	if err := report.NewWriter(artifacts, a.logger.Named("report")).Write(persistCtx, scan); err != nil {
		return Result{Report: rep, Dir: dir}, fmt.Errorf("write report: %w", err)
	}
	a.logger.Info("report written", zap.String("scan_id", rep.ScanID), zap.String("dir", dir))

	a.saveRecords(persistCtx, rep, records, dir)
	a.notify(persistCtx, rep, dir)
	return Result{Report: rep, Dir: dir}, nil
}

func (a *App) artifactStore(primary storage.BlobStore, rel string) storage.BlobStore {
	if a.remote == nil {
		return primary
	}
	return &storage.Mirror{
		Primary:     primary,
		Secondaries: []storage.BlobStore{a.remote(rel)},
		OnMirrorError: func(path string, err error) {
			a.logger.Warn("gcs mirror write failed", zap.String("path", path), zap.Error(err))
		},
	}
}

func (a *App) closeHub(ctx context.Context, hub *progress.Hub) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkFlushTimeout)
	defer cancel()
	if err := hub.Close(closeCtx); err != nil {
		a.logger.Warn("progress hub close failed", zap.Error(err))
	}
}

func (a *App) saveRecords(ctx context.Context, rep crawler.Report, records []*crawler.Record, location string) {
	if a.records == nil {
		return
	}
	if err := a.records.SaveScan(ctx, rep, records, location); err != nil {
		a.logger.Warn("save scan rows failed", zap.String("scan_id", rep.ScanID), zap.Error(err))
	}
}

func (a *App) notify(ctx context.Context, rep crawler.Report, location string) {
	if a.publisher == nil {
		return
	}
	msg := publisher.NewScanCompleted(rep, location)
	id, err := a.publisher.Publish(ctx, msg.Attributes(), msg)
	if err != nil {
		a.logger.Warn("scan notification failed", zap.String("scan_id", rep.ScanID), zap.Error(err))
		return
	}
	a.logger.Debug("scan notification published", zap.String("message_id", id))
}

// Close shuts down all services in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
}
