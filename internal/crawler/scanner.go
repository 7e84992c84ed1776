package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ScannerConfig wires the collaborators of a Scanner.
type ScannerConfig struct {
	Seed      *url.URL
	Targets   []Target
	HTTP      HTTPFetcher
	Bodies    BodySink
	Observer  Observer
	IDs       IDGenerator
	Clock     Clock
	UserAgent string
	Logger    *zap.Logger
}

// Scanner owns a Frontier and drives the sequential crawl loop for one seed.
type Scanner struct {
	id         string
	frontier   *Frontier
	dispatcher *Dispatcher
	targets    int
	observer   Observer
	clock      Clock
	logger     *zap.Logger

	aborted atomic.Bool

	mu   sync.Mutex
	info ScanInfo
}

// NewScanner creates an idle Scanner whose Frontier holds only the seed.
func NewScanner(cfg ScannerConfig) (*Scanner, error) {
	if cfg.Seed == nil {
		return nil, errors.New("seed url is required")
	}
	if len(cfg.Targets) == 0 {
		return nil, errors.New("at least one fetch target is required")
	}
	if cfg.IDs == nil || cfg.Clock == nil {
		return nil, errors.New("id generator and clock are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	scanID, err := cfg.IDs.NewID()
	if err != nil {
		return nil, fmt.Errorf("new scan id: %w", err)
	}

	frontier := NewFrontier(cfg.IDs, cfg.Clock)
	if _, _, err := frontier.TryAppend(cfg.Seed, KindResource, ""); err != nil {
		return nil, fmt.Errorf("append seed: %w", err)
	}
	extractor := NewExtractor(frontier, logger.Named("extractor"))
	dispatcher := NewDispatcher(
		DispatcherConfig{UserAgent: cfg.UserAgent},
		frontier,
		extractor,
		cfg.HTTP,
		cfg.Targets,
		cfg.Bodies,
		cfg.Clock,
		logger.Named("dispatcher"),
	)

	return &Scanner{
		id:         scanID,
		frontier:   frontier,
		dispatcher: dispatcher,
		targets:    len(cfg.Targets),
		observer:   observer,
		clock:      cfg.Clock,
		logger:     logger,
		info: ScanInfo{
			ID:    scanID,
			Seed:  Canonical(cfg.Seed).String(),
			State: StateIdle,
		},
	}, nil
}

// ID returns the scan identifier.
func (s *Scanner) ID() string { return s.id }

// Frontier exposes the scan's Frontier.
func (s *Scanner) Frontier() *Frontier { return s.frontier }

// Info returns a snapshot of the scan lifecycle.
func (s *Scanner) Info() ScanInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Abort asks the loop to stop before taking the next record. The record in
// flight finishes.
func (s *Scanner) Abort() {
	s.aborted.Store(true)
}

// Run processes the Frontier until it is exhausted or Abort is called, then
// returns the derived Report. Cancelling ctx is equivalent to Abort; fetches
// already in flight are not interrupted.
func (s *Scanner) Run(ctx context.Context) (Report, error) {
	s.mu.Lock()
	if s.info.State != StateIdle {
		s.mu.Unlock()
		return Report{}, ErrAlreadyStarted
	}
	started := s.clock.Now()
	s.info.State = StateRunning
	s.info.StartedAt = &started
	info := s.info
	s.mu.Unlock()

	fetchCtx := context.WithoutCancel(ctx)

	s.logger.Info("scan started", zap.String("scan_id", s.id), zap.String("seed", info.Seed))
	s.observer.ScanStarted(info)

	for {
		if ctx.Err() != nil {
			s.Abort()
		}
		if s.aborted.Load() {
			break
		}
		rec, position, ok := s.frontier.Next()
		if !ok {
			break
		}
		s.process(fetchCtx, rec)
		s.observer.RecordDone(position+1, s.frontier.Len(), rec)
	}

	ended := s.clock.Now()
	s.mu.Lock()
	if s.aborted.Load() {
		s.info.State = StateAborted
	} else {
		s.info.State = StateCompleted
	}
	s.info.EndedAt = &ended
	info = s.info
	s.mu.Unlock()

	report := BuildReport(info, s.frontier.Records(), s.targets)
	s.logger.Info("scan finished",
		zap.String("scan_id", s.id),
		zap.String("state", string(info.State)),
		zap.Int("records", report.RecordCount),
		zap.Int("processed", report.ProcessedCount),
		zap.Int("failed", len(report.Failures[FailedKey])),
	)
	s.observer.ScanFinished(report)
	return report, nil
}

func (s *Scanner) process(ctx context.Context, rec *Record) {
	started := s.clock.Now()
	rec.StartedAt = &started
	s.dispatcher.Dispatch(ctx, rec)
	ended := s.clock.Now()
	rec.EndedAt = &ended
	ms := ended.Sub(started).Milliseconds()
	rec.DurationMs = &ms
}
