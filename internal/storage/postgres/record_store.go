// Package postgres persists finished scans and their records in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/sitepoke/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// RecordStoreConfig controls the Postgres connection pool used for scan rows.
type RecordStoreConfig struct {
	DSN             string
	ScansTable      string
	RecordsTable    string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type txBeginner interface {
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// RecordStore writes one scan row and one row per discovered record.
type RecordStore struct {
	pool    txBeginner
	scans   string
	records string
}

// NewRecordStore creates a Postgres-backed RecordStore using the provided config.
func NewRecordStore(ctx context.Context, cfg RecordStoreConfig) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	scans, records, err := tableNames(cfg.ScansTable, cfg.RecordsTable)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RecordStore{pool: pool, scans: scans, records: records}, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRecordStoreWithPool(pool txBeginner, scansTable, recordsTable string) (*RecordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	scans, records, err := tableNames(scansTable, recordsTable)
	if err != nil {
		return nil, err
	}
	return &RecordStore{pool: pool, scans: scans, records: records}, nil
}

func tableNames(scans, records string) (string, string, error) {
	if scans == "" {
		scans = "scans"
	}
	if records == "" {
		records = "scan_records"
	}
	for _, name := range []string{scans, records} {
		if !validTableName.MatchString(name) {
			return "", "", fmt.Errorf("invalid table name %q", name)
		}
	}
	return scans, records, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the scan and record tables when they are missing.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id              TEXT PRIMARY KEY,
	seed            TEXT NOT NULL,
	aborted_by_user BOOLEAN NOT NULL,
	started_at      TIMESTAMPTZ NOT NULL,
	ended_at        TIMESTAMPTZ NOT NULL,
	duration_ms     BIGINT NOT NULL,
	record_count    INTEGER NOT NULL,
	processed_count INTEGER NOT NULL,
	status_codes    JSONB NOT NULL,
	failures        JSONB NOT NULL,
	report_location TEXT NOT NULL
)`, s.scans)); err != nil {
			return fmt.Errorf("create %s: %w", s.scans, err)
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id              TEXT NOT NULL,
	scan_id         TEXT NOT NULL REFERENCES %s (id),
	position        INTEGER NOT NULL,
	url             TEXT NOT NULL,
	kind            TEXT NOT NULL,
	discovered_from TEXT,
	created_at      TIMESTAMPTZ NOT NULL,
	started_at      TIMESTAMPTZ,
	ended_at        TIMESTAMPTZ,
	duration_ms     BIGINT,
	links           JSONB NOT NULL,
	responses       JSONB NOT NULL,
	errors          JSONB NOT NULL,
	PRIMARY KEY (scan_id, id)
)`, s.records, s.scans)); err != nil {
			return fmt.Errorf("create %s: %w", s.records, err)
		}
		return nil
	})
}

// SaveScan inserts the scan summary and every record in a single transaction.
func (s *RecordStore) SaveScan(ctx context.Context, report crawler.Report, records []*crawler.Record, location string) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("record store is not configured")
	}
	if report.ScanID == "" {
		return fmt.Errorf("scan id is required")
	}
	codes, err := json.Marshal(report.StatusCodes)
	if err != nil {
		return fmt.Errorf("marshal status codes: %w", err)
	}
	failures, err := json.Marshal(report.Failures)
	if err != nil {
		return fmt.Errorf("marshal failures: %w", err)
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		scanQuery := fmt.Sprintf(`
INSERT INTO %s (
	id, seed, aborted_by_user, started_at, ended_at, duration_ms,
	record_count, processed_count, status_codes, failures, report_location
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`, s.scans)
		if _, err := tx.Exec(ctx, scanQuery,
			report.ScanID,
			report.Seed,
			report.AbortedByUser,
			report.StartedAt,
			report.EndedAt,
			report.DurationMs,
			report.RecordCount,
			report.ProcessedCount,
			codes,
			failures,
			location,
		); err != nil {
			return fmt.Errorf("insert scan: %w", err)
		}

		recordQuery := fmt.Sprintf(`
INSERT INTO %s (
	id, scan_id, position, url, kind, discovered_from, created_at,
	started_at, ended_at, duration_ms, links, responses, errors
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`, s.records)
		for i, rec := range records {
			args, err := recordArgs(report.ScanID, i+1, rec)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, recordQuery, args...); err != nil {
				return fmt.Errorf("insert record %s: %w", rec.ID, err)
			}
		}
		return nil
	})
}

func recordArgs(scanID string, position int, rec *crawler.Record) ([]any, error) {
	links, err := jsonList(rec.Links)
	if err != nil {
		return nil, fmt.Errorf("marshal links: %w", err)
	}
	responses := rec.Responses
	if responses == nil {
		responses = []crawler.FetchResult{}
	}
	responsesJSON, err := json.Marshal(responses)
	if err != nil {
		return nil, fmt.Errorf("marshal responses: %w", err)
	}
	errs, err := jsonList(rec.Errors)
	if err != nil {
		return nil, fmt.Errorf("marshal errors: %w", err)
	}
	var parent *string
	if rec.DiscoveredFrom != "" {
		parent = &rec.DiscoveredFrom
	}
	return []any{
		rec.ID,
		scanID,
		position,
		rec.URL,
		string(rec.Kind),
		parent,
		rec.CreatedAt,
		rec.StartedAt,
		rec.EndedAt,
		rec.DurationMs,
		links,
		responsesJSON,
		errs,
	}, nil
}

func jsonList(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	return json.Marshal(values)
}

func (s *RecordStore) inTx(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
