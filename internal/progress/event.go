// Package progress defines the event structures emitted while a scan runs.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageScanStart   Stage = "SCAN_START"
	StageRecordDone  Stage = "RECORD_DONE"
	StageScanDone    Stage = "SCAN_DONE"
	StageScanAborted Stage = "SCAN_ABORTED"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for record completions.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
	// StatusNone marks a record that produced no response at all.
	StatusNone StatusClass = "none"
)

// Event captures a single milestone of a scan.
type Event struct {
	// ScanID identifies the scan that emitted the event.
	ScanID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// Seed is the scan's starting URL; set on scan events.
	Seed string
	// Position is the 1-based frontier position of a finished record.
	Position int
	// Total is the frontier length when the event was emitted.
	Total int
	// URL is the finished record's URL.
	URL string
	// Kind is the record classification (resource, asset, external).
	Kind string
	// StatusCode is the first response status, or 0 when none was captured.
	StatusCode int
	// StatusClass groups StatusCode.
	StatusClass StatusClass
	// Responses and Errors count the record's per-target outcomes.
	Responses int
	Errors    int
	// Dur is the record or scan duration.
	Dur time.Duration
	// Processed and Failed summarise a finished scan.
	Processed int
	Failed    int
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.ScanID == "" {
		return errors.New("scan id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageScanStart, StageScanDone, StageScanAborted:
	case StageRecordDone:
		if e.URL == "" {
			return errors.New("record done requires url")
		}
		if e.Position <= 0 || e.Total < e.Position {
			return fmt.Errorf("record done position %d/%d out of range", e.Position, e.Total)
		}
		if e.StatusClass == "" {
			return errors.New("record done requires status class")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// ClassifyStatus groups HTTP status codes for record events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code == 0:
		return StatusNone
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
