// Package publisher defines scan-completed notifications. Transports live in
// subpackages.
package publisher

import (
	"context"

	"github.com/JakeFAU/sitepoke/internal/crawler"
)

// EventScanCompleted is the "event" attribute of scan-completed messages.
const EventScanCompleted = "scan.completed"

// Publisher sends one JSON-encodable payload with message attributes.
type Publisher interface {
	Publish(ctx context.Context, attrs map[string]string, payload any) (string, error)
}

// ScanCompleted is the payload announcing a finished scan.
type ScanCompleted struct {
	ScanID        string      `json:"scan_id"`
	Seed          string      `json:"seed"`
	Location      string      `json:"location"`
	AbortedByUser bool        `json:"aborted_by_user"`
	StatusCodes   map[int]int `json:"status_codes"`
	FailedCount   int         `json:"failed_count"`
	RecordCount   int         `json:"record_count"`
	DurationMs    int64       `json:"duration_ms"`
}

// NewScanCompleted builds the payload from a report and the artifact location.
func NewScanCompleted(report crawler.Report, location string) ScanCompleted {
	return ScanCompleted{
		ScanID:        report.ScanID,
		Seed:          report.Seed,
		Location:      location,
		AbortedByUser: report.AbortedByUser,
		StatusCodes:   report.StatusCodes,
		FailedCount:   len(report.Failures[crawler.FailedKey]),
		RecordCount:   report.RecordCount,
		DurationMs:    report.DurationMs,
	}
}

// Attributes returns the message attributes for a ScanCompleted payload.
func (m ScanCompleted) Attributes() map[string]string {
	return map[string]string{
		"event":   EventScanCompleted,
		"scan_id": m.ScanID,
	}
}
