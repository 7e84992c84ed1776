package progress

import (
	"time"

	"github.com/JakeFAU/sitepoke/internal/crawler"
)

// Observer adapts crawler.Observer callbacks into Events on an Emitter.
type Observer struct {
	emitter Emitter
	now     func() time.Time
	scanID  string
}

// NewObserver returns an Observer emitting to emitter. A nil clock uses UTC
// wall time.
func NewObserver(emitter Emitter, clock crawler.Clock) *Observer {
	now := func() time.Time { return time.Now().UTC() }
	if clock != nil {
		now = clock.Now
	}
	return &Observer{emitter: emitter, now: now}
}

// ScanStarted implements crawler.Observer.
func (o *Observer) ScanStarted(info crawler.ScanInfo) {
	o.scanID = info.ID
	o.emit(Event{
		ScanID: info.ID,
		TS:     o.now(),
		Stage:  StageScanStart,
		Seed:   info.Seed,
		Total:  1,
	})
}

// RecordDone implements crawler.Observer.
func (o *Observer) RecordDone(position, total int, rec *crawler.Record) {
	if rec == nil {
		return
	}
	code := firstStatus(rec)
	evt := Event{
		ScanID:      o.scanID,
		TS:          o.now(),
		Stage:       StageRecordDone,
		Position:    position,
		Total:       total,
		URL:         rec.URL,
		Kind:        string(rec.Kind),
		StatusCode:  code,
		StatusClass: ClassifyStatus(code),
		Responses:   len(rec.Responses),
		Errors:      len(rec.Errors),
	}
	if rec.DurationMs != nil {
		evt.Dur = time.Duration(*rec.DurationMs) * time.Millisecond
	}
	if len(rec.Errors) > 0 {
		evt.Note = rec.Errors[0]
	}
	o.emit(evt)
}

// ScanFinished implements crawler.Observer.
func (o *Observer) ScanFinished(report crawler.Report) {
	stage := StageScanDone
	if report.AbortedByUser {
		stage = StageScanAborted
	}
	o.emit(Event{
		ScanID:    report.ScanID,
		TS:        o.now(),
		Stage:     stage,
		Seed:      report.Seed,
		Total:     report.RecordCount,
		Processed: report.ProcessedCount,
		Failed:    len(report.Failures[crawler.FailedKey]),
		Dur:       time.Duration(report.DurationMs) * time.Millisecond,
	})
}

func (o *Observer) emit(evt Event) {
	if o.emitter == nil {
		return
	}
	o.emitter.Emit(evt)
}

func firstStatus(rec *crawler.Record) int {
	for _, res := range rec.Responses {
		if res.StatusCode != nil {
			return *res.StatusCode
		}
	}
	return 0
}
