package sinks

import (
	"context"
	"strconv"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitepoke/internal/progress"
)

// LogSink renders scan progress as operator-facing console lines:
//
//	[3/17] [200] https://example.com/about
//
// Status codes are green for 2xx, yellow for 3xx and red otherwise. Records
// without any response print ERR.
type LogSink struct {
	console *zap.Logger
	count   *color.Color
	ok      *color.Color
	moved   *color.Color
	failed  *color.Color
}

// NewLogSink wires a console logger to the sink interface. colored toggles
// ANSI escapes regardless of whether the output is a terminal.
func NewLogSink(console *zap.Logger, colored bool) *LogSink {
	if console == nil {
		console = zap.NewNop()
	}
	s := &LogSink{
		console: console,
		count:   color.New(color.FgYellow),
		ok:      color.New(color.FgGreen),
		moved:   color.New(color.FgYellow),
		failed:  color.New(color.FgRed),
	}
	for _, c := range []*color.Color{s.count, s.ok, s.moved, s.failed} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return s
}

// Consume writes one line per event.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		if line := s.format(evt); line != "" {
			s.console.Info(line)
		}
	}
	return nil
}

func (s *LogSink) format(evt progress.Event) string {
	switch evt.Stage {
	case progress.StageScanStart:
		return "Scanning " + evt.Seed + " started at " + s.count.Sprint(evt.TS.Format(time.RFC3339))
	case progress.StageRecordDone:
		return "[" + s.count.Sprint(evt.Position) + "/" + s.count.Sprint(evt.Total) + "] [" +
			s.status(evt.StatusCode) + "] " + evt.URL
	case progress.StageScanAborted:
		return s.failed.Sprint("Aborted by user!") + " " + s.summary(evt)
	case progress.StageScanDone:
		return s.summary(evt)
	default:
		return ""
	}
}

func (s *LogSink) status(code int) string {
	switch {
	case code == 0:
		return s.failed.Sprint("ERR")
	case code >= 200 && code < 300:
		return s.ok.Sprint(code)
	case code >= 300 && code < 400:
		return s.moved.Sprint(code)
	default:
		return s.failed.Sprint(code)
	}
}

func (s *LogSink) summary(evt progress.Event) string {
	return "Scanning ended at " + s.count.Sprint(evt.TS.Format(time.RFC3339)) +
		", took " + s.count.Sprint(evt.Dur.Round(time.Millisecond)) +
		", processed " + strconv.Itoa(evt.Processed) + "/" + strconv.Itoa(evt.Total) +
		", failed " + strconv.Itoa(evt.Failed)
}

// Close flushes the console logger.
func (s *LogSink) Close(context.Context) error {
	_ = s.console.Sync()
	return nil
}
