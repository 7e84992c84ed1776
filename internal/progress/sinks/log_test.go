package sinks

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/sitepoke/internal/logging"
	"github.com/JakeFAU/sitepoke/internal/progress"
)

func recordEvent(pos, total, code int, url string) progress.Event {
	return progress.Event{
		ScanID:      "scan-1",
		TS:          time.Unix(0, 0).UTC(),
		Stage:       progress.StageRecordDone,
		Position:    pos,
		Total:       total,
		URL:         url,
		StatusCode:  code,
		StatusClass: progress.ClassifyStatus(code),
	}
}

func TestLogSinkWritesRecordLines(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewLogSink(logging.NewConsole(zapcore.AddSync(&buf)), false)

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		recordEvent(1, 4, 200, "https://example.com/"),
		recordEvent(2, 4, 301, "https://example.com/old"),
		recordEvent(3, 4, 404, "https://cdn.example.net/logo.png"),
		recordEvent(4, 4, 0, "https://example.com/slow"),
	}))
	require.NoError(t, sink.Close(context.Background()))

	assert.Equal(t, []string{
		"[1/4] [200] https://example.com/",
		"[2/4] [301] https://example.com/old",
		"[3/4] [404] https://cdn.example.net/logo.png",
		"[4/4] [ERR] https://example.com/slow",
	}, strings.Split(strings.TrimSpace(buf.String()), "\n"))
}

func TestLogSinkColorsStatus(t *testing.T) {
	t.Parallel()

	sink := NewLogSink(nil, true)
	assert.Equal(t, "\x1b[32m200\x1b[0m", sink.status(200))
	assert.Equal(t, "\x1b[33m302\x1b[0m", sink.status(302))
	assert.Equal(t, "\x1b[31m500\x1b[0m", sink.status(500))
	assert.Equal(t, "\x1b[31mERR\x1b[0m", sink.status(0))
}

func TestLogSinkScanLines(t *testing.T) {
	t.Parallel()

	sink := NewLogSink(nil, false)
	start := sink.format(progress.Event{Stage: progress.StageScanStart, Seed: "https://example.com/", TS: time.Unix(0, 0).UTC()})
	assert.Equal(t, "Scanning https://example.com/ started at 1970-01-01T00:00:00Z", start)

	aborted := sink.format(progress.Event{
		Stage:     progress.StageScanAborted,
		TS:        time.Unix(60, 0).UTC(),
		Dur:       1500 * time.Millisecond,
		Total:     10,
		Processed: 2,
		Failed:    8,
	})
	assert.Equal(t, "Aborted by user! Scanning ended at 1970-01-01T00:01:00Z, took 1.5s, processed 2/10, failed 8", aborted)
}
