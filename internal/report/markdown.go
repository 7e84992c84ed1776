package report

import (
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/JakeFAU/sitepoke/internal/crawler"
)

func renderMarkdown(w io.Writer, report crawler.Report) error {
	md := markdown.NewMarkdown(w)

	md.H1("Scan Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Seed", "`" + report.Seed + "`"},
			{"Scan ID", report.ScanID},
			{"Started", formatTime(report.StartedAt)},
			{"Ended", formatTime(report.EndedAt)},
			{"Duration", (time.Duration(report.DurationMs) * time.Millisecond).String()},
			{"Records", strconv.Itoa(report.RecordCount)},
			{"Processed", strconv.Itoa(report.ProcessedCount)},
			{"Result", resultText(report)},
		},
	})
	md.PlainText("")

	writeStatusCodes(md, report)
	writeFailures(md, report)

	return md.Build()
}

func writeStatusCodes(md *markdown.Markdown, report crawler.Report) {
	md.H2("Status Codes")
	md.PlainText("")
	if len(report.StatusCodes) == 0 {
		md.PlainText("No responses were recorded.")
		md.PlainText("")
		return
	}

	codes := sortedCodes(report.StatusCodes)
	rows := make([][]string, 0, len(codes))
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Records per status code"),
		piechart.WithShowData(true),
	)
	for _, code := range codes {
		count := report.StatusCodes[code]
		rows = append(rows, []string{strconv.Itoa(code), strconv.Itoa(count)})
		chart.LabelAndIntValue(strconv.Itoa(code), uint64(count))
	}
	md.Table(markdown.TableSet{Header: []string{"Status", "Records"}, Rows: rows})
	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func writeFailures(md *markdown.Markdown, report crawler.Report) {
	failed := report.Failures[crawler.FailedKey]
	if len(failed) > 0 {
		md.Warningf("%d URL(s) did not get a response from every fetch target.", len(failed))
	} else {
		md.Tip("Every URL got a response from every fetch target.")
	}
	md.PlainText("")

	md.H2("Failures")
	md.PlainText("")
	keys := failureKeys(report.Failures)
	if len(keys) == 0 {
		md.PlainText("None.")
		md.PlainText("")
		return
	}
	for _, key := range keys {
		md.H3(key)
		md.PlainText("")
		md.BulletList(report.Failures[key]...)
		md.PlainText("")
	}
}

// failureKeys lists non-empty failure keys: "failed" first, then status codes
// in ascending order.
func failureKeys(failures map[string][]string) []string {
	var keys []string
	if len(failures[crawler.FailedKey]) > 0 {
		keys = append(keys, crawler.FailedKey)
	}
	codes := make([]int, 0, len(failures))
	for key, urls := range failures {
		if key == crawler.FailedKey || len(urls) == 0 {
			continue
		}
		if code, err := strconv.Atoi(key); err == nil {
			codes = append(codes, code)
		}
	}
	sort.Ints(codes)
	for _, code := range codes {
		keys = append(keys, strconv.Itoa(code))
	}
	return keys
}

func sortedCodes(m map[int]int) []int {
	codes := make([]int, 0, len(m))
	for code := range m {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}

func resultText(report crawler.Report) string {
	if report.AbortedByUser {
		return "Aborted by user"
	}
	return "Completed"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}
