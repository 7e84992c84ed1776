package crawler

import (
	"net/http"
	"strconv"
)

// FailedKey is the failures entry listing URLs with fewer responses than
// configured targets.
const FailedKey = "failed"

// BuildReport derives the scan summary from the finished frontier. It does not
// mutate records and returns identical output for identical input.
func BuildReport(info ScanInfo, records []*Record, targetCount int) Report {
	report := Report{
		ScanID:        info.ID,
		Seed:          info.Seed,
		AbortedByUser: info.State == StateAborted,
		RecordCount:   len(records),
		StatusCodes:   map[int]int{},
		Failures:      map[string][]string{FailedKey: {}},
	}
	if info.StartedAt != nil {
		report.StartedAt = *info.StartedAt
	}
	if info.EndedAt != nil {
		report.EndedAt = *info.EndedAt
	}
	if info.StartedAt != nil && info.EndedAt != nil {
		report.DurationMs = info.EndedAt.Sub(*info.StartedAt).Milliseconds()
	}

	for _, rec := range records {
		if rec.Processed() {
			report.ProcessedCount++
		}
		if len(rec.Responses) < targetCount {
			report.Failures[FailedKey] = append(report.Failures[FailedKey], rec.URL)
		}
		for _, code := range distinctCodes(rec.Responses) {
			report.StatusCodes[code]++
			if code != http.StatusOK {
				key := strconv.Itoa(code)
				report.Failures[key] = append(report.Failures[key], rec.URL)
			}
		}
	}
	return report
}

// distinctCodes returns the non-null status codes of responses in first-seen
// order.
func distinctCodes(responses []FetchResult) []int {
	var codes []int
	seen := map[int]struct{}{}
	for _, resp := range responses {
		if resp.StatusCode == nil {
			continue
		}
		code := *resp.StatusCode
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes
}
