package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitepoke/internal/crawler"
)

func sampleScan() (crawler.Report, []*crawler.Record) {
	started := time.Unix(1700000000, 0).UTC()
	ended := started.Add(3 * time.Second)
	dur := int64(120)
	code := 200
	seed := &crawler.Record{
		ID:         "rec-1",
		URL:        "https://example.com/",
		Kind:       crawler.KindResource,
		CreatedAt:  started,
		StartedAt:  &started,
		EndedAt:    &ended,
		DurationMs: &dur,
		Links:      []string{"https://example.com/about"},
		Responses:  []crawler.FetchResult{{StatusCode: &code}},
	}
	child := &crawler.Record{
		ID:             "rec-2",
		URL:            "https://example.com/about",
		Kind:           crawler.KindResource,
		DiscoveredFrom: "rec-1",
		CreatedAt:      started,
	}
	report := crawler.Report{
		ScanID:         "scan-1",
		Seed:           "https://example.com/",
		StartedAt:      started,
		EndedAt:        ended,
		DurationMs:     3000,
		RecordCount:    2,
		ProcessedCount: 1,
		StatusCodes:    map[int]int{200: 1},
		Failures:       map[string][]string{crawler.FailedKey: {"https://example.com/about"}},
	}
	return report, []*crawler.Record{seed, child}
}

func TestSaveScanInsertsRowsInTransaction(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "scans", "scan_records")
	require.NoError(t, err)

	report, records := sampleScan()
	parent := "rec-1"

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO scans").
		WithArgs(
			report.ScanID,
			report.Seed,
			false,
			report.StartedAt,
			report.EndedAt,
			int64(3000),
			2,
			1,
			[]byte(`{"200":1}`),
			[]byte(`{"failed":["https://example.com/about"]}`),
			"/tmp/reports/example.com/2024",
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO scan_records").
		WithArgs(
			"rec-1", "scan-1", 1, "https://example.com/", "resource", (*string)(nil),
			records[0].CreatedAt, records[0].StartedAt, records[0].EndedAt, records[0].DurationMs,
			[]byte(`["https://example.com/about"]`), pgxmock.AnyArg(), []byte(`[]`),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO scan_records").
		WithArgs(
			"rec-2", "scan-1", 2, "https://example.com/about", "resource", &parent,
			records[1].CreatedAt, (*time.Time)(nil), (*time.Time)(nil), (*int64)(nil),
			[]byte(`[]`), []byte(`[]`), []byte(`[]`),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.SaveScan(context.Background(), report, records, "/tmp/reports/example.com/2024"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveScanRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "", "")
	require.NoError(t, err)

	report, records := sampleScan()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO scans").WithArgs(anyArgs(11)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO scan_records").WithArgs(anyArgs(13)...).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = store.SaveScan(context.Background(), report, records, "loc")
	require.ErrorContains(t, err, "insert record rec-1")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchemaCreatesTables(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "poke_scans", "poke_records")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS poke_scans").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS poke_records").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCommit()

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRecordStoreWithPool(nil, "", "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewRecordStoreWithPool(mock, "scans; DROP TABLE x", "")
	require.ErrorContains(t, err, "invalid table name")

	_, err = NewRecordStore(context.Background(), RecordStoreConfig{})
	require.ErrorContains(t, err, "db.dsn")

	store, err := NewRecordStoreWithPool(mock, "", "")
	require.NoError(t, err)
	require.ErrorContains(t, store.SaveScan(context.Background(), crawler.Report{}, nil, ""), "scan id")
}

func anyArgs(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = pgxmock.AnyArg()
	}
	return out
}
