package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/C0sCube/selenium-scrape/api/schemas"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

var fixedNow = time.Date(2025, 8, 11, 23, 20, 11, 0, time.UTC)

func newTestStore(t *testing.T, logger *zap.Logger) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing().WillReturnError(nil)
	s, err := New(context.Background(), mockPool, logger)
	require.NoError(t, err)
	s.now = func() time.Time { return fixedNow }
	return s, mockPool
}

func sampleCache() *schemas.Cache {
	return &schemas.Cache{
		Metadata: schemas.CacheMetadata{
			Program:   "siteextract",
			Timestamp: "11082025 23:20:11",
			Config:    "sites.yaml",
			Filename:  "cache_11082025_232011.json",
			RunID:     "run-1",
		},
		Records: []schemas.SiteRecord{
			{
				BankName: "First Bank", BankCode: "PSB_1", BaseURL: "https://first.test",
				ScrapedData: []schemas.ResultPacket{
					{Action: schemas.ActionTable, UID: "u1", Response: []schemas.ResponseEntry{{Name: "table_0", Value: "<table></table>", Type: schemas.ContentTableHTML, Hash: "h"}}, ResponseCount: 1, DataPresent: true},
					{Action: schemas.ActionClick, UID: "u2"},
				},
			},
			{BankName: "Second Bank", BankCode: "PSB_2", BaseURL: "https://second.test", Error: "navigation failed"},
		},
	}
}

// -- Test Cases --

func TestNewStore(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	pingErr := errors.New("database unavailable")
	mockPool.ExpectPing().WillReturnError(pingErr)

	_, err = New(context.Background(), mockPool, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	s, mockPool := newTestStore(t, zap.NewNop())
	mockPool.ExpectExec("CREATE TABLE IF NOT EXISTS extract_runs").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPersistRun(t *testing.T) {
	ctx := context.Background()

	t.Run("should persist a full run without rollback errors", func(t *testing.T) {
		observedZapCore, observedLogs := observer.New(zapcore.ErrorLevel)
		s, mockPool := newTestStore(t, zap.New(observedZapCore))

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).
			WithArgs("run-1", "siteextract", "11082025 23:20:11", "sites.yaml", "cache_11082025_232011.json", fixedNow).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCopyFrom(pgx.Identifier{"site_records"}, recordColumns).WillReturnResult(2)
		mockPool.ExpectCopyFrom(pgx.Identifier{"result_packets"}, packetColumns).WillReturnResult(2)
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		runID, err := s.PersistRun(ctx, sampleCache())
		require.NoError(t, err)
		assert.Equal(t, "run-1", runID)
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Empty(t, observedLogs.All(), "Expected no errors logged on successful commit")
	})

	t.Run("should generate a run id when the cache has none", func(t *testing.T) {
		s, mockPool := newTestStore(t, zap.NewNop())
		cache := &schemas.Cache{Metadata: schemas.CacheMetadata{Program: "siteextract"}}

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).
			WithArgs(pgxmock.AnyArg(), "siteextract", "", "", "", fixedNow).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		runID, err := s.PersistRun(ctx, cache)
		require.NoError(t, err)
		assert.Len(t, runID, 36)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should roll back when a copy is short", func(t *testing.T) {
		s, mockPool := newTestStore(t, zap.NewNop())

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).
			WithArgs("run-1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCopyFrom(pgx.Identifier{"site_records"}, recordColumns).WillReturnResult(1)
		mockPool.ExpectRollback()

		_, err := s.PersistRun(ctx, sampleCache())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mismatch in copied site_records count")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestFlatten(t *testing.T) {
	records, packets, err := flatten("run-1", sampleCache().Records)
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, []interface{}{"run-1", 1, "PSB_2", "Second Bank", "https://second.test", "navigation failed"}, records[1])

	require.Len(t, packets, 2)
	assert.Equal(t, 0, packets[1][1], "packets point at their site's position")
	assert.Equal(t, 1, packets[1][2])
	assert.JSONEq(t, `[]`, string(packets[1][9].([]byte)), "a packet without entries stores an empty array")
}

func TestLoadRun(t *testing.T) {
	ctx := context.Background()

	t.Run("should rebuild the cache in order", func(t *testing.T) {
		s, mockPool := newTestStore(t, zap.NewNop())

		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectRun)).WithArgs("run-1").
			WillReturnRows(pgxmock.NewRows([]string{"program", "run_stamp", "config", "filename"}).
				AddRow("siteextract", "11082025 23:20:11", "sites.yaml", "cache.json"))
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectRecords)).WithArgs("run-1").
			WillReturnRows(pgxmock.NewRows([]string{"position", "bank_code", "bank_name", "base_url", "error"}).
				AddRow(0, "PSB_1", "First Bank", "https://first.test", "").
				AddRow(1, "PSB_2", "Second Bank", "https://second.test", "navigation failed"))
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectPackets)).WithArgs("run-1").
			WillReturnRows(pgxmock.NewRows([]string{"site_position", "uid", "action", "stamp", "webpage", "data_present", "log_message", "response", "response_count"}).
				AddRow(0, "u1", "table", "11082025 23:20:11", "https://first.test", true, "tables", []byte(`[{"name":"table_0","title":["Rates"],"value":"<table></table>","type":"table_html","hash":"h"}]`), 1).
				AddRow(0, "u2", "click", "11082025 23:20:12", "https://first.test", false, "click", []byte(`[]`), 0).
				AddRow(7, "u9", "click", "", "", false, "", []byte(`[]`), 0))

		cache, err := s.LoadRun(ctx, "run-1")
		require.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())

		assert.Equal(t, "run-1", cache.Metadata.RunID)
		assert.Equal(t, "sites.yaml", cache.Metadata.Config)
		require.Len(t, cache.Records, 2)
		require.Len(t, cache.Records[0].ScrapedData, 2)
		assert.Empty(t, cache.Records[1].ScrapedData)
		assert.Equal(t, "navigation failed", cache.Records[1].Error)

		first := cache.Records[0].ScrapedData[0]
		assert.Equal(t, schemas.ActionTable, first.Action)
		require.Len(t, first.Response, 1)
		assert.Equal(t, []string{"Rates"}, first.Response[0].Title)
		assert.Equal(t, schemas.ContentTableHTML, first.Response[0].Type)
	})

	t.Run("should report an unknown run", func(t *testing.T) {
		s, mockPool := newTestStore(t, zap.NewNop())
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectRun)).WithArgs("missing").
			WillReturnRows(pgxmock.NewRows([]string{"program", "run_stamp", "config", "filename"}))

		_, err := s.LoadRun(ctx, "missing")
		assert.ErrorIs(t, err, ErrRunNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestLatestRuns(t *testing.T) {
	s, mockPool := newTestStore(t, zap.NewNop())
	mockPool.ExpectQuery(flexibleSQLMatcher(sqlLatestRuns)).WithArgs(2).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("run-2").AddRow("run-1"))

	ids, err := s.LatestRuns(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-2", "run-1"}, ids)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
