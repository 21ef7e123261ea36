// Package store persists extraction runs in PostgreSQL so that later runs
// can be compared against them without the cache files.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/C0sCube/selenium-scrape/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrRunNotFound is returned by LoadRun for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// DBPool abstracts pgxpool.Pool so the store can be tested with pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS extract_runs (
    id         TEXT PRIMARY KEY,
    program    TEXT NOT NULL,
    run_stamp  TEXT NOT NULL,
    config     TEXT NOT NULL,
    filename   TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS site_records (
    run_id    TEXT NOT NULL REFERENCES extract_runs(id) ON DELETE CASCADE,
    position  INTEGER NOT NULL,
    bank_code TEXT NOT NULL,
    bank_name TEXT NOT NULL,
    base_url  TEXT NOT NULL,
    error     TEXT NOT NULL,
    PRIMARY KEY (run_id, position)
);
CREATE TABLE IF NOT EXISTS result_packets (
    run_id         TEXT NOT NULL REFERENCES extract_runs(id) ON DELETE CASCADE,
    site_position  INTEGER NOT NULL,
    seq            INTEGER NOT NULL,
    uid            TEXT NOT NULL,
    action         TEXT NOT NULL,
    stamp          TEXT NOT NULL,
    webpage        TEXT NOT NULL,
    data_present   BOOLEAN NOT NULL,
    log_message    TEXT NOT NULL,
    response       JSONB NOT NULL,
    response_count INTEGER NOT NULL,
    PRIMARY KEY (run_id, site_position, seq)
);
`

const (
	sqlInsertRun = `
        INSERT INTO extract_runs (id, program, run_stamp, config, filename, created_at)
        VALUES ($1, $2, $3, $4, $5, $6);
    `
	sqlSelectRun = `
        SELECT program, run_stamp, config, filename
        FROM extract_runs
        WHERE id = $1;
    `
	sqlSelectRecords = `
        SELECT position, bank_code, bank_name, base_url, error
        FROM site_records
        WHERE run_id = $1
        ORDER BY position ASC;
    `
	sqlSelectPackets = `
        SELECT site_position, uid, action, stamp, webpage, data_present, log_message, response, response_count
        FROM result_packets
        WHERE run_id = $1
        ORDER BY site_position ASC, seq ASC;
    `
	sqlLatestRuns = `
        SELECT id
        FROM extract_runs
        ORDER BY created_at DESC
        LIMIT $1;
    `
)

var (
	recordColumns = []string{"run_id", "position", "bank_code", "bank_name", "base_url", "error"}
	packetColumns = []string{"run_id", "site_position", "seq", "uid", "action", "stamp", "webpage", "data_present", "log_message", "response", "response_count"}
)

// Store provides a PostgreSQL implementation of schemas.Store.
type Store struct {
	pool DBPool
	log  *zap.Logger
	now  func() time.Time
}

var _ schemas.Store = (*Store)(nil)

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
		now:  time.Now,
	}, nil
}

// EnsureSchema creates the run tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// PersistRun saves the cache in one transaction and returns the run id. The
// cache's own run id is used when set.
func (s *Store) PersistRun(ctx context.Context, cache *schemas.Cache) (string, error) {
	runID := cache.Metadata.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	records, packets, err := flatten(runID, cache.Records)
	if err != nil {
		return "", err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	meta := cache.Metadata
	if _, err := tx.Exec(ctx, sqlInsertRun, runID, meta.Program, meta.Timestamp, meta.Config, meta.Filename, s.now().UTC()); err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	if len(records) > 0 {
		if err := copyRows(ctx, tx, "site_records", recordColumns, records); err != nil {
			return "", err
		}
	}
	if len(packets) > 0 {
		if err := copyRows(ctx, tx, "result_packets", packetColumns, packets); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Persisted run.", zap.String("run_id", runID), zap.Int("sites", len(records)), zap.Int("packets", len(packets)))
	return runID, nil
}

func flatten(runID string, in []schemas.SiteRecord) (records, packets [][]interface{}, err error) {
	for pos, rec := range in {
		records = append(records, []interface{}{runID, pos, rec.BankCode, rec.BankName, rec.BaseURL, rec.Error})
		for seq, p := range rec.ScrapedData {
			response := p.Response
			if response == nil {
				response = []schemas.ResponseEntry{}
			}
			raw, err := json.Marshal(response)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to encode response of %s packet %d: %w", rec.BankCode, seq, err)
			}
			packets = append(packets, []interface{}{
				runID, pos, seq, p.UID, string(p.Action), p.Timestamp, p.Webpage,
				p.DataPresent, p.LogMessage, raw, p.ResponseCount,
			})
		}
	}
	return records, packets, nil
}

func copyRows(ctx context.Context, tx pgx.Tx, table string, columns []string, rows [][]interface{}) error {
	n, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy %s: %w", table, err)
	}
	if int(n) != len(rows) {
		return fmt.Errorf("mismatch in copied %s count: expected %d, got %d", table, len(rows), n)
	}
	return nil
}

// LoadRun rebuilds the cache of a stored run.
func (s *Store) LoadRun(ctx context.Context, runID string) (*schemas.Cache, error) {
	cache := &schemas.Cache{Metadata: schemas.CacheMetadata{RunID: runID}}
	m := &cache.Metadata
	err := s.pool.QueryRow(ctx, sqlSelectRun, runID).Scan(&m.Program, &m.Timestamp, &m.Config, &m.Filename)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	positions, err := s.loadRecords(ctx, runID, cache)
	if err != nil {
		return nil, err
	}
	if err := s.loadPackets(ctx, runID, cache, positions); err != nil {
		return nil, err
	}
	return cache, nil
}

func (s *Store) loadRecords(ctx context.Context, runID string, cache *schemas.Cache) (map[int]int, error) {
	rows, err := s.pool.Query(ctx, sqlSelectRecords, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query site records: %w", err)
	}
	defer rows.Close()

	positions := make(map[int]int)
	for rows.Next() {
		var (
			pos int
			rec schemas.SiteRecord
		)
		if err := rows.Scan(&pos, &rec.BankCode, &rec.BankName, &rec.BaseURL, &rec.Error); err != nil {
			return nil, fmt.Errorf("failed to scan site record row: %w", err)
		}
		rec.ScrapedData = []schemas.ResultPacket{}
		positions[pos] = len(cache.Records)
		cache.Records = append(cache.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return positions, nil
}

func (s *Store) loadPackets(ctx context.Context, runID string, cache *schemas.Cache, positions map[int]int) error {
	rows, err := s.pool.Query(ctx, sqlSelectPackets, runID)
	if err != nil {
		return fmt.Errorf("failed to query result packets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			pos    int
			action string
			raw    []byte
			p      schemas.ResultPacket
		)
		if err := rows.Scan(&pos, &p.UID, &action, &p.Timestamp, &p.Webpage, &p.DataPresent, &p.LogMessage, &raw, &p.ResponseCount); err != nil {
			return fmt.Errorf("failed to scan result packet row: %w", err)
		}
		idx, ok := positions[pos]
		if !ok {
			s.log.Warn("Dropping packet of unknown site record.", zap.String("run_id", runID), zap.Int("position", pos))
			continue
		}
		p.Action = schemas.ActionKind(action)
		if err := json.Unmarshal(raw, &p.Response); err != nil {
			return fmt.Errorf("failed to decode response of packet %s: %w", p.UID, err)
		}
		cache.Records[idx].ScrapedData = append(cache.Records[idx].ScrapedData, p)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error during row iteration: %w", err)
	}
	return nil
}

// LatestRuns returns up to limit run ids, newest first.
func (s *Store) LatestRuns(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, sqlLatestRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return ids, nil
}
