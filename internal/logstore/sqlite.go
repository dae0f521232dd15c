package logstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/kosarica/feed-service/internal/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS generation_logs (
  id              TEXT PRIMARY KEY,
  feed_id         INTEGER NOT NULL,
  status          TEXT NOT NULL CHECK (status IN ('running','completed','failed')),
  started_at      TIMESTAMP NOT NULL,
  completed_at    TIMESTAMP NULL,
  total_products  INTEGER NOT NULL DEFAULT 0,
  processed_count INTEGER NOT NULL DEFAULT 0,
  product_count   INTEGER NOT NULL DEFAULT 0,
  error_count     INTEGER NOT NULL DEFAULT 0,
  errors          TEXT NOT NULL DEFAULT '[]',
  message         TEXT NOT NULL DEFAULT '',
  file_path       TEXT NOT NULL DEFAULT '',
  file_size       INTEGER NOT NULL DEFAULT 0,
  upload_status   TEXT NOT NULL DEFAULT '',
  upload_message  TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_generation_logs_running ON generation_logs(feed_id) WHERE status = 'running';
CREATE INDEX IF NOT EXISTS idx_generation_logs_feed_started ON generation_logs(feed_id, started_at DESC);
`

const logColumns = `id, feed_id, status, started_at, completed_at, total_products, processed_count,
  product_count, error_count, errors, message, file_path, file_size, upload_status, upload_message`

// logRow is the SQL shape of a GenerationLog
type logRow struct {
	ID             string       `db:"id"`
	FeedID         int64        `db:"feed_id"`
	Status         string       `db:"status"`
	StartedAt      time.Time    `db:"started_at"`
	CompletedAt    sql.NullTime `db:"completed_at"`
	TotalProducts  int          `db:"total_products"`
	ProcessedCount int          `db:"processed_count"`
	ProductCount   int          `db:"product_count"`
	ErrorCount     int          `db:"error_count"`
	Errors         string       `db:"errors"`
	Message        string       `db:"message"`
	FilePath       string       `db:"file_path"`
	FileSize       int64        `db:"file_size"`
	UploadStatus   string       `db:"upload_status"`
	UploadMessage  string       `db:"upload_message"`
}

func (r *logRow) toLog() *types.GenerationLog {
	l := &types.GenerationLog{
		ID:             r.ID,
		FeedID:         r.FeedID,
		Status:         types.GenerationStatus(r.Status),
		StartedAt:      r.StartedAt.UTC(),
		TotalProducts:  r.TotalProducts,
		ProcessedCount: r.ProcessedCount,
		ProductCount:   r.ProductCount,
		ErrorCount:     r.ErrorCount,
		Message:        r.Message,
		FilePath:       r.FilePath,
		FileSize:       r.FileSize,
		UploadStatus:   types.UploadStatus(r.UploadStatus),
		UploadMessage:  r.UploadMessage,
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time.UTC()
		l.CompletedAt = &t
	}
	if r.Errors != "" && r.Errors != "[]" {
		_ = json.Unmarshal([]byte(r.Errors), &l.Errors)
	}
	return l
}

// MarshalErrors encodes the stored error list of a log
func MarshalErrors(errs []types.ProductError) (string, error) {
	if len(errs) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(capErrors(errs))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// SQLiteStore persists logs in SQLite through sqlx
type SQLiteStore struct {
	db *sqlx.DB
}

// OpenSQLite opens (creating if needed) the database at path and ensures the schema
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// one writer at a time; SQLite serializes writes anyway
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}
	s := NewSQLiteStore(db)
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore wraps an open database
func NewSQLiteStore(db *sqlx.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// EnsureSchema creates the logs table and indexes
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AcquireRunning inserts the log; the partial unique index rejects a second running log per feed
func (s *SQLiteStore) AcquireRunning(ctx context.Context, log *types.GenerationLog) (*types.GenerationLog, bool, error) {
	for attempt := 0; attempt < 3; attempt++ {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO generation_logs (id, feed_id, status, started_at, total_products, errors)
			VALUES (?, ?, 'running', ?, ?, '[]')
			ON CONFLICT DO NOTHING`,
			log.ID, log.FeedID, log.StartedAt.UTC(), log.TotalProducts)
		if err != nil {
			return nil, false, fmt.Errorf("failed to insert generation log: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, false, err
		}
		if n == 1 {
			created := log.Clone()
			created.Status = types.GenerationRunning
			return created, true, nil
		}

		existing, err := s.FindRunning(ctx, log.FeedID)
		if errors.Is(err, types.ErrNotFound) {
			// the other run finished between our insert and lookup
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return nil, false, fmt.Errorf("failed to acquire generation lock for feed %d", log.FeedID)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return types.ErrNotFound
	}
	return nil
}

// Checkpoint stores progress counters
func (s *SQLiteStore) Checkpoint(ctx context.Context, log *types.GenerationLog) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE generation_logs
		SET total_products = ?, processed_count = ?, product_count = ?, error_count = ?
		WHERE id = ?`,
		log.TotalProducts, log.ProcessedCount, log.ProductCount, log.ErrorCount, log.ID)
	if err != nil {
		return fmt.Errorf("failed to checkpoint generation log: %w", err)
	}
	return expectOne(res)
}

// Finish stores the terminal state
func (s *SQLiteStore) Finish(ctx context.Context, log *types.GenerationLog) error {
	errs, err := MarshalErrors(log.Errors)
	if err != nil {
		return err
	}
	var completed any
	if log.CompletedAt != nil {
		completed = log.CompletedAt.UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE generation_logs
		SET status = ?, completed_at = ?, total_products = ?, processed_count = ?, product_count = ?,
		    error_count = ?, errors = ?, message = ?, file_path = ?, file_size = ?
		WHERE id = ?`,
		string(log.Status), completed, log.TotalProducts, log.ProcessedCount, log.ProductCount,
		log.ErrorCount, errs, log.Message, log.FilePath, log.FileSize, log.ID)
	if err != nil {
		return fmt.Errorf("failed to finish generation log: %w", err)
	}
	return expectOne(res)
}

// UpdateUpload records the upload outcome
func (s *SQLiteStore) UpdateUpload(ctx context.Context, id string, status types.UploadStatus, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE generation_logs SET upload_status = ?, upload_message = ? WHERE id = ?`,
		string(status), message, id)
	if err != nil {
		return fmt.Errorf("failed to update upload status: %w", err)
	}
	return expectOne(res)
}

func (s *SQLiteStore) getOne(ctx context.Context, query string, args ...any) (*types.GenerationLog, error) {
	var row logRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return row.toLog(), nil
}

func (s *SQLiteStore) list(ctx context.Context, query string, args ...any) ([]*types.GenerationLog, error) {
	var rows []logRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]*types.GenerationLog, len(rows))
	for i := range rows {
		out[i] = rows[i].toLog()
	}
	return out, nil
}

// Get returns a log by id
func (s *SQLiteStore) Get(ctx context.Context, id string) (*types.GenerationLog, error) {
	return s.getOne(ctx, `SELECT `+logColumns+` FROM generation_logs WHERE id = ?`, id)
}

// Latest returns the feed's most recently started log
func (s *SQLiteStore) Latest(ctx context.Context, feedID int64) (*types.GenerationLog, error) {
	return s.getOne(ctx, `SELECT `+logColumns+` FROM generation_logs
		WHERE feed_id = ? ORDER BY started_at DESC, id DESC LIMIT 1`, feedID)
}

// FindRunning returns the feed's running log
func (s *SQLiteStore) FindRunning(ctx context.Context, feedID int64) (*types.GenerationLog, error) {
	return s.getOne(ctx, `SELECT `+logColumns+` FROM generation_logs
		WHERE feed_id = ? AND status = 'running' LIMIT 1`, feedID)
}

// ListRunning returns all running logs, oldest first
func (s *SQLiteStore) ListRunning(ctx context.Context) ([]*types.GenerationLog, error) {
	return s.list(ctx, `SELECT `+logColumns+` FROM generation_logs
		WHERE status = 'running' ORDER BY started_at ASC`)
}

// ListByFeed returns the feed's logs, newest first
func (s *SQLiteStore) ListByFeed(ctx context.Context, feedID int64, limit int) ([]*types.GenerationLog, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.list(ctx, `SELECT `+logColumns+` FROM generation_logs
		WHERE feed_id = ? ORDER BY started_at DESC, id DESC LIMIT ?`, feedID, limit)
}

// DeleteOlderThan removes finished logs started before cutoff
func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM generation_logs WHERE status <> 'running' AND started_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune generation logs: %w", err)
	}
	return res.RowsAffected()
}
