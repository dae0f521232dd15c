package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kosarica/feed-service/internal/logstore"
	"github.com/kosarica/feed-service/internal/types"
)

const logColumns = `id, feed_id, status, started_at, completed_at, total_products, processed_count,
	product_count, error_count, errors, message, file_path, file_size, upload_status, upload_message`

// LogRepository is the Postgres generation log store
type LogRepository struct {
	pool *pgxpool.Pool
}

var _ logstore.Store = (*LogRepository)(nil)

// NewLogRepository creates a log repository on pool
func NewLogRepository(pool *pgxpool.Pool) *LogRepository {
	return &LogRepository{pool: pool}
}

func scanLog(row pgx.Row) (*types.GenerationLog, error) {
	var (
		l         types.GenerationLog
		status    string
		upload    string
		completed *time.Time
		errs      []byte
	)
	err := row.Scan(
		&l.ID, &l.FeedID, &status, &l.StartedAt, &completed, &l.TotalProducts, &l.ProcessedCount,
		&l.ProductCount, &l.ErrorCount, &errs, &l.Message, &l.FilePath, &l.FileSize, &upload, &l.UploadMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	l.Status = types.GenerationStatus(status)
	l.UploadStatus = types.UploadStatus(upload)
	l.StartedAt = l.StartedAt.UTC()
	if completed != nil {
		t := completed.UTC()
		l.CompletedAt = &t
	}
	if len(errs) > 0 {
		if err := json.Unmarshal(errs, &l.Errors); err != nil {
			return nil, fmt.Errorf("failed to decode errors of log %s: %w", l.ID, err)
		}
	}
	return &l, nil
}

func (r *LogRepository) list(ctx context.Context, query string, args ...any) ([]*types.GenerationLog, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.GenerationLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// AcquireRunning inserts the log unless the feed already has a running one.
// The partial unique index on (feed_id) WHERE status = 'running' makes the
// check and the insert a single atomic statement.
func (r *LogRepository) AcquireRunning(ctx context.Context, log *types.GenerationLog) (*types.GenerationLog, bool, error) {
	for attempt := 0; attempt < 3; attempt++ {
		tag, err := r.pool.Exec(ctx, `
			INSERT INTO generation_logs (id, feed_id, status, started_at, total_products)
			VALUES ($1, $2, 'running', $3, $4)
			ON CONFLICT (feed_id) WHERE status = 'running' DO NOTHING`,
			log.ID, log.FeedID, log.StartedAt.UTC(), log.TotalProducts)
		if err != nil {
			return nil, false, fmt.Errorf("failed to insert generation log: %w", err)
		}
		if tag.RowsAffected() == 1 {
			created := log.Clone()
			created.Status = types.GenerationRunning
			return created, true, nil
		}

		existing, err := r.FindRunning(ctx, log.FeedID)
		if errors.Is(err, types.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return nil, false, fmt.Errorf("failed to acquire generation lock for feed %d", log.FeedID)
}

// Checkpoint stores progress counters
func (r *LogRepository) Checkpoint(ctx context.Context, log *types.GenerationLog) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE generation_logs
		SET total_products = $1, processed_count = $2, product_count = $3, error_count = $4
		WHERE id = $5`,
		log.TotalProducts, log.ProcessedCount, log.ProductCount, log.ErrorCount, log.ID)
	if err != nil {
		return fmt.Errorf("failed to checkpoint generation log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

// Finish stores the terminal state
func (r *LogRepository) Finish(ctx context.Context, log *types.GenerationLog) error {
	errs, err := logstore.MarshalErrors(log.Errors)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE generation_logs
		SET status = $1, completed_at = $2, total_products = $3, processed_count = $4, product_count = $5,
		    error_count = $6, errors = $7::jsonb, message = $8, file_path = $9, file_size = $10
		WHERE id = $11`,
		string(log.Status), log.CompletedAt, log.TotalProducts, log.ProcessedCount, log.ProductCount,
		log.ErrorCount, errs, log.Message, log.FilePath, log.FileSize, log.ID)
	if err != nil {
		return fmt.Errorf("failed to finish generation log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

// UpdateUpload records the upload outcome
func (r *LogRepository) UpdateUpload(ctx context.Context, id string, status types.UploadStatus, message string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE generation_logs SET upload_status = $1, upload_message = $2 WHERE id = $3`,
		string(status), message, id)
	if err != nil {
		return fmt.Errorf("failed to update upload status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

// Get returns a log by id
func (r *LogRepository) Get(ctx context.Context, id string) (*types.GenerationLog, error) {
	return scanLog(r.pool.QueryRow(ctx, `SELECT `+logColumns+` FROM generation_logs WHERE id = $1`, id))
}

// Latest returns the feed's most recently started log
func (r *LogRepository) Latest(ctx context.Context, feedID int64) (*types.GenerationLog, error) {
	return scanLog(r.pool.QueryRow(ctx, `SELECT `+logColumns+` FROM generation_logs
		WHERE feed_id = $1 ORDER BY started_at DESC, id DESC LIMIT 1`, feedID))
}

// FindRunning returns the feed's running log
func (r *LogRepository) FindRunning(ctx context.Context, feedID int64) (*types.GenerationLog, error) {
	return scanLog(r.pool.QueryRow(ctx, `SELECT `+logColumns+` FROM generation_logs
		WHERE feed_id = $1 AND status = 'running'`, feedID))
}

// ListRunning returns all running logs, oldest first
func (r *LogRepository) ListRunning(ctx context.Context) ([]*types.GenerationLog, error) {
	return r.list(ctx, `SELECT `+logColumns+` FROM generation_logs
		WHERE status = 'running' ORDER BY started_at ASC`)
}

// ListByFeed returns the feed's logs, newest first; limit <= 0 means all
func (r *LogRepository) ListByFeed(ctx context.Context, feedID int64, limit int) ([]*types.GenerationLog, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	return r.list(ctx, `SELECT `+logColumns+` FROM generation_logs
		WHERE feed_id = $1 ORDER BY started_at DESC, id DESC LIMIT $2`, feedID, lim)
}

// DeleteOlderThan removes finished logs started before cutoff
func (r *LogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM generation_logs WHERE status <> 'running' AND started_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune generation logs: %w", err)
	}
	return tag.RowsAffected(), nil
}
