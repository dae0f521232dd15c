package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kosarica/feed-service/internal/pkg/cuid2"
	"github.com/kosarica/feed-service/internal/types"
)

// Publication records one published feed file
type Publication struct {
	ID          string    `json:"id"` // pub_{cuid}
	FeedID      int64     `json:"feedId"`
	LogID       string    `json:"logId"`
	FileKey     string    `json:"fileKey"`
	FileSize    int64     `json:"fileSize"`
	Checksum    string    `json:"checksum"` // SHA-256 of the stored file
	Compressed  bool      `json:"compressed"`
	Uploaded    bool      `json:"uploaded"`
	PublishedAt time.Time `json:"publishedAt"`
}

// PublicationRepository keeps the history of published files so unchanged
// files need not be uploaded again
type PublicationRepository struct {
	pool *pgxpool.Pool
}

// NewPublicationRepository creates a publication repository on pool
func NewPublicationRepository(pool *pgxpool.Pool) *PublicationRepository {
	return &PublicationRepository{pool: pool}
}

// Record stores a publication, assigning its id when empty
func (r *PublicationRepository) Record(ctx context.Context, p *Publication) error {
	if p.ID == "" {
		p.ID = cuid2.NewAt("pub", time.Now())
	}
	if p.PublishedAt.IsZero() {
		p.PublishedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO feed_publications (id, feed_id, log_id, file_key, file_size, checksum, compressed, uploaded, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET uploaded = EXCLUDED.uploaded`,
		p.ID, p.FeedID, p.LogID, p.FileKey, p.FileSize, p.Checksum, p.Compressed, p.Uploaded, p.PublishedAt)
	if err != nil {
		return fmt.Errorf("failed to record publication: %w", err)
	}
	return nil
}

// LastUploaded returns the feed's most recent successfully uploaded publication
func (r *PublicationRepository) LastUploaded(ctx context.Context, feedID int64) (*Publication, error) {
	var p Publication
	err := r.pool.QueryRow(ctx, `
		SELECT id, feed_id, log_id, file_key, file_size, checksum, compressed, uploaded, published_at
		FROM feed_publications
		WHERE feed_id = $1 AND uploaded
		ORDER BY published_at DESC
		LIMIT 1`, feedID,
	).Scan(&p.ID, &p.FeedID, &p.LogID, &p.FileKey, &p.FileSize, &p.Checksum, &p.Compressed, &p.Uploaded, &p.PublishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}
