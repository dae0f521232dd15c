package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kosarica/feed-service/internal/types"
)

// FeedRepository stores feed definitions. Identity and list columns are
// real columns; the rest of the definition lives in a JSONB config document.
type FeedRepository struct {
	pool *pgxpool.Pool
}

// NewFeedRepository creates a feed repository on pool
func NewFeedRepository(pool *pgxpool.Pool) *FeedRepository {
	return &FeedRepository{pool: pool}
}

const feedColumns = `id, code, name, platform, format, store_id, is_active, config, destination_token`

func scanFeed(row pgx.Row) (*types.Feed, error) {
	var (
		id                   int64
		code, name, platform string
		format               string
		storeID              int64
		active               bool
		config               []byte
		token                string
	)
	if err := row.Scan(&id, &code, &name, &platform, &format, &storeID, &active, &config, &token); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}

	var feed types.Feed
	if len(config) > 0 {
		if err := json.Unmarshal(config, &feed); err != nil {
			return nil, fmt.Errorf("failed to decode config of feed %s: %w", code, err)
		}
	}
	feed.ID = id
	feed.Code = code
	feed.Name = name
	feed.Platform = platform
	feed.Format = types.FileFormat(format)
	feed.StoreID = storeID
	feed.IsActive = active
	if feed.Destination != nil {
		feed.Destination.Token = token
	}
	return &feed, nil
}

// List returns feeds ordered by id
func (r *FeedRepository) List(ctx context.Context, activeOnly bool) ([]*types.Feed, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+feedColumns+` FROM feeds
		WHERE ($1 = FALSE OR is_active) ORDER BY id`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	defer rows.Close()

	var out []*types.Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Get returns a feed by id
func (r *FeedRepository) Get(ctx context.Context, id int64) (*types.Feed, error) {
	return scanFeed(r.pool.QueryRow(ctx, `SELECT `+feedColumns+` FROM feeds WHERE id = $1`, id))
}

// GetByCode returns a feed by code
func (r *FeedRepository) GetByCode(ctx context.Context, code string) (*types.Feed, error) {
	return scanFeed(r.pool.QueryRow(ctx, `SELECT `+feedColumns+` FROM feeds WHERE code = $1`, code))
}

// Save upserts a feed by code and sets feed.ID to the stored id
func (r *FeedRepository) Save(ctx context.Context, feed *types.Feed) error {
	if feed.Code == "" {
		return fmt.Errorf("feed code is required")
	}
	config, err := json.Marshal(feed)
	if err != nil {
		return fmt.Errorf("failed to encode feed %s: %w", feed.Code, err)
	}
	token := ""
	if feed.Destination != nil {
		token = feed.Destination.Token
	}

	var id int64
	err = r.pool.QueryRow(ctx, `
		INSERT INTO feeds (code, name, platform, format, store_id, is_active, config, destination_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			platform = EXCLUDED.platform,
			format = EXCLUDED.format,
			store_id = EXCLUDED.store_id,
			is_active = EXCLUDED.is_active,
			config = EXCLUDED.config,
			destination_token = EXCLUDED.destination_token,
			updated_at = NOW()
		RETURNING id`,
		feed.Code, feed.Name, feed.Platform, string(feed.Format), feed.StoreID, feed.IsActive,
		string(config), token,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to save feed %s: %w", feed.Code, err)
	}
	feed.ID = id
	return nil
}
