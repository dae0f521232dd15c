// Package logstore persists generation logs. A log in status running is the
// per-feed generation lock, so every Store must create it atomically.
package logstore

import (
	"context"
	"time"

	"github.com/kosarica/feed-service/internal/pkg/cuid2"
	"github.com/kosarica/feed-service/internal/types"
)

// MaxStoredErrors caps the per-product errors persisted with a log
const MaxStoredErrors = 100

// Store persists generation logs
type Store interface {
	// AcquireRunning inserts log as the feed's running log unless one already
	// exists. It returns the running log and whether this call created it.
	AcquireRunning(ctx context.Context, log *types.GenerationLog) (*types.GenerationLog, bool, error)
	// Checkpoint persists progress counters of a running log
	Checkpoint(ctx context.Context, log *types.GenerationLog) error
	// Finish persists the terminal state of a log
	Finish(ctx context.Context, log *types.GenerationLog) error
	UpdateUpload(ctx context.Context, id string, status types.UploadStatus, message string) error

	// Get returns types.ErrNotFound for unknown ids
	Get(ctx context.Context, id string) (*types.GenerationLog, error)
	// Latest returns the most recently started log of a feed or types.ErrNotFound
	Latest(ctx context.Context, feedID int64) (*types.GenerationLog, error)
	// FindRunning returns the feed's running log or types.ErrNotFound
	FindRunning(ctx context.Context, feedID int64) (*types.GenerationLog, error)
	ListRunning(ctx context.Context) ([]*types.GenerationLog, error)
	// ListByFeed returns the feed's logs, newest first
	ListByFeed(ctx context.Context, feedID int64, limit int) ([]*types.GenerationLog, error)
	// DeleteOlderThan removes finished logs started before cutoff
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewLog returns a fresh running log for a feed
func NewLog(feedID int64, now time.Time) *types.GenerationLog {
	return &types.GenerationLog{
		ID:        cuid2.NewAt("gen", now),
		FeedID:    feedID,
		Status:    types.GenerationRunning,
		StartedAt: now.UTC(),
	}
}

// capErrors trims the error list to MaxStoredErrors
func capErrors(errs []types.ProductError) []types.ProductError {
	if len(errs) > MaxStoredErrors {
		return errs[:MaxStoredErrors]
	}
	return errs
}
