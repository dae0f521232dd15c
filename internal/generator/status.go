package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kosarica/feed-service/internal/notify"
	"github.com/kosarica/feed-service/internal/types"
)

// StatusIdle is reported for feeds that were never generated
const StatusIdle = "idle"

// Status is the polling view of a feed's latest generation
type Status struct {
	FeedID         int64              `json:"feedId"`
	LogID          string             `json:"logId,omitempty"`
	Status         string             `json:"status"`
	Progress       float64            `json:"progress"`
	TotalProducts  int                `json:"totalProducts"`
	ProcessedCount int                `json:"processedCount"`
	ProductCount   int                `json:"productCount"`
	ErrorCount     int                `json:"errorCount"`
	Message        string             `json:"message,omitempty"`
	StartedAt      *time.Time         `json:"startedAt,omitempty"`
	CompletedAt    *time.Time         `json:"completedAt,omitempty"`
	FilePath       string             `json:"filePath,omitempty"`
	FileSize       int64              `json:"fileSize,omitempty"`
	UploadStatus   types.UploadStatus `json:"uploadStatus,omitempty"`
}

// GetGenerationStatus reports the feed's latest run. A stuck running log is
// reset first, so callers never see a run that will not finish.
func (g *Generator) GetGenerationStatus(ctx context.Context, feedID int64) (*Status, error) {
	if _, err := g.IsGenerating(ctx, feedID); err != nil {
		return nil, err
	}
	log, err := g.deps.Logs.Latest(ctx, feedID)
	if errors.Is(err, types.ErrNotFound) {
		return &Status{FeedID: feedID, Status: StatusIdle}, nil
	}
	if err != nil {
		return nil, err
	}
	started := log.StartedAt
	return &Status{
		FeedID:         feedID,
		LogID:          log.ID,
		Status:         string(log.Status),
		Progress:       log.Progress(),
		TotalProducts:  log.TotalProducts,
		ProcessedCount: log.ProcessedCount,
		ProductCount:   log.ProductCount,
		ErrorCount:     log.ErrorCount,
		Message:        log.Message,
		StartedAt:      &started,
		CompletedAt:    log.CompletedAt,
		FilePath:       log.FilePath,
		FileSize:       log.FileSize,
		UploadStatus:   log.UploadStatus,
	}, nil
}

// IsGenerating reports whether the feed has a live running generation. A
// running log older than the stuck timeout is marked failed and reported as
// not generating.
func (g *Generator) IsGenerating(ctx context.Context, feedID int64) (bool, error) {
	log, err := g.deps.Logs.FindRunning(ctx, feedID)
	if errors.Is(err, types.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if g.isStuck(log) {
		if err := g.resetStuck(ctx, log); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// ReapStuck resets every running log older than the stuck timeout and returns them
func (g *Generator) ReapStuck(ctx context.Context) ([]*types.GenerationLog, error) {
	running, err := g.deps.Logs.ListRunning(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list running generations: %w", err)
	}
	var reaped []*types.GenerationLog
	for _, log := range running {
		if !g.isStuck(log) {
			continue
		}
		if err := g.resetStuck(ctx, log); err != nil {
			return reaped, err
		}
		reaped = append(reaped, log)
	}
	return reaped, nil
}

func (g *Generator) isStuck(log *types.GenerationLog) bool {
	return log.Status == types.GenerationRunning && g.deps.Now().Sub(log.StartedAt) > g.cfg.StuckTimeout
}

func (g *Generator) resetStuck(ctx context.Context, log *types.GenerationLog) error {
	now := g.deps.Now().UTC()
	log.Status = types.GenerationFailed
	log.CompletedAt = &now
	log.Message = fmt.Sprintf("Generation timed out: running since %s, longer than %s",
		log.StartedAt.Format(time.RFC3339), g.cfg.StuckTimeout)

	if err := g.deps.Logs.Finish(ctx, log); err != nil {
		return fmt.Errorf("failed to reset stuck generation %s: %w", log.ID, err)
	}
	g.deps.Metrics.stuckRunReset()
	g.logger.Warn().Int64("feed_id", log.FeedID).Str("log_id", log.ID).Msg("Reset stuck generation")

	if err := g.deps.Notifier.Notify(ctx, notify.NewEvent(notify.GenerationTimedOut, nil, log, "")); err != nil {
		g.logger.Warn().Err(err).Msg("Failed to send timeout notification")
	}
	return nil
}
