package sweepers

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kosarica/feed-service/internal/logstore"
	"github.com/kosarica/feed-service/internal/types"
)

// Reaper fails running generations that exceeded their stuck timeout
type Reaper interface {
	ReapStuck(ctx context.Context) ([]*types.GenerationLog, error)
}

// GenerationSweeper periodically resets stuck generations and prunes old logs
type GenerationSweeper struct {
	reaper    Reaper
	logs      logstore.Store
	logger    *zerolog.Logger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	stopChan  chan struct{}
}

// NewGenerationSweeper creates a sweeper. A retention <= 0 keeps logs forever.
func NewGenerationSweeper(reaper Reaper, logs logstore.Store, logger *zerolog.Logger, interval, retention time.Duration) *GenerationSweeper {
	return &GenerationSweeper{
		reaper:    reaper,
		logs:      logs,
		logger:    logger,
		interval:  interval,
		retention: retention,
		now:       time.Now,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the periodic sweep
func (s *GenerationSweeper) Start(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.interval).
		Dur("retention", s.retention).
		Msg("Starting generation sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Generation sweeper stopping (context cancelled)")
			return
		case <-s.stopChan:
			s.logger.Info().Msg("Generation sweeper stopping (stop signal)")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Generation sweep failed")
			}
		}
	}
}

// Stop signals the sweeper to stop
func (s *GenerationSweeper) Stop() {
	close(s.stopChan)
}

// Sweep runs one reap and prune pass
func (s *GenerationSweeper) Sweep(ctx context.Context) error {
	s.logger.Debug().Msg("Running generation sweep")

	reaped, err := s.reaper.ReapStuck(ctx)
	if err != nil {
		return fmt.Errorf("failed to reap stuck generations: %w", err)
	}
	if len(reaped) > 0 {
		s.logger.Info().Int("reset", len(reaped)).Msg("Reset stuck generations")
	}

	if s.retention <= 0 {
		return nil
	}
	deleted, err := s.logs.DeleteOlderThan(ctx, s.now().Add(-s.retention))
	if err != nil {
		return fmt.Errorf("failed to prune generation logs: %w", err)
	}
	if deleted > 0 {
		s.logger.Info().Int64("deleted", deleted).Msg("Pruned old generation logs")
	}
	return nil
}
