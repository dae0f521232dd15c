// Package scheduler regenerates feeds whose schedule is due and delivers the
// published files to their destinations.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kosarica/feed-service/internal/database"
	"github.com/kosarica/feed-service/internal/feeds"
	"github.com/kosarica/feed-service/internal/logstore"
	"github.com/kosarica/feed-service/internal/notify"
	"github.com/kosarica/feed-service/internal/types"
	"github.com/kosarica/feed-service/internal/upload"
)

// Generator runs one feed generation
type Generator interface {
	Generate(ctx context.Context, feed *types.Feed) (*types.GenerationLog, error)
}

// Uploader delivers a stored file to a destination
type Uploader interface {
	Upload(ctx context.Context, dest *types.Destination, key string) (*upload.Result, error)
}

// Checksums reads the checksum of a stored file
type Checksums interface {
	GetChecksum(ctx context.Context, key string) (string, error)
}

// Publications remembers what was uploaded so unchanged files are skipped
type Publications interface {
	LastUploaded(ctx context.Context, feedID int64) (*database.Publication, error)
	Record(ctx context.Context, p *database.Publication) error
}

// Config controls the scheduling loop
type Config struct {
	Interval    time.Duration `mapstructure:"interval"`
	Concurrency int           `mapstructure:"concurrency"`
}

// DefaultConfig returns the default schedule policy
func DefaultConfig() Config {
	return Config{Interval: time.Minute, Concurrency: 2}
}

// Deps are the collaborators of a Scheduler
type Deps struct {
	Feeds     feeds.Repository
	Generator Generator
	Logs      logstore.Store
	Uploader  Uploader
	Checksums Checksums
	// Publications is optional; without it every completed file is uploaded
	Publications Publications
	Notifier     notify.Notifier
	Logger       zerolog.Logger
	Now          func() time.Time
}

// Scheduler runs due feeds
type Scheduler struct {
	deps   Deps
	cfg    Config
	logger zerolog.Logger
}

// Summary counts the outcome of one RunDue pass
type Summary struct {
	Due       int `json:"due"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Uploaded  int `json:"uploaded"`
	Skipped   int `json:"skipped"`
}

// New creates a scheduler
func New(deps Deps, cfg Config) (*Scheduler, error) {
	if deps.Feeds == nil || deps.Generator == nil || deps.Logs == nil {
		return nil, fmt.Errorf("scheduler requires feeds, a generator and a log store")
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	return &Scheduler{
		deps:   deps,
		cfg:    cfg,
		logger: deps.Logger.With().Str("component", "scheduler").Logger(),
	}, nil
}

// Start runs RunDue every interval until ctx is cancelled
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.cfg.Interval).
		Int("concurrency", s.cfg.Concurrency).
		Msg("Starting feed scheduler")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Feed scheduler stopping (context cancelled)")
			return
		case <-ticker.C:
			if _, err := s.RunDue(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Scheduled run failed")
			}
		}
	}
}

// Due reports whether feed should be generated now
func (s *Scheduler) Due(ctx context.Context, feed *types.Feed) (bool, error) {
	if !feed.IsActive || !feed.Schedule.Enabled || feed.Schedule.Interval <= 0 {
		return false, nil
	}
	last, err := s.deps.Logs.Latest(ctx, feed.ID)
	if errors.Is(err, types.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if last.Status == types.GenerationRunning {
		return false, nil
	}
	return s.deps.Now().Sub(last.StartedAt) >= feed.Schedule.Interval, nil
}

// RunDue generates every due feed, different feeds concurrently, and uploads
// completed files. A failing feed does not stop the others.
func (s *Scheduler) RunDue(ctx context.Context) (*Summary, error) {
	all, err := s.deps.Feeds.List(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}

	var due []*types.Feed
	for _, feed := range all {
		ok, err := s.Due(ctx, feed)
		if err != nil {
			s.logger.Warn().Err(err).Int64("feed_id", feed.ID).Msg("Failed to check schedule")
			continue
		}
		if ok {
			due = append(due, feed)
		}
	}

	summary := &Summary{Due: len(due)}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, feed := range due {
		feed := feed
		g.Go(func() error {
			_, outcome, _ := s.runFeed(gctx, feed)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeFailed:
				summary.Failed++
			case outcomeUploaded:
				summary.Completed++
				summary.Uploaded++
			case outcomeSkipped:
				summary.Completed++
				summary.Skipped++
			case outcomeBusy:
				summary.Skipped++
			default:
				summary.Completed++
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info().
		Int("due", summary.Due).
		Int("completed", summary.Completed).
		Int("failed", summary.Failed).
		Int("uploaded", summary.Uploaded).
		Int("skipped", summary.Skipped).
		Msg("Scheduled run finished")
	return summary, ctx.Err()
}

type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeFailed
	outcomeUploaded
	outcomeSkipped
	// another run holds the feed's lock
	outcomeBusy
)

// RunFeed generates feed now and, when it completed and has a destination,
// uploads the result. The returned log carries the upload outcome.
func (s *Scheduler) RunFeed(ctx context.Context, feed *types.Feed) (*types.GenerationLog, error) {
	log, _, err := s.runFeed(ctx, feed)
	if err != nil {
		return nil, err
	}
	if stored, err := s.deps.Logs.Get(ctx, log.ID); err == nil {
		return stored, nil
	}
	return log, nil
}

func (s *Scheduler) runFeed(ctx context.Context, feed *types.Feed) (*types.GenerationLog, outcome, error) {
	logger := s.logger.With().Int64("feed_id", feed.ID).Str("feed", feed.Code).Logger()

	log, err := s.deps.Generator.Generate(ctx, feed)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to start generation")
		return nil, outcomeFailed, err
	}
	if log.Status == types.GenerationRunning {
		logger.Info().Str("log_id", log.ID).Msg("Feed is already generating, skipped")
		return log, outcomeBusy, nil
	}
	if log.Status != types.GenerationCompleted {
		return log, outcomeFailed, nil
	}
	if feed.Destination == nil || s.deps.Uploader == nil {
		return log, outcomeCompleted, nil
	}
	return log, s.deliver(ctx, feed, log), nil
}

// deliver uploads a completed run's file and records the upload outcome on its log
func (s *Scheduler) deliver(ctx context.Context, feed *types.Feed, log *types.GenerationLog) outcome {
	logger := s.logger.With().Int64("feed_id", feed.ID).Str("log_id", log.ID).Logger()

	var checksum string
	if s.deps.Checksums != nil {
		sum, err := s.deps.Checksums.GetChecksum(ctx, log.FilePath)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to checksum feed file")
		}
		checksum = sum
	}

	if checksum != "" && s.deps.Publications != nil {
		last, err := s.deps.Publications.LastUploaded(ctx, feed.ID)
		if err != nil && !errors.Is(err, types.ErrNotFound) {
			logger.Warn().Err(err).Msg("Failed to read last publication")
		}
		if last != nil && last.Checksum == checksum {
			s.updateUpload(ctx, logger, log.ID, types.UploadSkipped, "unchanged since last upload")
			return outcomeSkipped
		}
	}

	res, err := s.deps.Uploader.Upload(ctx, feed.Destination, log.FilePath)
	if err != nil {
		logger.Error().Err(err).Msg("Upload failed")
		s.updateUpload(ctx, logger, log.ID, types.UploadFailed, err.Error())
		failed := log.Clone()
		failed.UploadStatus = types.UploadFailed
		if nerr := s.deps.Notifier.Notify(ctx, notify.NewEvent(notify.UploadFailed, feed, failed, err.Error())); nerr != nil {
			logger.Warn().Err(nerr).Msg("Failed to send upload notification")
		}
		s.recordPublication(ctx, logger, feed, log, checksum, false)
		return outcomeFailed
	}

	logger.Info().Int("status", res.StatusCode).Int64("bytes", res.Bytes).Msg("Feed uploaded")
	s.updateUpload(ctx, logger, log.ID, types.UploadSuccess, res.Message())
	s.recordPublication(ctx, logger, feed, log, checksum, true)
	return outcomeUploaded
}

func (s *Scheduler) updateUpload(ctx context.Context, logger zerolog.Logger, id string, status types.UploadStatus, message string) {
	if err := s.deps.Logs.UpdateUpload(ctx, id, status, message); err != nil {
		logger.Warn().Err(err).Str("upload_status", string(status)).Msg("Failed to record upload status")
	}
}

func (s *Scheduler) recordPublication(ctx context.Context, logger zerolog.Logger, feed *types.Feed, log *types.GenerationLog, checksum string, uploaded bool) {
	if s.deps.Publications == nil || checksum == "" {
		return
	}
	err := s.deps.Publications.Record(ctx, &database.Publication{
		FeedID:     feed.ID,
		LogID:      log.ID,
		FileKey:    log.FilePath,
		FileSize:   log.FileSize,
		Checksum:   checksum,
		Compressed: feed.Compress,
		Uploaded:   uploaded,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to record publication")
	}
}
