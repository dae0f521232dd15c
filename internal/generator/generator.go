// Package generator runs feed generation: it pages through the catalog, maps
// and writes every product to a temp file, validates the result and publishes
// it atomically. One GenerationLog tracks each run and doubles as the per-feed
// lock.
package generator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kosarica/feed-service/internal/catalog"
	"github.com/kosarica/feed-service/internal/logstore"
	"github.com/kosarica/feed-service/internal/mapper"
	"github.com/kosarica/feed-service/internal/notify"
	"github.com/kosarica/feed-service/internal/platforms"
	"github.com/kosarica/feed-service/internal/storage"
	"github.com/kosarica/feed-service/internal/transformers"
	"github.com/kosarica/feed-service/internal/types"
	"github.com/kosarica/feed-service/internal/validator"
	"github.com/kosarica/feed-service/internal/writers"
)

const finalizeTimeout = 30 * time.Second

// Output is where finished feed files are published
type Output interface {
	TempPath(name string) string
	Publish(ctx context.Context, tempPath, key string, compress bool) (*storage.FileInfo, error)
}

// Deps are the collaborators of a Generator
type Deps struct {
	Catalog      catalog.Source
	Logs         logstore.Store
	Mappings     mapper.Repository
	Output       Output
	Notifier     notify.Notifier
	Platforms    *platforms.Registry
	Categories   *mapper.CategoryCache
	Transformers *transformers.Registry
	Metrics      *MetricsRecorder
	Logger       zerolog.Logger
	Now          func() time.Time
}

// Generator produces feed files
type Generator struct {
	deps   Deps
	cfg    Config
	tracer trace.Tracer
	logger zerolog.Logger
}

// New creates a generator. Catalog, Logs, Mappings and Output are required.
func New(deps Deps, cfg Config) (*Generator, error) {
	if deps.Catalog == nil || deps.Logs == nil || deps.Mappings == nil || deps.Output == nil {
		return nil, fmt.Errorf("generator requires a catalog, log store, mapping repository and output")
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Platforms == nil {
		deps.Platforms = platforms.DefaultRegistry
	}
	if deps.Categories == nil {
		deps.Categories = mapper.NewCategoryCache()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetricsRecorder()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Generator{
		deps:   deps,
		cfg:    cfg.withDefaults(),
		tracer: otel.Tracer("github.com/kosarica/feed-service/internal/generator"),
		logger: deps.Logger.With().Str("component", "generator").Logger(),
	}, nil
}

// Config returns the effective run policy
func (g *Generator) Config() Config {
	return g.cfg
}

// run is the state of one generation
type run struct {
	g        *Generator
	feed     *types.Feed
	log      *types.GenerationLog
	logger   zerolog.Logger
	tempPath string
	writer   writers.Writer
	breaker  errorBreaker
}

// Generate runs a full generation of feed. If the feed already has a running
// generation, that run's log is returned and nothing else happens. The error
// is non-nil only when no log could be created; run failures are reported
// through the returned log's status and message.
func (g *Generator) Generate(ctx context.Context, feed *types.Feed) (*types.GenerationLog, error) {
	if feed == nil {
		return nil, fmt.Errorf("feed is required")
	}

	log, created, err := g.deps.Logs.AcquireRunning(ctx, logstore.NewLog(feed.ID, g.deps.Now()))
	if err != nil {
		return nil, fmt.Errorf("failed to create generation log: %w", err)
	}
	logger := g.logger.With().
		Int64("feed_id", feed.ID).
		Str("log_id", log.ID).
		Str("platform", feed.Platform).
		Logger()
	if !created {
		logger.Info().Msg("Generation already running")
		return log, nil
	}

	ctx, span := g.tracer.Start(ctx, "generator.Generate", trace.WithAttributes(
		attribute.Int64("feed.id", feed.ID),
		attribute.String("feed.platform", feed.Platform),
		attribute.String("feed.format", string(feed.Format)),
	))
	defer span.End()

	logger.Info().Msg("Starting feed generation")
	started := time.Now()
	g.deps.Metrics.runStarted()

	r := &run{
		g:        g,
		feed:     feed,
		log:      log,
		logger:   logger,
		tempPath: g.deps.Output.TempPath(feed.TempName()),
		breaker:  newErrorBreaker(g.cfg, feed),
	}
	runErr := r.execute(ctx)
	g.finish(ctx, r, runErr)

	g.deps.Metrics.runFinished(feed.Platform, string(log.Status), time.Since(started))
	span.SetAttributes(
		attribute.Int("feed.products", log.ProductCount),
		attribute.Int("feed.errors", log.ErrorCount),
	)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}
	return log.Clone(), nil
}

// execute converts panics into run failures
func (r *run) execute(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic during generation: %v", p)
			r.logger.Error().Str("stack", string(debug.Stack())).Msg("Recovered panic in generation")
		}
	}()
	return r.generate(ctx)
}

func (r *run) generate(ctx context.Context) error {
	g, feed, log := r.g, r.feed, r.log

	if err := feed.Validate(); err != nil {
		return err
	}
	adapter, err := g.deps.Platforms.GetOrInit(feed.Platform)
	if err != nil {
		return err
	}
	if formats := adapter.SupportedFormats(); len(formats) > 0 && !slices.Contains(formats, feed.Format) {
		r.logger.Warn().Str("format", string(feed.Format)).Msg("Format is not among the platform's supported formats")
	}

	m, err := g.newMapper(ctx, feed, adapter)
	if err != nil {
		return fmt.Errorf("failed to prepare mapper: %w", err)
	}
	w, err := writers.New(feed)
	if err != nil {
		return err
	}
	if err := w.Open(r.tempPath, adapter); err != nil {
		return err
	}
	r.writer = w

	filter := catalog.FilterFor(feed)
	total, err := g.deps.Catalog.Count(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to count products: %w", err)
	}
	log.TotalProducts = total
	r.checkpoint(ctx)

	batch := feed.BatchSize
	if batch <= 0 {
		batch = g.cfg.BatchSize
	}
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		products, err := g.deps.Catalog.Page(ctx, filter, page, batch)
		if err != nil {
			return fmt.Errorf("failed to load page %d: %w", page, err)
		}
		if len(products) == 0 {
			break
		}
		if err := r.processPage(ctx, m, page, products); err != nil {
			return err
		}
		if page%g.cfg.GCEveryPages == 0 {
			runtime.GC()
		}
		if len(products) < batch {
			break
		}
	}

	if err := r.closeWriter(); err != nil {
		return fmt.Errorf("failed to finalize feed file: %w", err)
	}
	if err := validator.Validate(r.tempPath, feed, validator.Options{FullCheckLimit: g.cfg.ValidationFullCheckLimit}); err != nil {
		return fmt.Errorf("output validation failed: %w", err)
	}

	info, err := r.publish(ctx)
	if err != nil {
		return err
	}
	log.FilePath = info.Key
	log.FileSize = info.Size
	return nil
}

func (r *run) processPage(ctx context.Context, m *mapper.Mapper, page int, products []types.Product) error {
	ctx, span := r.g.tracer.Start(ctx, "generator.page", trace.WithAttributes(
		attribute.Int("page.number", page),
		attribute.Int("page.size", len(products)),
	))
	defer span.End()

	ids := make([]int64, len(products))
	for i := range products {
		ids[i] = products[i].ID
	}
	if err := m.PreloadParentMappings(ctx, ids); err != nil {
		return fmt.Errorf("failed to preload parent products: %w", err)
	}

	for i := range products {
		p := &products[i]
		r.log.ProcessedCount++

		written, err := r.processProduct(ctx, m, p)
		switch {
		case err != nil:
			r.recordError(p, err)
			if err := r.breaker.check(r.log.ErrorCount, r.log.ProcessedCount); err != nil {
				return err
			}
		case written:
			r.log.ProductCount++
			r.g.deps.Metrics.productWritten(r.feed.Platform)
		}

		if r.log.ProcessedCount%r.g.cfg.CheckpointEvery == 0 {
			r.checkpoint(ctx)
		}
	}
	return nil
}

// processProduct reports whether the product was written
func (r *run) processProduct(ctx context.Context, m *mapper.Mapper, p *types.Product) (bool, error) {
	ok, err := m.MatchesConditions(ctx, p, r.feed.Filters.Conditions)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := writeProduct(ctx, m, r.writer, r.feed, p); err != nil {
		return false, err
	}
	return true, nil
}

// writeProduct maps one product the way the feed's format asks for and writes it
func writeProduct(ctx context.Context, m *mapper.Mapper, w writers.Writer, feed *types.Feed, p *types.Product) error {
	switch {
	case feed.Format == types.FormatXML && feed.XML.Mode == types.XMLModeStructure && m.HasXMLStructure():
		ew, ok := w.(writers.ElementWriter)
		if !ok {
			return fmt.Errorf("writer does not accept element trees")
		}
		el, err := m.MapProductToXMLStructure(ctx, p)
		if err != nil {
			return err
		}
		return ew.WriteElement(el)

	case (feed.Format == types.FormatJSON || feed.Format == types.FormatJSONL) && m.HasJSONStructure():
		rec, err := m.MapProductToJSONStructure(ctx, p)
		if err != nil {
			return err
		}
		return w.WriteProduct(rec)
	}

	row, err := m.MapProduct(ctx, p)
	if err != nil {
		return err
	}
	if problems := m.Adapter().ValidateProductData(row); len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return w.WriteProduct(row)
}

func (r *run) recordError(p *types.Product, err error) {
	r.log.ErrorCount++
	if len(r.log.Errors) < logstore.MaxStoredErrors {
		r.log.Errors = append(r.log.Errors, types.ProductError{ProductID: p.ID, SKU: p.SKU, Message: err.Error()})
	}
	r.g.deps.Metrics.productFailed(r.feed.Platform)
	r.logger.Warn().Int64("product_id", p.ID).Str("sku", p.SKU).Err(err).Msg("Product skipped")
}

func (r *run) checkpoint(ctx context.Context) {
	if err := r.g.deps.Logs.Checkpoint(ctx, r.log); err != nil {
		r.logger.Warn().Err(err).Int("processed", r.log.ProcessedCount).Msg("Failed to checkpoint generation log")
	}
}

func (r *run) closeWriter() error {
	if r.writer == nil {
		return nil
	}
	w := r.writer
	r.writer = nil
	return w.Close()
}

func (r *run) publish(ctx context.Context) (*storage.FileInfo, error) {
	ctx, span := r.g.tracer.Start(ctx, "generator.publish", trace.WithAttributes(
		attribute.Bool("feed.compress", r.feed.Compress),
	))
	defer span.End()

	info, err := r.g.deps.Output.Publish(ctx, r.tempPath, r.feed.OutputKey(), r.feed.Compress)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to publish feed: %w", err)
	}
	r.g.deps.Metrics.published(feedLabel(r.feed), info.Size)
	return info, nil
}

// finish stores the terminal state. It runs on a context detached from the
// caller's cancellation so a cancelled run still leaves a failed log behind.
func (g *Generator) finish(ctx context.Context, r *run, runErr error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	log := r.log
	completed := g.deps.Now().UTC()
	log.CompletedAt = &completed

	if runErr == nil {
		log.Status = types.GenerationCompleted
		log.Message = fmt.Sprintf("Generated %d of %d products", log.ProductCount, log.TotalProducts)
		if log.ErrorCount > 0 {
			log.Message += fmt.Sprintf(" (%d errors)", log.ErrorCount)
		}
		r.logger.Info().
			Int("products", log.ProductCount).
			Int("errors", log.ErrorCount).
			Str("file", log.FilePath).
			Int64("bytes", log.FileSize).
			Msg("Feed generation completed")
	} else {
		if r.writer != nil {
			_ = r.closeWriter()
		}
		if err := os.Remove(r.tempPath); err != nil && !os.IsNotExist(err) {
			r.logger.Warn().Err(err).Str("path", r.tempPath).Msg("Failed to remove temp file")
		}
		log.Status = types.GenerationFailed
		log.Message = runErr.Error()
		r.logger.Error().Err(runErr).
			Int("processed", log.ProcessedCount).
			Int("errors", log.ErrorCount).
			Msg("Feed generation failed")
	}

	if err := g.deps.Logs.Finish(ctx, log); err != nil {
		r.logger.Error().Err(err).Msg("Failed to store generation result")
	}

	if runErr != nil {
		kind := notify.GenerationFailed
		if errors.Is(runErr, ErrThresholdExceeded) {
			kind = notify.ThresholdExceeded
			g.deps.Metrics.breakerTripped(r.feed.Platform)
		}
		if err := g.deps.Notifier.Notify(ctx, notify.NewEvent(kind, r.feed, log, "")); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to send failure notification")
		}
	}
}

func (g *Generator) newMapper(ctx context.Context, feed *types.Feed, adapter platforms.Adapter) (*mapper.Mapper, error) {
	return mapper.New(ctx, feed, adapter, mapper.Deps{
		Catalog:      g.deps.Catalog,
		Repository:   g.deps.Mappings,
		Categories:   g.deps.Categories,
		Transformers: g.deps.Transformers,
		Now:          g.deps.Now,
	})
}

func feedLabel(feed *types.Feed) string {
	if feed.Code != "" {
		return feed.Code
	}
	return fmt.Sprintf("%d", feed.ID)
}
