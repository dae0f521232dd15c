package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/kosarica/feed-service/internal/feeds"
	"github.com/kosarica/feed-service/internal/generator"
	"github.com/kosarica/feed-service/internal/logstore"
	"github.com/kosarica/feed-service/internal/scheduler"
	"github.com/kosarica/feed-service/internal/types"
	"github.com/kosarica/feed-service/internal/upload"
)

// Generations is the generator surface used by the API
type Generations interface {
	GetGenerationStatus(ctx context.Context, feedID int64) (*generator.Status, error)
	IsGenerating(ctx context.Context, feedID int64) (bool, error)
	GeneratePreview(ctx context.Context, feed *types.Feed, limit int) (string, error)
}

// Runner generates a feed and delivers it
type Runner interface {
	RunFeed(ctx context.Context, feed *types.Feed) (*types.GenerationLog, error)
	RunDue(ctx context.Context) (*scheduler.Summary, error)
}

// Files streams published feed files
type Files interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// FeedHandlers serves the feed API
type FeedHandlers struct {
	feeds       feeds.Repository
	generations Generations
	runner      Runner
	logs        logstore.Store
	files       Files
	logger      zerolog.Logger

	// background runs outlive their request but not the server
	baseCtx context.Context
	wg      sync.WaitGroup
}

// NewFeedHandlers creates the feed handlers. Runs started through the API are
// bound to baseCtx.
func NewFeedHandlers(baseCtx context.Context, repo feeds.Repository, gens Generations, runner Runner, logs logstore.Store, files Files, logger zerolog.Logger) *FeedHandlers {
	return &FeedHandlers{
		feeds:       repo,
		generations: gens,
		runner:      runner,
		logs:        logs,
		files:       files,
		logger:      logger.With().Str("component", "api").Logger(),
		baseCtx:     baseCtx,
	}
}

// Register mounts the feed routes on group
func (h *FeedHandlers) Register(group *gin.RouterGroup) {
	group.GET("/feeds", h.ListFeeds)
	group.GET("/feeds/:feed", h.GetFeed)
	group.POST("/feeds/:feed/generate", h.Generate)
	group.GET("/feeds/:feed/status", h.Status)
	group.GET("/feeds/:feed/preview", h.Preview)
	group.GET("/feeds/:feed/logs", h.ListLogs)
	group.GET("/feeds/:feed/download", h.Download)
	group.POST("/scheduler/run", h.RunScheduler)
}

// Wait blocks until background generations started by the API have finished
func (h *FeedHandlers) Wait() {
	h.wg.Wait()
}

// FeedSummary is the list view of a feed
type FeedSummary struct {
	ID        int64            `json:"id" jsonschema:"required"`
	Code      string           `json:"code" jsonschema:"required"`
	Name      string           `json:"name"`
	Platform  string           `json:"platform" jsonschema:"required"`
	Format    types.FileFormat `json:"format" jsonschema:"required,enum=xml,enum=csv,enum=json,enum=jsonl,enum=xlsx"`
	IsActive  bool             `json:"isActive"`
	Scheduled bool             `json:"scheduled"`
	OutputKey string           `json:"outputKey"`
}

// ListFeedsRequest represents query parameters for listing feeds
type ListFeedsRequest struct {
	ActiveOnly bool `form:"active" json:"active"`
}

// ListFeedsResponse represents the response for listing feeds
type ListFeedsResponse struct {
	Feeds []FeedSummary `json:"feeds" jsonschema:"required"`
	Total int           `json:"total" jsonschema:"required"`
}

// GenerateResponse is returned when a generation is accepted or refused
type GenerateResponse struct {
	FeedID  int64                `json:"feedId" jsonschema:"required"`
	Message string               `json:"message" jsonschema:"required"`
	Status  *generator.Status    `json:"status,omitempty"`
	Log     *types.GenerationLog `json:"log,omitempty"`
}

// PreviewRequest represents query parameters for a preview
type PreviewRequest struct {
	Limit int `form:"limit" json:"limit" binding:"min=0,max=100" jsonschema:"minimum=0,maximum=100"`
}

// ListLogsRequest represents query parameters for a feed's logs
type ListLogsRequest struct {
	Limit int `form:"limit" json:"limit" binding:"min=0,max=100" jsonschema:"minimum=0,maximum=100"`
}

// ListLogsResponse represents the response for listing logs
type ListLogsResponse struct {
	Logs []*types.GenerationLog `json:"logs" jsonschema:"required"`
}

func summarize(f *types.Feed) FeedSummary {
	return FeedSummary{
		ID:        f.ID,
		Code:      f.Code,
		Name:      f.Name,
		Platform:  f.Platform,
		Format:    f.Format,
		IsActive:  f.IsActive,
		Scheduled: f.Schedule.Enabled && f.Schedule.Interval > 0,
		OutputKey: f.OutputKey(),
	}
}

// resolveFeed looks the :feed parameter up by id or code, writing 404/500 itself
func (h *FeedHandlers) resolveFeed(c *gin.Context) (*types.Feed, bool) {
	feed, err := feeds.Resolve(c.Request.Context(), h.feeds, c.Param("feed"))
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
			return nil, false
		}
		h.logger.Error().Err(err).Str("feed", c.Param("feed")).Msg("Failed to load feed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load feed"})
		return nil, false
	}
	return feed, true
}

// ListFeeds returns all feed definitions
// @Summary List feeds
// @Tags feeds
// @Produce json
// @Param active query bool false "Only active feeds"
// @Success 200 {object} ListFeedsResponse
// @Router /internal/feeds [get]
func (h *FeedHandlers) ListFeeds(c *gin.Context) {
	var req ListFeedsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	list, err := h.feeds.List(c.Request.Context(), req.ActiveOnly)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list feeds")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list feeds"})
		return
	}

	resp := ListFeedsResponse{Feeds: make([]FeedSummary, 0, len(list)), Total: len(list)}
	for _, f := range list {
		resp.Feeds = append(resp.Feeds, summarize(f))
	}
	c.JSON(http.StatusOK, resp)
}

// GetFeed returns one feed definition
// @Summary Get feed
// @Tags feeds
// @Produce json
// @Param feed path string true "Feed id or code"
// @Success 200 {object} types.Feed
// @Failure 404 {object} map[string]string "Feed not found"
// @Router /internal/feeds/{feed} [get]
func (h *FeedHandlers) GetFeed(c *gin.Context) {
	feed, ok := h.resolveFeed(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, feed)
}

// Generate starts a generation. By default the run continues in the
// background and 202 is returned; with wait=true the response carries the
// finished log. A feed that is already generating yields 409.
// @Summary Generate feed
// @Tags feeds
// @Produce json
// @Param feed path string true "Feed id or code"
// @Param wait query bool false "Wait for the run to finish"
// @Success 200 {object} GenerateResponse
// @Success 202 {object} GenerateResponse
// @Failure 409 {object} GenerateResponse "Already generating"
// @Router /internal/feeds/{feed}/generate [post]
func (h *FeedHandlers) Generate(c *gin.Context) {
	feed, ok := h.resolveFeed(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	running, err := h.generations.IsGenerating(ctx, feed.ID)
	if err != nil {
		h.logger.Error().Err(err).Int64("feed_id", feed.ID).Msg("Failed to check generation state")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check generation state"})
		return
	}
	if running {
		status, _ := h.generations.GetGenerationStatus(ctx, feed.ID)
		c.JSON(http.StatusConflict, GenerateResponse{
			FeedID:  feed.ID,
			Message: "Feed is already generating",
			Status:  status,
		})
		return
	}

	if c.Query("wait") == "true" {
		log, err := h.runner.RunFeed(ctx, feed)
		if err != nil {
			h.logger.Error().Err(err).Int64("feed_id", feed.ID).Msg("Generation failed to start")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Generation failed to start"})
			return
		}
		c.JSON(http.StatusOK, GenerateResponse{FeedID: feed.ID, Message: log.Message, Log: log})
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if _, err := h.runner.RunFeed(h.baseCtx, feed); err != nil {
			h.logger.Error().Err(err).Int64("feed_id", feed.ID).Msg("Background generation failed to start")
		}
	}()

	c.JSON(http.StatusAccepted, GenerateResponse{FeedID: feed.ID, Message: "Generation started"})
}

// Status reports the latest generation of a feed
// @Summary Generation status
// @Tags feeds
// @Produce json
// @Param feed path string true "Feed id or code"
// @Success 200 {object} generator.Status
// @Router /internal/feeds/{feed}/status [get]
func (h *FeedHandlers) Status(c *gin.Context) {
	feed, ok := h.resolveFeed(c)
	if !ok {
		return
	}
	status, err := h.generations.GetGenerationStatus(c.Request.Context(), feed.ID)
	if err != nil {
		h.logger.Error().Err(err).Int64("feed_id", feed.ID).Msg("Failed to read status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read status"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// Preview renders the first products of a feed without publishing anything
// @Summary Preview feed
// @Tags feeds
// @Produce plain
// @Param feed path string true "Feed id or code"
// @Param limit query int false "Number of products" minimum(0) maximum(100)
// @Router /internal/feeds/{feed}/preview [get]
func (h *FeedHandlers) Preview(c *gin.Context) {
	var req PreviewRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	feed, ok := h.resolveFeed(c)
	if !ok {
		return
	}

	out, err := h.generations.GeneratePreview(c.Request.Context(), feed, req.Limit)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, previewContentType(feed.Format), []byte(out))
}

func previewContentType(format types.FileFormat) string {
	if format == types.FormatXLSX {
		format = types.FormatCSV
	}
	return upload.ContentType("preview."+string(format)) + "; charset=utf-8"
}

// ListLogs returns a feed's generation history, newest first
// @Summary List generation logs
// @Tags feeds
// @Produce json
// @Param feed path string true "Feed id or code"
// @Param limit query int false "Number of logs" default(20) minimum(0) maximum(100)
// @Success 200 {object} ListLogsResponse
// @Router /internal/feeds/{feed}/logs [get]
func (h *FeedHandlers) ListLogs(c *gin.Context) {
	var req ListLogsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Limit == 0 {
		req.Limit = 20
	}
	feed, ok := h.resolveFeed(c)
	if !ok {
		return
	}

	logs, err := h.logs.ListByFeed(c.Request.Context(), feed.ID, req.Limit)
	if err != nil {
		h.logger.Error().Err(err).Int64("feed_id", feed.ID).Msg("Failed to list logs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list logs"})
		return
	}
	if logs == nil {
		logs = []*types.GenerationLog{}
	}
	c.JSON(http.StatusOK, ListLogsResponse{Logs: logs})
}

// Download streams the feed's published file
// @Summary Download feed file
// @Tags feeds
// @Param feed path string true "Feed id or code"
// @Failure 404 {object} map[string]string "Feed has not been published"
// @Router /internal/feeds/{feed}/download [get]
func (h *FeedHandlers) Download(c *gin.Context) {
	feed, ok := h.resolveFeed(c)
	if !ok {
		return
	}
	key := feed.OutputKey()
	rc, err := h.files.Open(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Feed has not been published"})
			return
		}
		h.logger.Error().Err(err).Str("key", key).Msg("Failed to open feed file")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open feed file"})
		return
	}
	defer rc.Close()

	name := key[strings.LastIndex(key, "/")+1:]
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.DataFromReader(http.StatusOK, -1, upload.ContentType(name), rc, nil)
}

// RunSchedulerResponse is the outcome of a manual scheduler pass
type RunSchedulerResponse struct {
	Summary  *scheduler.Summary `json:"summary" jsonschema:"required"`
	Duration string             `json:"duration"`
}

// RunScheduler runs one scheduler pass synchronously
// @Summary Run due feeds
// @Tags scheduler
// @Produce json
// @Success 200 {object} RunSchedulerResponse
// @Router /internal/scheduler/run [post]
func (h *FeedHandlers) RunScheduler(c *gin.Context) {
	start := time.Now()
	summary, err := h.runner.RunDue(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Scheduler run failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, RunSchedulerResponse{Summary: summary, Duration: time.Since(start).String()})
}
