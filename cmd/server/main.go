package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/kosarica/feed-service/config"
	"github.com/kosarica/feed-service/internal/app"
	"github.com/kosarica/feed-service/internal/database"
	"github.com/kosarica/feed-service/internal/handlers"
	"github.com/kosarica/feed-service/internal/middleware"
	"github.com/kosarica/feed-service/internal/telemetry"
)

func main() {
	configPath := ""
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := initLogger(cfg.Logging)

	logger.Info().Msg("Starting feed service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.ConfigFromEnv(cfg.Telemetry))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize telemetry")
	}

	a, err := app.New(ctx, cfg, *logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize service")
	}
	defer a.Close()

	// runs left running by a previous process can never finish
	if reaped, err := a.Generator.ReapStuck(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to reset stuck generations")
	} else if len(reaped) > 0 {
		logger.Info().Int("count", len(reaped)).Msg("Reset stuck generations")
	}

	go a.Sweeper.Start(ctx)
	if cfg.Scheduler.Enabled {
		go a.Scheduler.Start(ctx)
	}

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(*logger))

	var ping func(context.Context) error
	source := "database"
	if a.Pool != nil {
		ping = database.Status
	}
	if a.Workspace != nil {
		source = "workspace"
	}
	router.GET("/health", handlers.HealthCheck(ping, source))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.Server.Docs {
		if err := handlers.RegisterSwagger(router, middleware.APIKeyHeader); err != nil {
			logger.Warn().Err(err).Msg("Failed to register API docs")
		}
	}

	feedHandlers := handlers.NewFeedHandlers(ctx, a.Feeds, a.Generator, a.Scheduler, a.Logs, a.Storage, *logger)

	internal := router.Group("/internal")
	internal.Use(middleware.InternalAuthMiddleware(cfg.Server.APIKey))
	internal.Use(middleware.ServiceRateLimitMiddleware(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))
	{
		internal.GET("/health", handlers.HealthCheck(ping, source))
		feedHandlers.Register(internal)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("Shutting down server...")
	a.Sweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	// background generations see ctx cancelled and finalize as failed
	feedHandlers.Wait()

	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Failed to flush telemetry")
	}

	logger.Info().Msg("Server exited")
}

func initLogger(cfg config.LoggingConfig) *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var output io.Writer
	if cfg.Format == "json" {
		output = os.Stdout
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stdout, NoColor: cfg.NoColor}
	}

	logger := zerolog.New(output).Level(level).With().Timestamp().Str("service", "feed-service").Logger()
	return &logger
}
