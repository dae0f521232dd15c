package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kosarica/feed-service/config"
	"github.com/kosarica/feed-service/internal/app"
)

var (
	cfgFile       string
	workspaceFile string
	cfg           *config.Config
	logger        *zerolog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "feed-service",
	Short: "Feed Service CLI - product feed generation tool",
	Long: `A CLI tool for generating product feeds for shopping platforms such as
Google Shopping, Facebook, Pinterest, TikTok and Bing. Feeds, rules and the
catalog come from Postgres or from a YAML workspace file.`,
	PersistentPreRunE: persistentPreRun,
	SilenceUsage:      true,
}

// Execute runs the root command; SIGINT and SIGTERM cancel the command context
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml or ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&workspaceFile, "workspace", "", "workspace YAML file; overrides the configured source")
}

// persistentPreRun loads config and the logger before each command
func persistentPreRun(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || cmd.Name() == "completion" {
		return nil
	}

	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if workspaceFile != "" {
		cfg.Workspace = workspaceFile
	}
	logger = initLogger()
	return nil
}

// buildApp wires the service for commands that generate or inspect feeds
func buildApp(ctx context.Context) (*app.App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, *logger)
}

func initLogger() *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	if cfg != nil && cfg.Logging.Level != "" {
		if parsedLevel, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
			level = parsedLevel
		}
	}

	// console output unless json is asked for; stdout is kept for command output
	var output io.Writer
	if cfg != nil && cfg.Logging.Format == "json" {
		output = os.Stderr
	} else {
		noColor := false
		if cfg != nil {
			noColor = cfg.Logging.NoColor
		}
		output = zerolog.ConsoleWriter{Out: os.Stderr, NoColor: noColor}
	}

	log := zerolog.New(output).Level(level).With().Timestamp().Logger()
	return &log
}

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
