package generator

import (
	"time"

	"github.com/kosarica/feed-service/internal/validator"
)

// Config holds the run policy of the generator
type Config struct {
	// BatchSize is the page size used when a feed does not set one
	BatchSize int `mapstructure:"batch_size"`
	// CheckpointEvery is the number of processed products between log checkpoints
	CheckpointEvery int `mapstructure:"checkpoint_every"`
	// GCEveryPages forces a garbage collection after this many pages
	GCEveryPages int `mapstructure:"gc_every_pages"`
	// MaxErrorRatePercent aborts a run once failed/processed exceeds it; <= 0 disables the breaker
	MaxErrorRatePercent float64 `mapstructure:"max_error_rate_percent"`
	// MinProcessed is the number of processed products before the breaker may trip
	MinProcessed int           `mapstructure:"min_processed"`
	StuckTimeout time.Duration `mapstructure:"stuck_timeout"`
	PreviewLimit int           `mapstructure:"preview_limit"`

	ValidationFullCheckLimit int64 `mapstructure:"validation_full_check_limit"`
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		BatchSize:                1000,
		CheckpointEvery:          100,
		GCEveryPages:             10,
		MaxErrorRatePercent:      50,
		MinProcessed:             10,
		StuckTimeout:             30 * time.Minute,
		PreviewLimit:             3,
		ValidationFullCheckLimit: validator.DefaultFullCheckLimit,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = d.CheckpointEvery
	}
	if c.GCEveryPages <= 0 {
		c.GCEveryPages = d.GCEveryPages
	}
	if c.MinProcessed < 0 {
		c.MinProcessed = 0
	}
	if c.StuckTimeout <= 0 {
		c.StuckTimeout = d.StuckTimeout
	}
	if c.PreviewLimit <= 0 {
		c.PreviewLimit = d.PreviewLimit
	}
	if c.ValidationFullCheckLimit <= 0 {
		c.ValidationFullCheckLimit = d.ValidationFullCheckLimit
	}
	return c
}
