package generator

import (
	"errors"
	"fmt"

	"github.com/kosarica/feed-service/internal/types"
)

// ErrThresholdExceeded aborts a run whose per-product error rate is too high
var ErrThresholdExceeded = errors.New("error threshold exceeded")

// errorBreaker trips when failed/processed exceeds a percentage
type errorBreaker struct {
	maxPercent   float64
	minProcessed int
}

func newErrorBreaker(cfg Config, feed *types.Feed) errorBreaker {
	b := errorBreaker{maxPercent: cfg.MaxErrorRatePercent, minProcessed: cfg.MinProcessed}
	if feed.MaxErrorRatePercent != nil {
		b.maxPercent = *feed.MaxErrorRatePercent
	}
	return b
}

// check returns ErrThresholdExceeded once the rate is over the limit
func (b errorBreaker) check(failed, processed int) error {
	if b.maxPercent <= 0 || processed == 0 || processed < b.minProcessed {
		return nil
	}
	rate := float64(failed) / float64(processed) * 100
	if rate > b.maxPercent {
		return fmt.Errorf("%w: %d of %d products failed (%.1f%% > %.1f%%)",
			ErrThresholdExceeded, failed, processed, rate, b.maxPercent)
	}
	return nil
}
