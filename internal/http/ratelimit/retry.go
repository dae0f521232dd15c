package ratelimit

import (
	"math"
	"math/rand"
	"strconv"
	"time"
)

// RetryError is returned when all attempts of a request failed
type RetryError struct {
	URL        string
	Attempts   int
	LastStatus int
	LastError  error
}

func (e *RetryError) Error() string {
	msg := "request to " + e.URL + " failed after " + strconv.Itoa(e.Attempts) + " attempts"
	if e.LastStatus != 0 {
		msg += " (HTTP " + strconv.Itoa(e.LastStatus) + ")"
	}
	if e.LastError != nil {
		msg += ": " + e.LastError.Error()
	}
	return msg
}

func (e *RetryError) Unwrap() error {
	return e.LastError
}

// IsRetryableStatus checks if an HTTP status code is retryable
// Retryable: 408, 429, 5xx
func IsRetryableStatus(status int) bool {
	return status == 408 || status == 429 || (status >= 500 && status < 600)
}

// CalculateBackoff returns initial * 2^attempt capped at the maximum, plus 0-25% jitter
func CalculateBackoff(attempt int, config Config) time.Duration {
	return backoff(attempt, 2.0, config)
}

// CalculateRateLimitBackoff is the backoff after a 429. A Retry-After value in
// seconds wins; otherwise the delay grows 3x per attempt.
func CalculateRateLimitBackoff(attempt int, config Config, retryAfter string) time.Duration {
	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		jitter := time.Duration(rand.Float64() * float64(time.Second))
		return time.Duration(seconds)*time.Second + jitter
	}
	return backoff(attempt, 3.0, config)
}

func backoff(attempt int, base float64, config Config) time.Duration {
	delay := float64(config.InitialBackoffMs) * math.Pow(base, float64(attempt))
	capped := math.Min(delay, float64(config.MaxBackoffMs))
	jitter := rand.Float64() * 0.25 * capped
	return time.Duration(capped+jitter) * time.Millisecond
}
