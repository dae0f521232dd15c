// Package notify delivers generation and upload alerts.
package notify

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	feedhttp "github.com/kosarica/feed-service/internal/http"
	"github.com/kosarica/feed-service/internal/types"
)

// Kind identifies what happened
type Kind string

const (
	GenerationFailed   Kind = "generation_failed"
	ThresholdExceeded  Kind = "threshold_exceeded"
	GenerationTimedOut Kind = "generation_timed_out"
	UploadFailed       Kind = "upload_failed"
)

// Event is one alert about a feed run
type Event struct {
	Kind           Kind      `json:"event"`
	FeedID         int64     `json:"feedId"`
	FeedCode       string    `json:"feedCode,omitempty"`
	FeedName       string    `json:"feedName,omitempty"`
	LogID          string    `json:"logId,omitempty"`
	Message        string    `json:"message"`
	ProcessedCount int       `json:"processedCount"`
	ErrorCount     int       `json:"errorCount"`
	At             time.Time `json:"at"`
}

// NewEvent builds an event from a run's log. feed may be nil when only the log is known.
func NewEvent(kind Kind, feed *types.Feed, log *types.GenerationLog, message string) Event {
	e := Event{Kind: kind, Message: message, At: time.Now().UTC()}
	if feed != nil {
		e.FeedID = feed.ID
		e.FeedCode = feed.Code
		e.FeedName = feed.Name
	}
	if log != nil {
		e.FeedID = log.FeedID
		e.LogID = log.ID
		e.ProcessedCount = log.ProcessedCount
		e.ErrorCount = log.ErrorCount
		if e.Message == "" {
			e.Message = log.Message
		}
	}
	return e
}

// Notifier delivers events. Delivery failures are returned, never panicked.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// LogNotifier writes events to the log
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a notifier logging through logger
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) Notify(_ context.Context, e Event) error {
	level := zerolog.ErrorLevel
	if e.Kind == ThresholdExceeded {
		level = zerolog.WarnLevel
	}
	n.logger.WithLevel(level).
		Str("event", string(e.Kind)).
		Int64("feed_id", e.FeedID).
		Str("feed_code", e.FeedCode).
		Str("log_id", e.LogID).
		Int("processed", e.ProcessedCount).
		Int("errors", e.ErrorCount).
		Msg(e.Message)
	return nil
}

// WebhookNotifier posts events as JSON
type WebhookNotifier struct {
	client *feedhttp.Client
	url    string
	header http.Header
}

// NewWebhookNotifier creates a notifier posting to url. token, when set, is sent as a bearer token.
func NewWebhookNotifier(client *feedhttp.Client, url, token string) *WebhookNotifier {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return &WebhookNotifier{client: client, url: url, header: header}
}

func (n *WebhookNotifier) Notify(ctx context.Context, e Event) error {
	return n.client.PostJSON(ctx, n.url, e, n.header)
}

// Multi fans an event out to every notifier
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops every event
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }
