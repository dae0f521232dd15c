// Package upload pushes published feed files to HTTP destinations.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	feedhttp "github.com/kosarica/feed-service/internal/http"
	"github.com/kosarica/feed-service/internal/storage"
	"github.com/kosarica/feed-service/internal/types"
)

// ErrUnsupportedDestination is returned for destination types other than http
var ErrUnsupportedDestination = errors.New("unsupported destination type")

// Result describes a finished upload
type Result struct {
	StatusCode     int    `json:"statusCode"`
	IdempotencyKey string `json:"idempotencyKey"`
	Bytes          int64  `json:"bytes"`
}

// Message is the text stored on the generation log
func (r *Result) Message() string {
	return fmt.Sprintf("HTTP %d (%d bytes)", r.StatusCode, r.Bytes)
}

// Uploader sends files from storage to destinations
type Uploader struct {
	client  *feedhttp.Client
	storage storage.Storage
	logger  zerolog.Logger
}

// New creates an uploader
func New(client *feedhttp.Client, store storage.Storage, logger zerolog.Logger) *Uploader {
	return &Uploader{client: client, storage: store, logger: logger.With().Str("component", "upload").Logger()}
}

// Upload sends the file stored at key to dest. Every attempt carries the same
// Idempotency-Key so a receiver can drop duplicates caused by retries.
func (u *Uploader) Upload(ctx context.Context, dest *types.Destination, key string) (*Result, error) {
	if dest == nil {
		return nil, fmt.Errorf("destination is required")
	}
	switch strings.ToLower(dest.Type) {
	case "", "http", "https":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDestination, dest.Type)
	}
	if dest.URL == "" {
		return nil, fmt.Errorf("destination %s has no url", dest.Name)
	}

	info, err := u.storage.GetInfo(ctx, key)
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(dest.Method)
	if method == "" {
		method = http.MethodPut
	}
	if method != http.MethodPut && method != http.MethodPost {
		return nil, fmt.Errorf("destination %s: method %s not allowed", dest.Name, method)
	}

	idempotencyKey := uuid.NewString()
	header := http.Header{}
	header.Set("Content-Type", ContentType(key))
	header.Set("Idempotency-Key", idempotencyKey)
	header.Set("X-Feed-Filename", path.Base(key))
	if info.Checksum != "" {
		header.Set("X-Content-SHA256", info.Checksum)
	}
	if dest.Token != "" {
		header.Set("Authorization", "Bearer "+dest.Token)
	}

	u.logger.Info().Str("destination", dest.Name).Str("key", key).Int64("bytes", info.Size).Msg("Uploading feed")

	resp, err := u.client.Do(ctx, feedhttp.Request{
		Method:        method,
		URL:           dest.URL,
		Header:        header,
		ContentLength: info.Size,
		Body: func() (io.ReadCloser, error) {
			return u.storage.Open(ctx, key)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("upload to %s failed: %w", dest.Name, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	return &Result{StatusCode: resp.StatusCode, IdempotencyKey: idempotencyKey, Bytes: info.Size}, nil
}

// ContentType returns the MIME type for a feed file name
func ContentType(name string) string {
	if strings.HasSuffix(name, ".gz") {
		return "application/gzip"
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".xml":
		return "application/xml"
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".jsonl":
		return "application/x-ndjson"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/octet-stream"
}
