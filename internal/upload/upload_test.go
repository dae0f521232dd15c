package upload

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	feedhttp "github.com/kosarica/feed-service/internal/http"
	"github.com/kosarica/feed-service/internal/http/ratelimit"
	"github.com/kosarica/feed-service/internal/storage"
	"github.com/kosarica/feed-service/internal/types"
)

func setup(t *testing.T, content string) (*Uploader, string) {
	t.Helper()
	store, err := storage.NewLocalStorage(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)
	tmp := store.TempPath("feed_1.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o644))
	_, err = store.Publish(context.Background(), tmp, "feed_1.xml", false)
	require.NoError(t, err)

	client := feedhttp.NewClient(ratelimit.Config{MaxRetries: 2, InitialBackoffMs: 1, MaxBackoffMs: 2}, time.Second)
	return New(client, store, zerolog.Nop()), "feed_1.xml"
}

type capture struct {
	mu      sync.Mutex
	methods []string
	bodies  []string
	keys    []string
	headers http.Header
}

func TestUploader_RetriesWithStableIdempotencyKey(t *testing.T) {
	u, key := setup(t, "<products/>")
	var c capture
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		defer c.mu.Unlock()
		c.methods = append(c.methods, r.Method)
		c.bodies = append(c.bodies, string(b))
		c.keys = append(c.keys, r.Header.Get("Idempotency-Key"))
		c.headers = r.Header.Clone()
		if len(c.bodies) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	res, err := u.Upload(context.Background(), &types.Destination{Name: "merchant", Type: "http", URL: srv.URL, Token: "tok"}, key)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, int64(len("<products/>")), res.Bytes)
	assert.Equal(t, "HTTP 201 (11 bytes)", res.Message())

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, []string{"PUT", "PUT"}, c.methods)
	assert.Equal(t, []string{"<products/>", "<products/>"}, c.bodies)
	require.Len(t, c.keys, 2)
	assert.NotEmpty(t, c.keys[0])
	assert.Equal(t, c.keys[0], c.keys[1])
	assert.Equal(t, res.IdempotencyKey, c.keys[0])
	assert.Equal(t, "Bearer tok", c.headers.Get("Authorization"))
	assert.Equal(t, "application/xml", c.headers.Get("Content-Type"))
	assert.Len(t, c.headers.Get("X-Content-SHA256"), 64)
}

func TestUploader_Errors(t *testing.T) {
	u, key := setup(t, "x")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()
	ctx := context.Background()

	_, err := u.Upload(ctx, &types.Destination{Name: "m", URL: srv.URL}, key)
	assert.ErrorContains(t, err, "HTTP 403")

	_, err = u.Upload(ctx, &types.Destination{Name: "m", Type: "sftp", URL: "sftp://x"}, key)
	assert.ErrorIs(t, err, ErrUnsupportedDestination)

	_, err = u.Upload(ctx, &types.Destination{Name: "m", URL: srv.URL, Method: "DELETE"}, key)
	assert.ErrorContains(t, err, "not allowed")

	_, err = u.Upload(ctx, &types.Destination{Name: "m", URL: srv.URL}, "missing.xml")
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = u.Upload(ctx, nil, key)
	assert.Error(t, err)
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"feed.xml":     "application/xml",
		"a/b/feed.CSV": "text/csv",
		"feed.json":    "application/json",
		"feed.jsonl":   "application/x-ndjson",
		"feed.xml.gz":  "application/gzip",
		"feed.xlsx":    "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"feed.bin":     "application/octet-stream",
	}
	for name, want := range tests {
		assert.Equal(t, want, ContentType(name), name)
	}
}
