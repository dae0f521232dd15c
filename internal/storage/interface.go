package storage

import (
	"context"
	"io"
	"time"
)

// FileInfo describes a published file
type FileInfo struct {
	Key        string    `json:"key"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	Checksum   string    `json:"checksum,omitempty"`
	Compressed bool      `json:"compressed"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// Storage is where published feed files live
type Storage interface {
	// Publish moves a finished temp file to key, optionally gzip-compressing it.
	// Readers of key see either the previous file or the complete new one.
	Publish(ctx context.Context, tempPath, key string, compress bool) (*FileInfo, error)

	// Open streams the content stored at key
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	Get(ctx context.Context, key string) ([]byte, error)
	GetInfo(ctx context.Context, key string) (*FileInfo, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	GetChecksum(ctx context.Context, key string) (string, error)
}
