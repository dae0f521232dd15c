package storage

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/kosarica/feed-service/internal/pkg/cuid2"
	"github.com/kosarica/feed-service/internal/types"
)

// tempDir holds in-progress files inside the base path so publishing is a same-filesystem rename
const tempDir = ".tmp"

// LocalStorage stores feed files under a base directory
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates the base and temp directories
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(filepath.Join(basePath, tempDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", basePath, err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// BasePath returns the storage root
func (s *LocalStorage) BasePath() string {
	return s.basePath
}

// TempPath returns the path of a named temp file inside the storage root
func (s *LocalStorage) TempPath(name string) string {
	return filepath.Join(s.basePath, tempDir, filepath.Base(name))
}

// Path returns the filesystem path of key
func (s *LocalStorage) Path(key string) string {
	return s.keyToPath(key)
}

// Publish moves tempPath to key. Compressed output is written next to the
// target first and renamed into place. The temp file is gone afterwards
// whether or not publishing succeeded.
func (s *LocalStorage) Publish(ctx context.Context, tempPath, key string, compress bool) (*FileInfo, error) {
	defer os.Remove(tempPath)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target := s.keyToPath(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	if compress {
		staged := target + "." + cuid2.NewRandom("part", 8)
		if err := gzipFile(tempPath, staged); err != nil {
			os.Remove(staged)
			return nil, err
		}
		if err := os.Rename(staged, target); err != nil {
			os.Remove(staged)
			return nil, fmt.Errorf("failed to publish %s: %w", key, err)
		}
	} else if err := os.Rename(tempPath, target); err != nil {
		return nil, fmt.Errorf("failed to publish %s: %w", key, err)
	}

	stat, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("failed to stat published file: %w", err)
	}
	return &FileInfo{
		Key:        key,
		Path:       target,
		Size:       stat.Size(),
		Compressed: compress,
		ModifiedAt: stat.ModTime(),
	}, nil
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	buf := bufio.NewWriterSize(out, 64*1024)
	zw, err := gzip.NewWriterLevel(buf, gzip.BestCompression)
	if err != nil {
		out.Close()
		return err
	}
	zw.Name = strings.TrimSuffix(filepath.Base(dst), filepath.Ext(dst))

	if _, err := io.Copy(zw, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to compress feed: %w", err)
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return err
	}
	if err := buf.Flush(); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func notFound(key string, err error) error {
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", types.ErrNotFound, key)
	}
	return err
}

// Open streams the file at key
func (s *LocalStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.keyToPath(key))
	if err != nil {
		return nil, notFound(key, err)
	}
	return f, nil
}

// Get reads the whole file at key
func (s *LocalStorage) Get(_ context.Context, key string) ([]byte, error) {
	content, err := os.ReadFile(s.keyToPath(key))
	if err != nil {
		return nil, notFound(key, err)
	}
	return content, nil
}

// GetInfo returns size, checksum and modification time of key
func (s *LocalStorage) GetInfo(_ context.Context, key string) (*FileInfo, error) {
	fullPath := s.keyToPath(key)
	stat, err := os.Stat(fullPath)
	if err != nil {
		return nil, notFound(key, err)
	}
	checksum, err := fileChecksum(fullPath)
	if err != nil {
		return nil, err
	}
	return &FileInfo{
		Key:        key,
		Path:       fullPath,
		Size:       stat.Size(),
		Checksum:   checksum,
		Compressed: strings.HasSuffix(key, ".gz"),
		ModifiedAt: stat.ModTime(),
	}, nil
}

// Exists reports whether key exists
func (s *LocalStorage) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(s.keyToPath(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Delete removes key; missing files are not an error
func (s *LocalStorage) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.keyToPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// List returns the keys starting with prefix, skipping temp files
func (s *LocalStorage) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.basePath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == tempDir && path != s.basePath {
				return filepath.SkipDir
			}
			return nil
		}
		if key := s.pathToKey(path); strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return keys, nil
}

// GetChecksum returns the SHA-256 of key
func (s *LocalStorage) GetChecksum(_ context.Context, key string) (string, error) {
	sum, err := fileChecksum(s.keyToPath(key))
	if err != nil {
		return "", notFound(key, err)
	}
	return sum, nil
}

// keyToPath maps a key below the base path; ".." segments cannot escape it
func (s *LocalStorage) keyToPath(key string) string {
	clean := filepath.Clean("/" + filepath.FromSlash(key))
	return filepath.Join(s.basePath, clean)
}

func (s *LocalStorage) pathToKey(path string) string {
	rel, err := filepath.Rel(s.basePath, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to compute checksum: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
