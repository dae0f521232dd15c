package logstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kosarica/feed-service/internal/types"
)

// MemoryStore keeps logs in process memory
type MemoryStore struct {
	mu   sync.Mutex
	logs map[string]*types.GenerationLog
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[string]*types.GenerationLog)}
}

func (s *MemoryStore) running(feedID int64) *types.GenerationLog {
	for _, l := range s.logs {
		if l.FeedID == feedID && l.Status == types.GenerationRunning {
			return l
		}
	}
	return nil
}

// AcquireRunning inserts log unless the feed already has a running log
func (s *MemoryStore) AcquireRunning(_ context.Context, log *types.GenerationLog) (*types.GenerationLog, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.running(log.FeedID); existing != nil {
		return existing.Clone(), false, nil
	}
	stored := log.Clone()
	stored.Status = types.GenerationRunning
	s.logs[stored.ID] = stored
	return stored.Clone(), true, nil
}

// Checkpoint stores progress counters
func (s *MemoryStore) Checkpoint(_ context.Context, log *types.GenerationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.logs[log.ID]
	if !ok {
		return types.ErrNotFound
	}
	stored.TotalProducts = log.TotalProducts
	stored.ProcessedCount = log.ProcessedCount
	stored.ProductCount = log.ProductCount
	stored.ErrorCount = log.ErrorCount
	return nil
}

// Finish stores the terminal state
func (s *MemoryStore) Finish(_ context.Context, log *types.GenerationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.logs[log.ID]; !ok {
		return types.ErrNotFound
	}
	stored := log.Clone()
	stored.Errors = capErrors(stored.Errors)
	s.logs[log.ID] = stored
	return nil
}

// UpdateUpload records the upload outcome
func (s *MemoryStore) UpdateUpload(_ context.Context, id string, status types.UploadStatus, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.logs[id]
	if !ok {
		return types.ErrNotFound
	}
	stored.UploadStatus = status
	stored.UploadMessage = message
	return nil
}

// Get returns a log by id
func (s *MemoryStore) Get(_ context.Context, id string) (*types.GenerationLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.logs[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return stored.Clone(), nil
}

// Latest returns the feed's most recently started log
func (s *MemoryStore) Latest(ctx context.Context, feedID int64) (*types.GenerationLog, error) {
	logs, err := s.ListByFeed(ctx, feedID, 1)
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, types.ErrNotFound
	}
	return logs[0], nil
}

// FindRunning returns the feed's running log
func (s *MemoryStore) FindRunning(_ context.Context, feedID int64) (*types.GenerationLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l := s.running(feedID); l != nil {
		return l.Clone(), nil
	}
	return nil, types.ErrNotFound
}

// ListRunning returns all running logs, oldest first
func (s *MemoryStore) ListRunning(_ context.Context) ([]*types.GenerationLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*types.GenerationLog
	for _, l := range s.logs {
		if l.Status == types.GenerationRunning {
			out = append(out, l.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// ListByFeed returns the feed's logs, newest first
func (s *MemoryStore) ListByFeed(_ context.Context, feedID int64, limit int) ([]*types.GenerationLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*types.GenerationLog
	for _, l := range s.logs {
		if l.FeedID == feedID {
			out = append(out, l.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteOlderThan removes finished logs started before cutoff
func (s *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, l := range s.logs {
		if l.Status != types.GenerationRunning && l.StartedAt.Before(cutoff) {
			delete(s.logs, id)
			n++
		}
	}
	return n, nil
}
