package logstore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosarica/feed-service/internal/types"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "logs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStore_AcquireRunningIsExclusive(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first, created, err := store.AcquireRunning(ctx, NewLog(1, t0))
			require.NoError(t, err)
			assert.True(t, created)
			assert.Equal(t, types.GenerationRunning, first.Status)

			second, created, err := store.AcquireRunning(ctx, NewLog(1, t0.Add(time.Second)))
			require.NoError(t, err)
			assert.False(t, created)
			assert.Equal(t, first.ID, second.ID, "second caller gets the running log")

			other, created, err := store.AcquireRunning(ctx, NewLog(2, t0))
			require.NoError(t, err)
			assert.True(t, created, "feeds are independent")
			assert.NotEqual(t, first.ID, other.ID)

			first.Status = types.GenerationCompleted
			first.CompletedAt = types.TimePtr(t0.Add(time.Minute))
			require.NoError(t, store.Finish(ctx, first))

			next, created, err := store.AcquireRunning(ctx, NewLog(1, t0.Add(2*time.Minute)))
			require.NoError(t, err)
			assert.True(t, created, "lock is released once the run finishes")
			assert.NotEqual(t, first.ID, next.ID)
		})
	}
}

func TestStore_ConcurrentAcquire(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const callers = 8

			var wg sync.WaitGroup
			var mu sync.Mutex
			created := 0
			ids := make(map[string]bool)

			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					log, ok, err := store.AcquireRunning(ctx, NewLog(7, t0))
					if !assert.NoError(t, err) {
						return
					}
					mu.Lock()
					defer mu.Unlock()
					ids[log.ID] = true
					if ok {
						created++
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, 1, created)
			assert.Len(t, ids, 1, "every caller sees the same running log")
		})
	}
}

func TestStore_Lifecycle(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			log, _, err := store.AcquireRunning(ctx, NewLog(3, t0))
			require.NoError(t, err)

			log.TotalProducts = 250
			log.ProcessedCount = 100
			log.ProductCount = 98
			log.ErrorCount = 2
			require.NoError(t, store.Checkpoint(ctx, log))

			running, err := store.FindRunning(ctx, 3)
			require.NoError(t, err)
			assert.Equal(t, 100, running.ProcessedCount)
			assert.Equal(t, 250, running.TotalProducts)

			log.Status = types.GenerationCompleted
			log.CompletedAt = types.TimePtr(t0.Add(time.Minute))
			log.ProcessedCount = 250
			log.ProductCount = 248
			log.FilePath = "feeds/feed_3.xml"
			log.FileSize = 1024
			log.Message = "done"
			log.Errors = []types.ProductError{{ProductID: 9, SKU: "S-9", Message: "Missing required field: price"}}
			require.NoError(t, store.Finish(ctx, log))
			require.NoError(t, store.UpdateUpload(ctx, log.ID, types.UploadSuccess, "201 Created"))

			got, err := store.Get(ctx, log.ID)
			require.NoError(t, err)
			assert.Equal(t, types.GenerationCompleted, got.Status)
			require.NotNil(t, got.CompletedAt)
			assert.True(t, got.CompletedAt.Equal(t0.Add(time.Minute)))
			assert.True(t, got.StartedAt.Equal(t0))
			assert.Equal(t, 248, got.ProductCount)
			assert.Equal(t, "feeds/feed_3.xml", got.FilePath)
			assert.Equal(t, int64(1024), got.FileSize)
			assert.Equal(t, log.Errors, got.Errors)
			assert.Equal(t, types.UploadSuccess, got.UploadStatus)
			assert.Equal(t, "201 Created", got.UploadMessage)

			_, err = store.FindRunning(ctx, 3)
			assert.ErrorIs(t, err, types.ErrNotFound)
		})
	}
}

func TestStore_QueriesAndPrune(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var finished []*types.GenerationLog
			for i := 0; i < 3; i++ {
				log, _, err := store.AcquireRunning(ctx, NewLog(5, t0.Add(time.Duration(i)*time.Hour)))
				require.NoError(t, err)
				log.Status = types.GenerationFailed
				log.CompletedAt = types.TimePtr(log.StartedAt.Add(time.Minute))
				require.NoError(t, store.Finish(ctx, log))
				finished = append(finished, log)
			}
			stuck, _, err := store.AcquireRunning(ctx, NewLog(6, t0))
			require.NoError(t, err)

			latest, err := store.Latest(ctx, 5)
			require.NoError(t, err)
			assert.Equal(t, finished[2].ID, latest.ID)

			page, err := store.ListByFeed(ctx, 5, 2)
			require.NoError(t, err)
			require.Len(t, page, 2)
			assert.Equal(t, finished[2].ID, page[0].ID)
			assert.Equal(t, finished[1].ID, page[1].ID)

			running, err := store.ListRunning(ctx)
			require.NoError(t, err)
			require.Len(t, running, 1)
			assert.Equal(t, stuck.ID, running[0].ID)

			removed, err := store.DeleteOlderThan(ctx, t0.Add(90*time.Minute))
			require.NoError(t, err)
			assert.Equal(t, int64(2), removed, "running logs are never pruned")

			all, err := store.ListByFeed(ctx, 5, 0)
			require.NoError(t, err)
			assert.Len(t, all, 1)

			_, err = store.Latest(ctx, 99)
			assert.ErrorIs(t, err, types.ErrNotFound)
			_, err = store.Get(ctx, "gen_missing")
			assert.ErrorIs(t, err, types.ErrNotFound)
			assert.ErrorIs(t, store.Checkpoint(ctx, &types.GenerationLog{ID: "gen_missing"}), types.ErrNotFound)
			assert.ErrorIs(t, store.UpdateUpload(ctx, "gen_missing", types.UploadFailed, ""), types.ErrNotFound)
		})
	}
}

func TestStore_FinishCapsErrors(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			log, _, err := store.AcquireRunning(ctx, NewLog(4, t0))
			require.NoError(t, err)

			for i := 0; i < MaxStoredErrors+20; i++ {
				log.Errors = append(log.Errors, types.ProductError{ProductID: int64(i), Message: "bad"})
			}
			log.ErrorCount = len(log.Errors)
			log.Status = types.GenerationFailed
			require.NoError(t, store.Finish(ctx, log))

			got, err := store.Get(ctx, log.ID)
			require.NoError(t, err)
			assert.Len(t, got.Errors, MaxStoredErrors)
			assert.Equal(t, MaxStoredErrors+20, got.ErrorCount)
		})
	}
}

func newMockStore(t *testing.T) (*SQLiteStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteStore(sqlx.NewDb(db, "sqlite")), mock
}

func TestSQLiteStore_InsertErrorPropagates(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO generation_logs`).WillReturnError(errors.New("disk I/O error"))

	_, _, err := store.AcquireRunning(context.Background(), NewLog(1, t0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_AcquireRetriesWhenRunningLogVanishes(t *testing.T) {
	store, mock := newMockStore(t)
	columns := []string{"id", "feed_id", "status", "started_at", "completed_at", "total_products", "processed_count",
		"product_count", "error_count", "errors", "message", "file_path", "file_size", "upload_status", "upload_message"}

	mock.ExpectExec(`INSERT INTO generation_logs`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT (.+) FROM generation_logs\s+WHERE feed_id = \? AND status = 'running'`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(columns))
	mock.ExpectExec(`INSERT INTO generation_logs`).WillReturnResult(sqlmock.NewResult(1, 1))

	log, created, err := store.AcquireRunning(context.Background(), NewLog(1, t0))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(1), log.FeedID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_FinishUnknownLog(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE generation_logs`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Finish(context.Background(), &types.GenerationLog{ID: "gen_x", Status: types.GenerationFailed})
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
