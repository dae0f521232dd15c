// Package feeds defines where feed definitions come from.
package feeds

import (
	"context"
	"errors"
	"strconv"

	"github.com/kosarica/feed-service/internal/types"
)

// Repository reads feed definitions
type Repository interface {
	// List returns feeds ordered by id
	List(ctx context.Context, activeOnly bool) ([]*types.Feed, error)
	// Get and GetByCode return types.ErrNotFound for unknown feeds
	Get(ctx context.Context, id int64) (*types.Feed, error)
	GetByCode(ctx context.Context, code string) (*types.Feed, error)
}

// Resolve looks a feed up by numeric id or, failing that, by code
func Resolve(ctx context.Context, repo Repository, ref string) (*types.Feed, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		feed, err := repo.Get(ctx, id)
		if err == nil {
			return feed, nil
		}
		if !errors.Is(err, types.ErrNotFound) {
			return nil, err
		}
	}
	return repo.GetByCode(ctx, ref)
}
