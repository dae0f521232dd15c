package generator

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/kosarica/feed-service/internal/catalog"
	"github.com/kosarica/feed-service/internal/types"
	"github.com/kosarica/feed-service/internal/writers"
)

// maxPreviewPages bounds how far a preview searches for products passing the feed conditions
const maxPreviewPages = 10

// GeneratePreview renders up to limit products through the same pipeline as
// Generate. It writes to a throwaway temp file and never touches the feed's
// log or published output. XLSX feeds preview as CSV.
func (g *Generator) GeneratePreview(ctx context.Context, feed *types.Feed, limit int) (string, error) {
	if feed == nil {
		return "", fmt.Errorf("feed is required")
	}
	if limit <= 0 {
		limit = g.cfg.PreviewLimit
	}

	pf := *feed
	pf.Compress = false
	if pf.Format == types.FormatXLSX {
		pf.Format = types.FormatCSV
	}
	if err := pf.Validate(); err != nil {
		return "", err
	}
	adapter, err := g.deps.Platforms.GetOrInit(pf.Platform)
	if err != nil {
		return "", err
	}
	m, err := g.newMapper(ctx, &pf, adapter)
	if err != nil {
		return "", err
	}
	w, err := writers.New(&pf)
	if err != nil {
		return "", err
	}

	path := g.deps.Output.TempPath(fmt.Sprintf("preview_%d_%s.tmp", pf.ID, uuid.NewString()))
	defer os.Remove(path)
	if err := w.Open(path, adapter); err != nil {
		return "", err
	}

	logger := g.logger.With().Int64("feed_id", pf.ID).Logger()
	filter := catalog.FilterFor(&pf)
	written := 0
	for page := 1; page <= maxPreviewPages && written < limit; page++ {
		products, err := g.deps.Catalog.Page(ctx, filter, page, limit)
		if err != nil {
			w.Close()
			return "", fmt.Errorf("failed to load products: %w", err)
		}
		if len(products) == 0 {
			break
		}
		ids := make([]int64, len(products))
		for i := range products {
			ids[i] = products[i].ID
		}
		if err := m.PreloadParentMappings(ctx, ids); err != nil {
			w.Close()
			return "", err
		}
		for i := range products {
			if written == limit {
				break
			}
			p := &products[i]
			ok, err := m.MatchesConditions(ctx, p, pf.Filters.Conditions)
			if err != nil || !ok {
				continue
			}
			if err := writeProduct(ctx, m, w, &pf, p); err != nil {
				logger.Debug().Int64("product_id", p.ID).Err(err).Msg("Preview skipped product")
				continue
			}
			written++
		}
		if len(products) < limit {
			break
		}
	}

	if err := w.Close(); err != nil {
		return "", err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read preview: %w", err)
	}
	return string(content), nil
}
