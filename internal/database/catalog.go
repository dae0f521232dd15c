package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kosarica/feed-service/internal/catalog"
	"github.com/kosarica/feed-service/internal/types"
)

// CatalogSource reads products from the catalog tables
type CatalogSource struct {
	pool *pgxpool.Pool
}

var _ catalog.Source = (*CatalogSource)(nil)

// NewCatalogSource creates a catalog source on pool
func NewCatalogSource(pool *pgxpool.Pool) *CatalogSource {
	return &CatalogSource{pool: pool}
}

const productColumns = `p.id, p.sku, p.type_id, p.status, p.visibility, p.name, p.description,
	p.short_description, p.url_key, p.price, p.special_price, p.special_from, p.special_to,
	p.weight, p.brand, p.manufacturer, p.gtin, p.mpn, p.image, p.gallery, p.category_ids,
	p.attributes, p.store_id, p.created_at, p.updated_at,
	s.qty, s.is_in_stock,
	(SELECT r.parent_id FROM product_relations r WHERE r.child_id = p.id ORDER BY r.parent_id LIMIT 1)`

const productFrom = ` FROM products p LEFT JOIN stock_items s ON s.product_id = p.id`

// filterClause renders a filter as a WHERE clause with numbered args
func filterClause(f catalog.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.StoreID != 0 {
		conds = append(conds, "(p.store_id = "+arg(f.StoreID)+" OR p.store_id = 0)")
	}
	if len(f.IncludeTypes) > 0 {
		conds = append(conds, "p.type_id = ANY("+arg(f.IncludeTypes)+")")
	}
	if f.ExcludeDisabled {
		conds = append(conds, fmt.Sprintf("p.status = %d", types.ProductStatusEnabled))
	}
	if f.ExcludeOutOfStock {
		conds = append(conds, "COALESCE(s.is_in_stock, TRUE)")
	}
	if f.ExcludeNotVisible {
		conds = append(conds, fmt.Sprintf("p.visibility <> %d", types.VisibilityNotVisible))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanProduct(row pgx.Row) (types.Product, error) {
	var (
		p          types.Product
		attributes []byte
		qty        *float64
		inStock    *bool
	)
	err := row.Scan(
		&p.ID, &p.SKU, &p.TypeID, &p.Status, &p.Visibility, &p.Name, &p.Description,
		&p.ShortDescription, &p.URLKey, &p.Price, &p.SpecialPrice, &p.SpecialFrom, &p.SpecialTo,
		&p.Weight, &p.Brand, &p.Manufacturer, &p.GTIN, &p.MPN, &p.Image, &p.Gallery, &p.CategoryIDs,
		&attributes, &p.StoreID, &p.CreatedAt, &p.UpdatedAt,
		&qty, &inStock, &p.ParentID,
	)
	if err != nil {
		return p, err
	}
	if len(attributes) > 0 {
		if err := json.Unmarshal(attributes, &p.Attributes); err != nil {
			return p, fmt.Errorf("failed to decode attributes of product %d: %w", p.ID, err)
		}
	}
	if inStock != nil {
		p.Stock = &types.StockItem{IsInStock: *inStock}
		if qty != nil {
			p.Stock.Qty = *qty
		}
	}
	return p, nil
}

func (c *CatalogSource) queryProducts(ctx context.Context, query string, args ...any) ([]types.Product, error) {
	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Count returns the number of products passing the filter
func (c *CatalogSource) Count(ctx context.Context, filter catalog.Filter) (int, error) {
	where, args := filterClause(filter)
	var n int
	if err := c.pool.QueryRow(ctx, `SELECT COUNT(*)`+productFrom+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return n, nil
}

// Page returns one 1-based page of filtered products ordered by id
func (c *CatalogSource) Page(ctx context.Context, filter catalog.Filter, page, size int) ([]types.Product, error) {
	if page < 1 || size < 1 {
		return nil, nil
	}
	where, args := filterClause(filter)
	args = append(args, size, (page-1)*size)
	query := fmt.Sprintf(`SELECT %s%s%s ORDER BY p.id LIMIT $%d OFFSET $%d`,
		productColumns, productFrom, where, len(args)-1, len(args))
	return c.queryProducts(ctx, query, args...)
}

// LoadParentLinks maps children to their parent ids
func (c *CatalogSource) LoadParentLinks(ctx context.Context, childIDs []int64) (map[int64]int64, error) {
	links := make(map[int64]int64)
	if len(childIDs) == 0 {
		return links, nil
	}
	rows, err := c.pool.Query(ctx, `
		SELECT child_id, MIN(parent_id) FROM product_relations
		WHERE child_id = ANY($1)
		GROUP BY child_id`, childIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load parent links: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var child, parent int64
		if err := rows.Scan(&child, &parent); err != nil {
			return nil, err
		}
		links[child] = parent
	}
	return links, rows.Err()
}

// LoadProducts returns products by id
func (c *CatalogSource) LoadProducts(ctx context.Context, ids []int64) ([]types.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return c.queryProducts(ctx, `SELECT `+productColumns+productFrom+` WHERE p.id = ANY($1) ORDER BY p.id`, ids)
}

// LoadCategories returns the store's category tree, falling back to the shared tree
func (c *CatalogSource) LoadCategories(ctx context.Context, storeID int64) ([]types.Category, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id, parent_id, name, path, level FROM categories
		WHERE store_id = CASE
			WHEN EXISTS (SELECT 1 FROM categories WHERE store_id = $1) THEN $1
			ELSE 0 END
		ORDER BY level, id`, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	defer rows.Close()

	var out []types.Category
	for rows.Next() {
		var cat types.Category
		if err := rows.Scan(&cat.ID, &cat.ParentID, &cat.Name, &cat.Path, &cat.Level); err != nil {
			return nil, err
		}
		out = append(out, cat)
	}
	return out, rows.Err()
}

// LoadStockItem returns a product's stock row; nil without error when it has none
func (c *CatalogSource) LoadStockItem(ctx context.Context, productID int64) (*types.StockItem, error) {
	var s types.StockItem
	err := c.pool.QueryRow(ctx,
		`SELECT qty, is_in_stock FROM stock_items WHERE product_id = $1`, productID,
	).Scan(&s.Qty, &s.IsInStock)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load stock of product %d: %w", productID, err)
	}
	return &s, nil
}

// SaveProducts upserts products with their stock and parent relation in one transaction
func (c *CatalogSource) SaveProducts(ctx context.Context, products []types.Product) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for i := range products {
		p := &products[i]
		attrs, err := json.Marshal(p.Attributes)
		if err != nil {
			return fmt.Errorf("failed to encode attributes of product %d: %w", p.ID, err)
		}
		if p.Attributes == nil {
			attrs = []byte("{}")
		}
		created, updated := p.CreatedAt, p.UpdatedAt
		if created.IsZero() {
			created = now
		}
		if updated.IsZero() {
			updated = now
		}
		gallery := p.Gallery
		if gallery == nil {
			gallery = []string{}
		}
		categoryIDs := p.CategoryIDs
		if categoryIDs == nil {
			categoryIDs = []int64{}
		}
		batch.Queue(`
			INSERT INTO products (id, sku, type_id, status, visibility, name, description, short_description,
				url_key, price, special_price, special_from, special_to, weight, brand, manufacturer, gtin, mpn,
				image, gallery, category_ids, attributes, store_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
				$19, $20, $21, $22::jsonb, $23, $24, $25)
			ON CONFLICT (id) DO UPDATE SET
				sku = EXCLUDED.sku, type_id = EXCLUDED.type_id, status = EXCLUDED.status,
				visibility = EXCLUDED.visibility, name = EXCLUDED.name, description = EXCLUDED.description,
				short_description = EXCLUDED.short_description, url_key = EXCLUDED.url_key,
				price = EXCLUDED.price, special_price = EXCLUDED.special_price,
				special_from = EXCLUDED.special_from, special_to = EXCLUDED.special_to,
				weight = EXCLUDED.weight, brand = EXCLUDED.brand, manufacturer = EXCLUDED.manufacturer,
				gtin = EXCLUDED.gtin, mpn = EXCLUDED.mpn, image = EXCLUDED.image, gallery = EXCLUDED.gallery,
				category_ids = EXCLUDED.category_ids, attributes = EXCLUDED.attributes,
				store_id = EXCLUDED.store_id, updated_at = EXCLUDED.updated_at`,
			p.ID, p.SKU, p.TypeID, p.Status, p.Visibility, p.Name, p.Description, p.ShortDescription,
			p.URLKey, p.Price, p.SpecialPrice, p.SpecialFrom, p.SpecialTo, p.Weight, p.Brand, p.Manufacturer,
			p.GTIN, p.MPN, p.Image, gallery, categoryIDs, string(attrs), p.StoreID, created, updated)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save products: %w", err)
	}

	// relations and stock reference products, so they go after every product row exists
	batch = &pgx.Batch{}
	for i := range products {
		p := &products[i]
		if p.Stock != nil {
			batch.Queue(`
				INSERT INTO stock_items (product_id, qty, is_in_stock) VALUES ($1, $2, $3)
				ON CONFLICT (product_id) DO UPDATE SET qty = EXCLUDED.qty, is_in_stock = EXCLUDED.is_in_stock`,
				p.ID, p.Stock.Qty, p.Stock.IsInStock)
		}
		if p.ParentID != nil {
			batch.Queue(`
				INSERT INTO product_relations (parent_id, child_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING`, *p.ParentID, p.ID)
		}
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to save stock and relations: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// SaveCategories upserts a store's category tree
func (c *CatalogSource) SaveCategories(ctx context.Context, storeID int64, cats []types.Category) error {
	if len(cats) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, cat := range cats {
		batch.Queue(`
			INSERT INTO categories (store_id, id, parent_id, name, path, level)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (store_id, id) DO UPDATE SET
				parent_id = EXCLUDED.parent_id, name = EXCLUDED.name,
				path = EXCLUDED.path, level = EXCLUDED.level`,
			storeID, cat.ID, cat.ParentID, cat.Name, cat.Path, cat.Level)
	}
	if err := c.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save categories: %w", err)
	}
	return nil
}
