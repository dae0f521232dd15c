package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kosarica/feed-service/internal/mapper"
	"github.com/kosarica/feed-service/internal/types"
)

// MappingRepository serves category mappings and dynamic rules
type MappingRepository struct {
	pool *pgxpool.Pool
}

var _ mapper.Repository = (*MappingRepository)(nil)

// NewMappingRepository creates a mapping repository on pool
func NewMappingRepository(pool *pgxpool.Pool) *MappingRepository {
	return &MappingRepository{pool: pool}
}

// CategoryMappings returns the platform's category mappings
func (r *MappingRepository) CategoryMappings(ctx context.Context, platform string) ([]types.CategoryMapping, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT platform, category_id, platform_category_id, platform_category_path
		FROM category_mappings
		WHERE platform = $1
		ORDER BY category_id`, platform)
	if err != nil {
		return nil, fmt.Errorf("failed to load category mappings: %w", err)
	}
	defer rows.Close()

	var out []types.CategoryMapping
	for rows.Next() {
		var m types.CategoryMapping
		if err := rows.Scan(&m.Platform, &m.CategoryID, &m.PlatformCategoryID, &m.PlatformCategoryPath); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// TaxonomyMappings returns the platform's mappings with the depth of their category
func (r *MappingRepository) TaxonomyMappings(ctx context.Context, platform string) ([]types.TaxonomyMapping, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT m.platform, m.category_id, m.platform_category_id, m.platform_category_path,
		       COALESCE(MAX(c.level), 0)
		FROM category_mappings m
		LEFT JOIN categories c ON c.id = m.category_id
		WHERE m.platform = $1
		GROUP BY m.platform, m.category_id, m.platform_category_id, m.platform_category_path
		ORDER BY m.category_id`, platform)
	if err != nil {
		return nil, fmt.Errorf("failed to load taxonomy mappings: %w", err)
	}
	defer rows.Close()

	var out []types.TaxonomyMapping
	for rows.Next() {
		var m types.TaxonomyMapping
		if err := rows.Scan(&m.Platform, &m.CategoryID, &m.PlatformCategoryID, &m.PlatformCategoryPath, &m.Depth); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DynamicRule returns an active rule by code
func (r *MappingRepository) DynamicRule(ctx context.Context, code string) (*types.DynamicRule, error) {
	var (
		rule  types.DynamicRule
		cases []byte
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, code, name, cases FROM dynamic_rules
		WHERE code = $1 AND is_active`, code,
	).Scan(&rule.ID, &rule.Code, &rule.Name, &cases)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load rule %s: %w", code, err)
	}
	if err := json.Unmarshal(cases, &rule.Cases); err != nil {
		return nil, fmt.Errorf("failed to decode rule %s: %w", code, err)
	}
	return &rule, nil
}

// SaveRule upserts a rule by code after validating it
func (r *MappingRepository) SaveRule(ctx context.Context, rule *types.DynamicRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	cases, err := json.Marshal(rule.Cases)
	if err != nil {
		return err
	}
	err = r.pool.QueryRow(ctx, `
		INSERT INTO dynamic_rules (code, name, cases)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			cases = EXCLUDED.cases,
			is_active = TRUE,
			updated_at = NOW()
		RETURNING id`, rule.Code, rule.Name, string(cases)).Scan(&rule.ID)
	if err != nil {
		return fmt.Errorf("failed to save rule %s: %w", rule.Code, err)
	}
	return nil
}

// SaveCategoryMappings upserts mappings in one batch
func (r *MappingRepository) SaveCategoryMappings(ctx context.Context, mappings []types.CategoryMapping) error {
	if len(mappings) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range mappings {
		batch.Queue(`
			INSERT INTO category_mappings (platform, category_id, platform_category_id, platform_category_path)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (platform, category_id) DO UPDATE SET
				platform_category_id = EXCLUDED.platform_category_id,
				platform_category_path = EXCLUDED.platform_category_path`,
			m.Platform, m.CategoryID, m.PlatformCategoryID, m.PlatformCategoryPath)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save category mappings: %w", err)
	}
	return nil
}
