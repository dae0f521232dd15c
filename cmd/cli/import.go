package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/kosarica/feed-service/internal/database"
	"github.com/kosarica/feed-service/internal/workspace"
)

var importMigrate bool

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import <workspace.yaml>",
	Short: "Load a workspace file into Postgres",
	Long: `Upsert the feeds, dynamic rules, category mappings, categories and products of
a workspace file into the database. Feeds and rules are matched by code.`,
	Example: `  feed-service import ./config/workspace.example.yaml --migrate`,
	Args:    cobra.ExactArgs(1),
	RunE:    runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().BoolVar(&importMigrate, "migrate", false, "Apply pending migrations first")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL not set")
	}

	ws, err := workspace.Load(args[0])
	if err != nil {
		return err
	}

	if importMigrate {
		if _, err := database.Migrate(ctx, cfg.Database.URL); err != nil {
			return err
		}
	}

	pool, err := database.NewPool(ctx, cfg.Database.URL, database.PoolConfig{MaxConns: 4})
	if err != nil {
		return err
	}
	defer pool.Close()

	catalog := database.NewCatalogSource(pool)
	stores := make([]int64, 0, len(ws.Categories))
	for storeID := range ws.Categories {
		stores = append(stores, storeID)
	}
	sort.Slice(stores, func(i, j int) bool { return stores[i] < stores[j] })
	for _, storeID := range stores {
		if err := catalog.SaveCategories(ctx, storeID, ws.Categories[storeID]); err != nil {
			return fmt.Errorf("store %d categories: %w", storeID, err)
		}
	}
	if len(ws.Products) > 0 {
		if err := catalog.SaveProducts(ctx, ws.Products); err != nil {
			return err
		}
	}

	mappings := database.NewMappingRepository(pool)
	if len(ws.MappingList) > 0 {
		if err := mappings.SaveCategoryMappings(ctx, ws.MappingList); err != nil {
			return err
		}
	}
	for i := range ws.Rules {
		if err := mappings.SaveRule(ctx, &ws.Rules[i]); err != nil {
			return fmt.Errorf("rule %s: %w", ws.Rules[i].Code, err)
		}
	}

	repo := database.NewFeedRepository(pool)
	for _, feed := range ws.Feeds {
		// Save replaces the workspace position id with the stored one
		if err := repo.Save(ctx, feed); err != nil {
			return fmt.Errorf("feed %s: %w", feed.Code, err)
		}
		logger.Info().Int64("feed_id", feed.ID).Str("feed", feed.Code).Msg("Imported feed")
	}

	fmt.Printf("Imported %d feeds, %d rules, %d category mappings, %d products\n",
		len(ws.Feeds), len(ws.Rules), len(ws.MappingList), len(ws.Products))
	return nil
}
