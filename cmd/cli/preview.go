package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kosarica/feed-service/internal/feeds"
)

var previewLimit int

// previewCmd represents the preview command
var previewCmd = &cobra.Command{
	Use:   "preview <feed>",
	Short: "Render the first products of a feed",
	Long: `Render the first products of a feed through the full mapping pipeline and
print the result. Nothing is published and no generation log is written.`,
	Example: `  feed-service preview google-hr
  feed-service preview 3 --limit 10`,
	Args: cobra.ExactArgs(1),
	RunE: runPreview,
}

func init() {
	rootCmd.AddCommand(previewCmd)

	previewCmd.Flags().IntVar(&previewLimit, "limit", 0, "Number of products (defaults to generation.preview_limit)")
}

func runPreview(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	feed, err := feeds.Resolve(ctx, a.Feeds, args[0])
	if err != nil {
		return fmt.Errorf("feed %s: %w", args[0], err)
	}
	out, err := a.Generator.GeneratePreview(ctx, feed, previewLimit)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}
