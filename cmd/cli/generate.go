package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kosarica/feed-service/internal/feeds"
	"github.com/kosarica/feed-service/internal/types"
)

var (
	generateAll    bool
	generateUpload bool
)

// generateCmd represents the generate command
var generateCmd = &cobra.Command{
	Use:   "generate <feed>",
	Short: "Generate a feed file",
	Long: `Generate the feed file of one feed, referenced by id or code, or of all
active feeds with --all. The file is published atomically; a failed run leaves
the previous file untouched. With --upload, completed files are delivered to
the feed's destination.`,
	Example: `  feed-service generate google-hr
  feed-service generate 3 --upload
  feed-service generate --all --workspace ./workspace.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().BoolVar(&generateAll, "all", false, "Generate all active feeds")
	generateCmd.Flags().BoolVar(&generateUpload, "upload", false, "Upload completed files to their destinations")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var targets []*types.Feed
	switch {
	case generateAll:
		targets, err = a.Feeds.List(ctx, true)
		if err != nil {
			return err
		}
	case len(args) == 1:
		feed, err := feeds.Resolve(ctx, a.Feeds, args[0])
		if err != nil {
			return fmt.Errorf("feed %s: %w", args[0], err)
		}
		targets = []*types.Feed{feed}
	default:
		return fmt.Errorf("either specify <feed> or use --all flag")
	}

	var logs []*types.GenerationLog
	failed := 0
	for _, feed := range targets {
		logger.Info().Int64("feed_id", feed.ID).Str("feed", feed.Code).Msg("Generating feed")

		var log *types.GenerationLog
		if generateUpload {
			log, err = a.Scheduler.RunFeed(ctx, feed)
		} else {
			log, err = a.Generator.Generate(ctx, feed)
		}
		if err != nil {
			return fmt.Errorf("feed %s: %w", feed.Code, err)
		}
		if log.Status != types.GenerationCompleted {
			failed++
		}
		logs = append(logs, log)
	}

	printLogs(targets, logs)
	if failed > 0 {
		return fmt.Errorf("%d of %d feeds failed", failed, len(targets))
	}
	return nil
}

func printLogs(targets []*types.Feed, logs []*types.GenerationLog) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FEED\tSTATUS\tPRODUCTS\tERRORS\tFILE\tUPLOAD\tMESSAGE")
	for i, log := range logs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			targets[i].Code, log.Status, log.ProductCount, log.ErrorCount, log.FilePath, log.UploadStatus, log.Message)
	}
	w.Flush()
}
