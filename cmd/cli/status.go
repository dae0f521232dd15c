package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kosarica/feed-service/internal/feeds"
	"github.com/kosarica/feed-service/internal/types"
)

var logsLimit int

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status [feed]",
	Short: "Show the latest generation of feeds",
	Long: `Show the latest generation of one feed or of every feed. Runs that have been
running longer than generation.stuck_timeout are reset to failed first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

// logsCmd represents the logs command
var logsCmd = &cobra.Command{
	Use:   "logs <feed>",
	Short: "List a feed's generation logs",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogs,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVar(&logsLimit, "limit", 20, "Number of logs to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var targets []*types.Feed
	if len(args) == 1 {
		feed, err := feeds.Resolve(ctx, a.Feeds, args[0])
		if err != nil {
			return fmt.Errorf("feed %s: %w", args[0], err)
		}
		targets = []*types.Feed{feed}
	} else if targets, err = a.Feeds.List(ctx, false); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFEED\tPLATFORM\tSTATUS\tPROGRESS\tPRODUCTS\tERRORS\tSTARTED\tUPLOAD")
	for _, feed := range targets {
		st, err := a.Generator.GetGenerationStatus(ctx, feed.ID)
		if err != nil {
			return fmt.Errorf("feed %s: %w", feed.Code, err)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.0f%%\t%d\t%d\t%s\t%s\n",
			feed.ID, feed.Code, feed.Platform, st.Status, st.Progress, st.ProductCount, st.ErrorCount,
			formatTime(st.StartedAt), st.UploadStatus)
	}
	return w.Flush()
}

func runLogs(cmd *cobra.Command, args []string) error {
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
	logs, err := a.Logs.ListByFeed(ctx, feed.ID, logsLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSTARTED\tDURATION\tPRODUCTS\tERRORS\tUPLOAD\tMESSAGE")
	for _, log := range logs {
		duration := "-"
		if log.CompletedAt != nil {
			duration = log.CompletedAt.Sub(log.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			log.ID, log.Status, formatTime(&log.StartedAt), duration, log.ProductCount, log.ErrorCount, log.UploadStatus, log.Message)
	}
	return w.Flush()
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
