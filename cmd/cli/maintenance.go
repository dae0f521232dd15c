package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kosarica/feed-service/internal/database"
)

var scheduleOnce bool

// reapCmd represents the reap command
var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Reset generations stuck in running",
	Long: `Mark every generation that has been running longer than
generation.stuck_timeout as failed, releasing the feed for new runs.`,
	Args: cobra.NoArgs,
	RunE: runReap,
}

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

// scheduleCmd represents the schedule command
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Regenerate feeds whose schedule is due",
	Long: `Run the feed scheduler in the foreground until interrupted, or make a
single pass with --once. Completed files are uploaded to their destinations.`,
	Args: cobra.NoArgs,
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(reapCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(scheduleCmd)

	scheduleCmd.Flags().BoolVar(&scheduleOnce, "once", false, "Make one pass and exit")
}

func runReap(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	reaped, err := a.Generator.ReapStuck(ctx)
	if err != nil {
		return err
	}
	for _, log := range reaped {
		logger.Info().Int64("feed_id", log.FeedID).Str("log_id", log.ID).Msg("Reset stuck generation")
	}
	fmt.Printf("Reset %d stuck generations\n", len(reaped))
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL not set")
	}
	applied, err := database.Migrate(cmd.Context(), cfg.Database.URL)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Println("Database is up to date")
		return nil
	}
	for _, v := range applied {
		fmt.Printf("Applied %s\n", v)
	}
	return nil
}

func runSchedule(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if !scheduleOnce {
		go a.Sweeper.Start(ctx)
		a.Scheduler.Start(ctx)
		return nil
	}

	summary, err := a.Scheduler.RunDue(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DUE\tCOMPLETED\tFAILED\tUPLOADED\tSKIPPED")
	fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\n", summary.Due, summary.Completed, summary.Failed, summary.Uploaded, summary.Skipped)
	return w.Flush()
}
