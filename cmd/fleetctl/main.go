package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fleetdash/fleetdash/internal/app"
	"github.com/fleetdash/fleetdash/internal/platform/db"
	"github.com/fleetdash/fleetdash/jobs"
)

func main() {
	if err := rootCmd(nil).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// rootCmd builds the command tree. A nil factory connects to REDIS_ADDR.
func rootCmd(factory func(redisAddr string) (*jobsCLI, error)) *cobra.Command {
	var redisAddr string
	if factory == nil {
		factory = newJobsCLI
	}

	cmd := &cobra.Command{
		Use:           "fleetctl",
		Short:         "Operational helpers for the fleet sales dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if redisAddr != "" {
				return nil
			}
			cfg, err := app.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			redisAddr = cfg.RedisAddr
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&redisAddr, "redis", "", "Redis address (defaults to REDIS_ADDR)")

	var invalidate bool
	warmup := &cobra.Command{
		Use:   "warmup",
		Short: "Enqueue a dashboard stats rebuild",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := factory(redisAddr)
			if err != nil {
				return err
			}
			defer cli.Close()
			info, err := cli.Trigger(cmd.Context(), jobs.TaskStatsWarmup, invalidate)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	warmup.Flags().BoolVar(&invalidate, "invalidate", false, "Bump the cache version before rebuilding")

	queue := &cobra.Command{Use: "queue", Short: "Inspect the job queue"}
	queue.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print queue counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := factory(redisAddr)
			if err != nil {
				return err
			}
			defer cli.Close()
			st, err := cli.InspectQueue()
			if err != nil {
				return err
			}
			printQueueStats(cmd.OutOrStdout(), st)
			return nil
		},
	})
	var size int
	scheduled := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := factory(redisAddr)
			if err != nil {
				return err
			}
			defer cli.Close()
			tasks, err := cli.ListScheduled(size)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tNEXT")
			for _, t := range tasks {
				fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
	scheduled.Flags().IntVar(&size, "size", 10, "Number of tasks to list")
	queue.AddCommand(scheduled)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		// Only needs PG_DSN.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := db.Migrate(cfg.PGDSN); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}

	cmd.AddCommand(warmup, queue, migrateCmd)
	return cmd
}

func printQueueStats(out io.Writer, st queueStats) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tARCHIVED")
	fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n", st.Queue, st.Pending, st.Active, st.Scheduled, st.Retry, st.Archived)
	_ = w.Flush()
}
