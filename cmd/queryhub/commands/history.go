package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/queryhub/queryhub/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		reportID string
		limit    int
		offset   int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded report runs",
		Long:  `List recorded report runs from the run history database, newest first.`,
		Example: `  # Last 20 runs
  queryhub history --db runs.db

  # Runs of one report
  queryhub history --db runs.db --report daily-health`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				return fmt.Errorf("history requires --db")
			}

			ctx := cmd.Context()
			store, err := stores.NewSQLiteStore(stores.Config{Path: dbPath})
			if err != nil {
				return err
			}
			if err := store.Init(ctx); err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			if err := store.Migrate(ctx); err != nil {
				return err
			}

			runs, err := store.ListRuns(ctx, reportID, limit, offset)
			if err != nil {
				return err
			}

			if jsonOutput {
				data, err := json.MarshalIndent(runs, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode runs: %w", err)
				}
				fmt.Println(string(data))
				return nil
			}

			for _, run := range runs {
				fmt.Printf("%s  %-24s %-10s success=%d failed=%d duration=%s started=%s\n",
					run.ID, run.ReportID, run.Status,
					run.SuccessCount, run.FailureCount, run.Duration,
					run.StartedAt.Format("2006-01-02 15:04:05"))
			}
			if len(runs) == 0 {
				fmt.Println("no recorded runs")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&reportID, "report", "", "filter by report id")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of runs to skip")

	return cmd
}
