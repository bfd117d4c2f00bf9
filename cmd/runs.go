package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/itinerary-cli/internal/model"
	"github.com/sells-group/itinerary-cli/internal/monitoring"
	"github.com/sells-group/itinerary-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect reconciliation run history",
	Long:  "Commands for listing and summarizing reconciliation runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reconciliation runs, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		trip, _ := cmd.Flags().GetString("trip")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.RunFilter{
			TripID: trip,
			Status: model.RunStatus(status),
			Limit:  limit,
		}

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		hours, _ := cmd.Flags().GetInt("hours")
		snap, err := monitoring.NewCollector(st).Collect(ctx, hours)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(os.Stdout, snap)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("trip", "", "filter by trip ID")
	runsListCmd.Flags().String("status", "", "filter by run status (SUCCEEDED, FAILED, NEEDS_CLARIFICATION)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsStatsCmd.Flags().Int("hours", 24, "lookback window in hours")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTRIP\tSTATUS\tMODE\tCHARS\tCOST\tCREATED\tERROR")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t----\t-----\t----\t-------\t-----")

	for _, r := range runs {
		errMsg := r.ErrorMessage
		if len(errMsg) > 40 {
			errMsg = errMsg[:37] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t$%.4f\t%s\t%s\n",
			truncateID(r.ID),
			truncateID(r.TripID),
			r.Status,
			r.Mode,
			r.InputCharCount,
			r.Usage.CostUSD,
			r.CreatedAt.Format("2006-01-02 15:04"),
			errMsg,
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s *monitoring.MetricsSnapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\t%dh\n", s.LookbackHours)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.RunsTotal)
	_, _ = fmt.Fprintf(w, "Succeeded:\t%d\n", s.RunsSucceeded)
	_, _ = fmt.Fprintf(w, "Needs clarification:\t%d\n", s.RunsNeedsClarification)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.RunsFailed)
	if s.RunsTotal > 0 {
		_, _ = fmt.Fprintf(w, "Fail rate:\t%.1f%%\n", s.RunFailRate*100)
	}
	_, _ = fmt.Fprintf(w, "Cost:\t$%.4f\n", s.RunCostUSD)
	if s.RunAvgTokens > 0 {
		_, _ = fmt.Fprintf(w, "Avg tokens:\t%d\n", s.RunAvgTokens)
	}
	_, _ = fmt.Fprintf(w, "Open clarifications:\t%d\n", s.OpenPending)
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
