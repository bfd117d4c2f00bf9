package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/itinerary-cli/internal/calendar"
	"github.com/sells-group/itinerary-cli/internal/model"
	"github.com/sells-group/itinerary-cli/internal/reconcile"
	"github.com/sells-group/itinerary-cli/internal/timeline"
)

var tripsCmd = &cobra.Command{
	Use:   "trips",
	Short: "Create, list and inspect trips",
	Long:  "Commands for creating and renaming trips, viewing their itineraries and exporting them as calendars.",
}

// -- trips create --

var tripsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an empty trip",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		title, _ := cmd.Flags().GetString("title")
		tz, _ := cmd.Flags().GetString("timezone")

		trip, err := env.Engine.CreateTrip(ctx, title, tz)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created trip %s (%s)\n", trip.ID, trip.Title)
		return nil
	},
}

// -- trips rename --

var tripsRenameCmd = &cobra.Command{
	Use:   "rename <trip-id> <title>",
	Short: "Rename a trip",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		trip, err := env.Engine.RenameTrip(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Renamed trip %s to %q\n", trip.ID, trip.Title)
		return nil
	},
}

// -- trips list --

var tripsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List trips, most recently updated first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		trips, err := env.Engine.ListTrips(ctx, limit)
		if err != nil {
			return err
		}

		if len(trips) == 0 {
			fmt.Fprintln(os.Stderr, "No trips found.")
			return nil
		}

		formatTripsList(cmd.OutOrStdout(), trips)
		return nil
	},
}

// -- trips show --

var tripsShowCmd = &cobra.Command{
	Use:   "show <trip-id>",
	Short: "Show a trip's itinerary, open question and run history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		view, err := env.Engine.FetchTrip(ctx, args[0])
		if err != nil {
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		}

		formatTripView(cmd.OutOrStdout(), view)
		return nil
	},
}

// -- trips export --

var tripsExportCmd = &cobra.Command{
	Use:   "export <trip-id>",
	Short: "Export a trip's dated items as an iCalendar file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		view, err := env.Engine.FetchTrip(ctx, args[0])
		if err != nil {
			return err
		}

		ics := calendar.Export(view.Trip, view.Items, time.Now())

		out, _ := cmd.Flags().GetString("ics")
		if out == "" || out == "-" {
			_, err := io.WriteString(cmd.OutOrStdout(), ics)
			return err
		}
		if err := os.WriteFile(out, []byte(ics), 0o644); err != nil {
			return eris.Wrapf(err, "write calendar %s", out)
		}
		fmt.Fprintf(os.Stderr, "Wrote %s\n", out)
		return nil
	},
}

// formatTripsList writes a tabular trip list.
func formatTripsList(w io.Writer, trips []model.TripSummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tITEMS\tLAST RUN\tUPDATED")
	for _, t := range trips {
		lastRun := "-"
		if t.LatestRunAt != nil {
			lastRun = fmt.Sprintf("%s %s", t.LatestRunStatus, t.LatestRunAt.Format("2006-01-02 15:04"))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			t.ID,
			t.Title,
			t.Status,
			t.ItemCount,
			lastRun,
			t.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	tw.Flush() //nolint:errcheck
}

// formatTripView writes the day-by-day itinerary of a trip.
func formatTripView(w io.Writer, view *reconcile.TripView) {
	t := view.Trip
	fmt.Fprintf(w, "%s  [%s]\n", t.Title, t.Status)
	fmt.Fprintf(w, "ID: %s\n", t.ID)
	if t.Timezone != "" {
		fmt.Fprintf(w, "Timezone: %s\n", t.Timezone)
	}

	if d := view.Display; d != nil {
		if d.ExecutiveSummary != "" {
			fmt.Fprintf(w, "\n%s\n", d.ExecutiveSummary)
		}
		for _, day := range d.Days {
			fmt.Fprintf(w, "\n%s\n", day.Label)
			for _, it := range day.Items {
				fmt.Fprintf(w, "  %-5s  %-8s  %s%s\n", itemClock(it), it.Kind, it.Title, itemFlags(it))
			}
		}
		if len(d.Risks) > 0 {
			fmt.Fprintln(w, "\nRisks:")
			for _, r := range d.Risks {
				fmt.Fprintf(w, "  [%s] %s: %s\n", r.Severity, r.Title, r.Message)
			}
		}
		if len(d.MissingInfo) > 0 {
			fmt.Fprintln(w, "\nMissing:")
			for _, m := range d.MissingInfo {
				fmt.Fprintf(w, "  - %s\n", m.Prompt)
			}
		}
	} else {
		fmt.Fprintln(w, "\nNo items yet.")
	}

	if p := view.Pending; p != nil {
		fmt.Fprintln(w)
		formatPending(w, p)
	}

	if len(view.Runs) > 0 {
		fmt.Fprintln(w, "\nRecent runs:")
		formatRunsList(w, view.Runs)
	}
}

// formatPending writes an open clarification request and how to answer it.
func formatPending(w io.Writer, p *model.PendingAction) {
	fmt.Fprintf(w, "Needs clarification (%s): which item did you mean?\n", p.IntentType)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  ITEM\tTITLE\tWHEN\tREASON")
	for _, c := range p.Candidates {
		when := strings.TrimSpace(c.LocalDate + " " + c.LocalTime)
		if when == "" {
			when = "-"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", c.ItemID, c.Title, when, c.Reason)
	}
	tw.Flush() //nolint:errcheck
	fmt.Fprintf(w, "Answer with: itinerary-cli resolve %s <item-id>\n", p.ID)
}

func itemClock(it model.ItineraryItem) string {
	if it.Start.LocalTime != "" {
		return it.Start.LocalTime
	}
	if t, ok := timeline.ParseInstant(it.Start.ISO); ok {
		return t.Format("15:04")
	}
	return "--:--"
}

func itemFlags(it model.ItineraryItem) string {
	var flags []string
	if it.IsInferred {
		flags = append(flags, "inferred")
	}
	if it.State == model.StateConfirmed {
		flags = append(flags, "confirmed")
	}
	if len(flags) == 0 {
		return ""
	}
	return " (" + strings.Join(flags, ", ") + ")"
}

func init() {
	tripsCreateCmd.Flags().String("title", "", "trip title (default \"Untitled Trip\")")
	tripsCreateCmd.Flags().String("timezone", "", "IANA timezone of the traveler")

	tripsListCmd.Flags().Int("limit", 50, "max trips to show")

	tripsShowCmd.Flags().Bool("json", false, "print the trip view as JSON")

	tripsExportCmd.Flags().String("ics", "", "write the calendar to this file (default stdout)")

	tripsCmd.AddCommand(tripsCreateCmd)
	tripsCmd.AddCommand(tripsRenameCmd)
	tripsCmd.AddCommand(tripsListCmd)
	tripsCmd.AddCommand(tripsShowCmd)
	tripsCmd.AddCommand(tripsExportCmd)
	rootCmd.AddCommand(tripsCmd)
}
