package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/itinerary-cli/internal/model"
	"github.com/sells-group/itinerary-cli/internal/reconcile"
	"github.com/sells-group/itinerary-cli/internal/resilience"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <trip-id>",
	Short: "Reconcile a free-text update into a trip",
	Long: `Sends the text to the reconstruction service and merges the result into the trip.
When an update could refer to more than one existing item nothing is applied and a
clarification request is printed; answer it with "resolve".

The text comes from --text, --file, or standard input.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		raw, err := readRawText(cmd)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "reconstruct")
		if err != nil {
			return err
		}
		defer env.Close()

		mode, _ := cmd.Flags().GetString("mode")
		tz, _ := cmd.Flags().GetString("timezone")
		retries, _ := cmd.Flags().GetInt("retries")
		if retries <= 0 {
			retries = cfg.Resilience.RetryAttempts
		}

		req := reconcile.IngestRequest{
			TripID:  args[0],
			RawText: raw,
			Client:  model.ClientContext{Timezone: tz},
			Mode:    model.IngestMode(mode),
		}

		out, err := resilience.Do(ctx, retryPolicy("ingest", retries), func(ctx context.Context) (reconcile.Outcome, error) {
			return env.Engine.Ingest(ctx, req)
		})
		if err != nil {
			zap.L().Error("ingest failed",
				zap.String("trip_id", req.TripID),
				zap.String("kind", string(reconcile.KindOf(err))),
				zap.Error(err),
			)
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		return printOutcome(cmd.OutOrStdout(), out, asJSON)
	},
}

// readRawText returns the update text from --text, --file or stdin.
func readRawText(cmd *cobra.Command) (string, error) {
	text, _ := cmd.Flags().GetString("text")
	if text != "" {
		return text, nil
	}

	path, _ := cmd.Flags().GetString("file")
	if path != "" && path != "-" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", eris.Wrapf(err, "read %s", path)
		}
		return string(data), nil
	}

	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", eris.Wrap(err, "read stdin")
	}
	return string(data), nil
}

// printOutcome writes the result of an ingest or resolution.
func printOutcome(w io.Writer, out reconcile.Outcome, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"status": out.Status(),
			"result": out,
		})
	}

	switch o := out.(type) {
	case *reconcile.Committed:
		fmt.Fprintf(w, "Applied (run %s, mode %s).\n", truncateID(o.Run.ID), o.Run.Mode)
		if o.Output != nil {
			fmt.Fprintf(w, "%d items across %d days.\n", len(o.Output.Items()), len(o.Output.Days))
			if o.Output.Meta != nil && o.Output.Meta.RawTextTruncated {
				fmt.Fprintf(w, "Input was truncated: %d older characters were skipped.\n", o.Output.Meta.RawTextOmittedChars)
			}
		}
		if o.Run.Usage.CostUSD > 0 {
			fmt.Fprintf(w, "Cost: $%.4f\n", o.Run.Usage.CostUSD)
		}
	case *reconcile.NeedsClarification:
		formatPending(w, o.PendingAction)
	}
	return nil
}

func init() {
	ingestCmd.Flags().String("text", "", "update text")
	ingestCmd.Flags().String("file", "", "read the update text from a file (- for stdin)")
	ingestCmd.Flags().String("mode", "", "reconcile (default), patch, or rebuild")
	ingestCmd.Flags().String("timezone", "", "IANA timezone of the traveler")
	ingestCmd.Flags().Int("retries", 0, "attempts for upstream failures (default from config)")
	ingestCmd.Flags().Bool("json", false, "print the outcome as JSON")
	rootCmd.AddCommand(ingestCmd)
}
