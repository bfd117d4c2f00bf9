package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/sells-group/itinerary-cli/internal/model"
	"github.com/sells-group/itinerary-cli/internal/resilience"
)

var reconstructCmd = &cobra.Command{
	Use:   "reconstruct",
	Short: "Organize free text into an itinerary without saving it",
	Long:  "One-shot reconstruction: prints the organized itinerary as JSON. No trip is created or changed.",
	RunE: func(cmd *cobra.Command, _ []string) error {
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

		tz, _ := cmd.Flags().GetString("timezone")
		client := model.ClientContext{Timezone: tz}

		out, err := resilience.Do(ctx, retryPolicy("reconstruct", cfg.Resilience.RetryAttempts), func(ctx context.Context) (*model.ReconstructionOutput, error) {
			return env.Engine.Reconstruct(ctx, raw, client)
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	reconstructCmd.Flags().String("text", "", "text to organize")
	reconstructCmd.Flags().String("file", "", "read the text from a file (- for stdin)")
	reconstructCmd.Flags().String("timezone", "", "IANA timezone of the traveler")
	rootCmd.AddCommand(reconstructCmd)
}
